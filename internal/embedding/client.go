package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/cache"
	"github.com/rtirumala2025/InvestX-Labs/internal/metrics"
	"github.com/rtirumala2025/InvestX-Labs/pkg/circuitbreaker"
	"github.com/rtirumala2025/InvestX-Labs/pkg/config"
	"github.com/rtirumala2025/InvestX-Labs/pkg/logger"
	"github.com/rtirumala2025/InvestX-Labs/pkg/retry"
	"github.com/rtirumala2025/InvestX-Labs/pkg/utils"
)

// Embedder converts text into fixed-dimension vectors. It is the external
// model boundary; callers treat any failure as a recoverable empty result.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Client struct {
	client      *openai.Client
	model       string
	dimensions  int
	normalize   bool
	timeout     time.Duration
	cacheTTL    time.Duration
	cache       cache.Store
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(cfg config.EmbeddingConfig, cacheStore cache.Store) *Client {
	cb := circuitbreaker.NewCircuitBreaker("embedding", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Embedding client initialized",
		zap.String("model", cfg.Model),
		zap.Int("dimensions", cfg.Dimensions),
	)

	return &Client{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		dimensions:  cfg.Dimensions,
		normalize:   cfg.Normalize,
		timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
		cacheTTL:    cfg.CacheTTL,
		cache:       cacheStore,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	cacheKey := "embedding:" + utils.HashString(text)

	var cached []float32
	if c.cache != nil {
		if hit, err := c.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	vectors, err := c.embedRemote(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding response was empty")
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, vectors[0], c.cacheTTL); err != nil {
			logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}

	return vectors[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	const batchSize = 100

	embeddings := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := c.embedRemote(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, vectors...)
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))
	return embeddings, nil
}

func (c *Client) embedRemote(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var vectors [][]float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input:      texts,
					Model:      openai.EmbeddingModel(c.model),
					Dimensions: c.dimensions,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to generate embeddings: %w", err)
			}

			metrics.EmbeddingTokensUsed.WithLabelValues(c.model).Add(float64(resp.Usage.TotalTokens))

			vectors = make([][]float32, 0, len(resp.Data))
			for _, data := range resp.Data {
				vector := make([]float32, len(data.Embedding))
				copy(vector, data.Embedding)
				if c.normalize {
					normalizeVector(vector)
				}
				vectors = append(vectors, vector)
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return vectors, nil
}

func normalizeVector(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
