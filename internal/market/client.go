package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/cache"
	"github.com/rtirumala2025/InvestX-Labs/internal/storage/models"
	"github.com/rtirumala2025/InvestX-Labs/pkg/circuitbreaker"
	"github.com/rtirumala2025/InvestX-Labs/pkg/config"
	"github.com/rtirumala2025/InvestX-Labs/pkg/logger"
)

// QuoteProvider supplies point-in-time market data for the context
// aggregator's market sub-retrieval.
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (*models.MarketQuote, error)
}

// Client fetches quotes over HTTP with a circuit breaker and a shared cache
// in front. A missing endpoint configures the client into permanent
// unavailable mode, which callers treat as an empty market context.
type Client struct {
	endpoint   string
	httpClient *http.Client
	cache      cache.Store
	cacheTTL   time.Duration
	cb         *circuitbreaker.CircuitBreaker
}

func NewClient(cfg config.MarketConfig, cacheStore cache.Store) *Client {
	cb := circuitbreaker.NewCircuitBreaker("market", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	return &Client{
		endpoint: cfg.QuoteEndpoint,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		},
		cache:    cacheStore,
		cacheTTL: cfg.CacheTTL,
		cb:       cb,
	}
}

func (c *Client) GetQuote(ctx context.Context, symbol string) (*models.MarketQuote, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("market data endpoint not configured")
	}

	cacheKey := "market_data:" + symbol

	var cached models.MarketQuote
	if hit, err := c.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, nil
	}

	var quote *models.MarketQuote
	err := c.cb.Execute(ctx, func() error {
		fetched, err := c.fetchQuote(ctx, symbol)
		if err != nil {
			return err
		}
		quote = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, cacheKey, quote, c.cacheTTL); err != nil {
		logger.Warn("Failed to cache market quote", zap.Error(err))
	}

	return quote, nil
}

func (c *Client) fetchQuote(ctx context.Context, symbol string) (*models.MarketQuote, error) {
	params := url.Values{}
	params.Add("symbol", symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s?%s", c.endpoint, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create quote request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read quote response: %w", err)
	}

	var payload struct {
		Symbol        string  `json:"symbol"`
		Name          string  `json:"name"`
		CurrentPrice  float64 `json:"current_price"`
		PriceChange   float64 `json:"price_change"`
		PercentChange float64 `json:"percent_change"`
		Volume        int64   `json:"volume"`
		Sector        string  `json:"sector"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse quote response: %w", err)
	}

	logger.Debug("Market quote fetched", zap.String("symbol", symbol))

	return &models.MarketQuote{
		Symbol:        payload.Symbol,
		Name:          payload.Name,
		CurrentPrice:  payload.CurrentPrice,
		PriceChange:   payload.PriceChange,
		PercentChange: payload.PercentChange,
		Volume:        payload.Volume,
		Sector:        payload.Sector,
		Timestamp:     time.Now().UTC(),
	}, nil
}
