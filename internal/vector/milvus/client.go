package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/embedding"
	"github.com/rtirumala2025/InvestX-Labs/internal/vector"
	"github.com/rtirumala2025/InvestX-Labs/pkg/config"
	"github.com/rtirumala2025/InvestX-Labs/pkg/logger"
)

var outputFields = []string{
	"content_id", "text", "title", "category",
	"difficulty_level", "target_age", "source", "keywords",
}

// Client implements vector.Index on Milvus. Query text is embedded through
// the shared embedding adapter before hitting the index.
type Client struct {
	client    client.Client
	embedder  embedding.Embedder
	vectorDim int
}

func NewClient(cfg config.VectorConfig, embedder embedding.Embedder) (*Client, error) {
	c, err := client.NewGrpcClient(context.Background(), cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("collection", cfg.CollectionName),
	)

	return &Client{
		client:    c,
		embedder:  embedder,
		vectorDim: cfg.VectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

// EnsureCollection creates and loads the content collection if absent.
func (m *Client) EnsureCollection(ctx context.Context, collection string) error {
	has, err := m.client.HasCollection(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		logger.Info("Collection already exists", zap.String("collection", collection))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: collection,
		Description:    "Educational content embeddings",
		Fields: []*entity.Field{
			{
				Name:       "content_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:       "text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "8192"},
			},
			{
				Name:       "title",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:       "category",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "difficulty_level",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "32"},
			},
			{
				Name:       "target_age",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "32"},
			},
			{
				Name:       "source",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "keywords",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "1024"},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := m.client.CreateIndex(ctx, collection, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", collection))
	return nil
}

func (m *Client) Add(ctx context.Context, collection string, doc vector.Document) error {
	vec, err := m.embedder.Embed(ctx, doc.Text)
	if err != nil {
		return fmt.Errorf("failed to embed document: %w", err)
	}

	keywordsJSON, _ := json.Marshal(metaStrings(doc.Metadata, "keywords"))

	_, err = m.client.Insert(
		ctx,
		collection,
		"",
		entity.NewColumnVarChar("content_id", []string{doc.ID}),
		entity.NewColumnFloatVector("embedding", m.vectorDim, [][]float32{vec}),
		entity.NewColumnVarChar("text", []string{doc.Text}),
		entity.NewColumnVarChar("title", []string{metaString(doc.Metadata, "title")}),
		entity.NewColumnVarChar("category", []string{metaString(doc.Metadata, "category")}),
		entity.NewColumnVarChar("difficulty_level", []string{metaString(doc.Metadata, "difficulty_level")}),
		entity.NewColumnVarChar("target_age", []string{metaString(doc.Metadata, "target_age")}),
		entity.NewColumnVarChar("source", []string{metaString(doc.Metadata, "source")}),
		entity.NewColumnVarChar("keywords", []string{string(keywordsJSON)}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	if err := m.client.Flush(ctx, collection, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Debug("Document indexed", zap.String("content_id", doc.ID))
	return nil
}

func (m *Client) Update(ctx context.Context, collection string, doc vector.Document) error {
	if err := m.Delete(ctx, collection, doc.ID); err != nil {
		return err
	}
	return m.Add(ctx, collection, doc)
}

func (m *Client) Delete(ctx context.Context, collection, id string) error {
	expr := fmt.Sprintf(`content_id == "%s"`, escapeExpr(id))
	if err := m.client.Delete(ctx, collection, "", expr); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (m *Client) Search(ctx context.Context, collection, queryText string, n int, filter map[string]interface{}) ([]vector.Result, error) {
	queryVec, err := m.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	expr := buildFilterExpr(filter)
	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		collection,
		[]string{},
		expr,
		outputFields,
		[]entity.Vector{entity.FloatVector(queryVec)},
		"embedding",
		entity.COSINE,
		n,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]vector.Result, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			metadata := make(map[string]interface{})
			var id, text string

			for _, field := range outputFields {
				col := sr.Fields.GetColumn(field)
				if col == nil {
					continue
				}
				raw, err := col.Get(i)
				if err != nil {
					continue
				}
				value, _ := raw.(string)
				switch field {
				case "content_id":
					id = value
				case "text":
					text = value
				case "keywords":
					var keywords []string
					if json.Unmarshal([]byte(value), &keywords) == nil {
						metadata["keywords"] = keywords
					}
				default:
					metadata[field] = value
				}
			}

			// COSINE scores are similarities; callers expect distances.
			results = append(results, vector.Result{
				ID:       id,
				Text:     text,
				Metadata: metadata,
				Distance: 1.0 - float64(sr.Scores[i]),
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("n", n),
		zap.Int("results", len(results)),
		zap.String("filter", expr),
	)

	return results, nil
}

func (m *Client) Stats(ctx context.Context, collection string) (vector.Stats, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, collection)
	if err != nil {
		return vector.Stats{}, fmt.Errorf("failed to get collection stats: %w", err)
	}

	var rows int64
	fmt.Sscanf(stats["row_count"], "%d", &rows)

	return vector.Stats{Collection: collection, RowCount: rows}, nil
}

// buildFilterExpr converts exact-match / set-membership filters into a
// Milvus boolean expression combined with AND semantics.
func buildFilterExpr(filter map[string]interface{}) string {
	if len(filter) == 0 {
		return ""
	}

	clauses := make([]string, 0, len(filter))
	for _, field := range []string{"category", "difficulty_level", "target_age", "source"} {
		value, ok := filter[field]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			clauses = append(clauses, fmt.Sprintf(`%s == "%s"`, field, escapeExpr(v)))
		case []string:
			if len(v) == 0 {
				continue
			}
			quoted := make([]string, len(v))
			for i, item := range v {
				quoted[i] = fmt.Sprintf(`"%s"`, escapeExpr(item))
			}
			clauses = append(clauses, fmt.Sprintf(`%s in [%s]`, field, strings.Join(quoted, ", ")))
		}
	}

	return strings.Join(clauses, " && ")
}

func escapeExpr(s string) string {
	return strings.ReplaceAll(s, `"`, ``)
}

func metaString(metadata map[string]interface{}, key string) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}

func metaStrings(metadata map[string]interface{}, key string) []string {
	if metadata == nil {
		return nil
	}
	if v, ok := metadata[key].([]string); ok {
		return v
	}
	return nil
}
