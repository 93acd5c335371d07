package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtirumala2025/InvestX-Labs/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, client.InitSchema())
	t.Cleanup(func() { client.Close() })
	return client
}

func seedProfile(t *testing.T, c *Client, userID string, interests string) {
	t.Helper()
	_, err := c.db.Exec(`
		INSERT INTO user_profiles (user_id, age, experience_level, interests, risk_tolerance, budget_range, updated_at)
		VALUES (?, 15, 'beginner', ?, 'low', '0-100', ?)`,
		userID, interests, time.Now().Unix())
	require.NoError(t, err)
}

func TestContentRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	item := &models.ContentItem{
		ID:              "c1",
		Title:           "What Are Stocks",
		Content:         "A stock is a share of ownership.",
		Summary:         "Stocks explained.",
		Category:        "stocks",
		DifficultyLevel: models.DifficultyBeginner,
		TargetAge:       "13-19",
		Source:          "investopedia",
		URL:             "https://example.com/stocks",
		Keywords:        []string{"stock", "share"},
		QualityScore:    8.5,
		CreatedAt:       time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, client.InsertContent(ctx, item))

	got, err := client.GetContentByID(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "What Are Stocks", got.Title)
	assert.Equal(t, []string{"stock", "share"}, got.Keywords)
	assert.InDelta(t, 8.5, got.QualityScore, 1e-9)
	assert.Equal(t, item.CreatedAt.Unix(), got.CreatedAt.Unix())

	t.Run("unknown id", func(t *testing.T) {
		got, err := client.GetContentByID(ctx, "ghost")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestGetContent_Filters(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UTC()

	items := []*models.ContentItem{
		{ID: "c1", Title: "t1", Content: "x", Category: "stocks",
			DifficultyLevel: models.DifficultyBeginner, CreatedAt: now},
		{ID: "c2", Title: "t2", Content: "x", Category: "stocks",
			DifficultyLevel: models.DifficultyAdvanced, CreatedAt: now},
		{ID: "c3", Title: "t3", Content: "x", Category: "bonds",
			DifficultyLevel: models.DifficultyBeginner, CreatedAt: now},
	}
	for _, item := range items {
		require.NoError(t, client.InsertContent(ctx, item))
	}

	t.Run("by category", func(t *testing.T) {
		got, err := client.GetContent(ctx, ContentFilters{Category: "stocks"}, 10)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("category and difficulty", func(t *testing.T) {
		got, err := client.GetContent(ctx, ContentFilters{
			Category: "stocks", Difficulty: models.DifficultyBeginner,
		}, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "c1", got[0].ID)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := client.GetContent(ctx, ContentFilters{}, 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestUserProfile(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	seedProfile(t, client, "u1", `["stocks","bonds"]`)

	profile, err := client.GetUserProfile(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, 15, profile.Age)
	assert.Equal(t, []string{"stocks", "bonds"}, profile.Interests)

	t.Run("missing profile is nil", func(t *testing.T) {
		profile, err := client.GetUserProfile(ctx, "ghost")
		require.NoError(t, err)
		assert.Nil(t, profile)
	})

	t.Run("update interests", func(t *testing.T) {
		require.NoError(t, client.UpdateUserInterests(ctx, "u1", []string{"stocks", "bonds", "etfs"}))
		profile, err := client.GetUserProfile(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"stocks", "bonds", "etfs"}, profile.Interests)
	})

	t.Run("update without profile errors", func(t *testing.T) {
		assert.Error(t, client.UpdateUserInterests(ctx, "ghost", []string{"stocks"}))
	})
}

func TestEngagement(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.RecordEngagement(ctx, "u1", "tell me about stocks"))
	require.NoError(t, client.RecordEngagement(ctx, "u1", "what are dividends"))
	require.NoError(t, client.RecordEngagement(ctx, "u2", "other user"))

	record, err := client.GetEngagement(ctx, "u1", 7)
	require.NoError(t, err)
	assert.Equal(t, 2, record.TotalEvents)
	assert.Len(t, record.Messages, 2)
	assert.False(t, record.LastActivity.IsZero())

	t.Run("old events excluded", func(t *testing.T) {
		old := time.Now().AddDate(0, 0, -30).Unix()
		_, err := client.db.Exec(
			`INSERT INTO engagement_events (user_id, message, created_at) VALUES ('u1', 'ancient', ?)`, old)
		require.NoError(t, err)

		record, err := client.GetEngagement(ctx, "u1", 7)
		require.NoError(t, err)
		assert.Equal(t, 2, record.TotalEvents)
	})
}

func TestGetRecentNews(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	insert := func(id, title string, published time.Time) {
		_, err := client.db.Exec(`
			INSERT INTO news_articles (id, title, summary, url, source, keywords, published)
			VALUES (?, ?, 'summary', 'https://example.com', 'wire', '["market"]', ?)`,
			id, title, published.Unix())
		require.NoError(t, err)
	}

	now := time.Now().UTC()
	insert("n1", "older", now.Add(-2*time.Hour))
	insert("n2", "newest", now)
	insert("n3", "oldest", now.Add(-4*time.Hour))

	articles, err := client.GetRecentNews(ctx, 2)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "newest", articles[0].Title)
	assert.Equal(t, "older", articles[1].Title)
	assert.Equal(t, []string{"market"}, articles[0].Keywords)
}
