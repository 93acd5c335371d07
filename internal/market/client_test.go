package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtirumala2025/InvestX-Labs/internal/cache/memory"
	"github.com/rtirumala2025/InvestX-Labs/pkg/config"
)

func quoteServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		symbol := r.URL.Query().Get("symbol")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"symbol":         symbol,
			"name":           symbol + " Inc",
			"current_price":  187.32,
			"price_change":   1.84,
			"percent_change": 0.99,
			"volume":         52000000,
			"sector":         "Technology",
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGetQuote(t *testing.T) {
	var hits int32
	server := quoteServer(t, &hits)

	client := NewClient(config.MarketConfig{
		QuoteEndpoint: server.URL,
		TimeoutSec:    2,
		CacheTTL:      time.Minute,
	}, memory.NewStore())

	quote, err := client.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, "AAPL Inc", quote.Name)
	assert.InDelta(t, 187.32, quote.CurrentPrice, 1e-9)
	assert.False(t, quote.Timestamp.IsZero())
}

// TestGetQuote_CacheHit verifies the second request within the TTL is served
// from the cache without a network round trip.
func TestGetQuote_CacheHit(t *testing.T) {
	var hits int32
	server := quoteServer(t, &hits)

	client := NewClient(config.MarketConfig{
		QuoteEndpoint: server.URL,
		TimeoutSec:    2,
		CacheTTL:      time.Minute,
	}, memory.NewStore())

	ctx := context.Background()
	_, err := client.GetQuote(ctx, "TSLA")
	require.NoError(t, err)

	cached, err := client.GetQuote(ctx, "TSLA")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, "TSLA", cached.Symbol)
}

func TestGetQuote_NoEndpoint(t *testing.T) {
	client := NewClient(config.MarketConfig{}, memory.NewStore())

	_, err := client.GetQuote(context.Background(), "AAPL")
	assert.Error(t, err)
}

func TestGetQuote_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client := NewClient(config.MarketConfig{
		QuoteEndpoint: server.URL,
		TimeoutSec:    2,
		CacheTTL:      time.Minute,
	}, memory.NewStore())

	_, err := client.GetQuote(context.Background(), "AAPL")
	assert.Error(t, err)
}
