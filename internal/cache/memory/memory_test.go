package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Score float64
	}

	require.NoError(t, store.Set(ctx, "k1", payload{Name: "stocks", Score: 0.9}, time.Minute))

	var got payload
	hit, err := store.Get(ctx, "k1", &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "stocks", got.Name)
	assert.InDelta(t, 0.9, got.Score, 1e-9)

	t.Run("absent key", func(t *testing.T) {
		var out payload
		hit, err := store.Get(ctx, "missing", &out)
		require.NoError(t, err)
		assert.False(t, hit)
	})
}

// TestExpiry steps a fake clock past the TTL and checks expired entries
// behave exactly like absent keys.
func TestExpiry(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := NewStoreWithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k1", "value", time.Minute))

	var out string
	hit, err := store.Get(ctx, "k1", &out)
	require.NoError(t, err)
	require.True(t, hit)

	now = now.Add(time.Minute)

	hit, err = store.Get(ctx, "k1", &out)
	require.NoError(t, err)
	assert.False(t, hit, "entry at its deadline is a miss")

	exists, err := store.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestZeroTTLNeverExpires(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := NewStoreWithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k1", "value", 0))
	now = now.Add(1000 * time.Hour)

	var out string
	hit, err := store.Get(ctx, "k1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestDelete(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k1", "value", time.Minute))
	require.NoError(t, store.Delete(ctx, "k1"))

	exists, err := store.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIncrement(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := NewStoreWithClock(func() time.Time { return now })
	ctx := context.Background()

	n, err := store.Increment(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.Increment(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	t.Run("expired counter restarts", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		n, err := store.Increment(ctx, "counter", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestClearPattern(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "recommendations:u1:10", "a", time.Minute))
	require.NoError(t, store.Set(ctx, "recommendations:u1:20", "b", time.Minute))
	require.NoError(t, store.Set(ctx, "recommendations:u2:10", "c", time.Minute))

	deleted, err := store.ClearPattern(ctx, "recommendations:u1:*")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	exists, err := store.Exists(ctx, "recommendations:u2:10")
	require.NoError(t, err)
	assert.True(t, exists)

	t.Run("bad pattern", func(t *testing.T) {
		_, err := store.ClearPattern(ctx, "recommendations:[")
		assert.Error(t, err)
	})
}

func TestIncrement_ReplacesNonCounterEntry(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", map[string]string{"a": "b"}, time.Minute))

	n, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var got int64
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), got)
}
