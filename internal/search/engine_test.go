package search

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtirumala2025/InvestX-Labs/internal/cache/memory"
	"github.com/rtirumala2025/InvestX-Labs/internal/storage/models"
	"github.com/rtirumala2025/InvestX-Labs/internal/vector"
	"github.com/rtirumala2025/InvestX-Labs/pkg/config"
)

// stubIndex is a canned vector.Index. Distance is 1 - relevance so hits come
// back with the relevance the test wants.
type stubIndex struct {
	hits  []vector.Result
	err   error
	calls int
}

func (s *stubIndex) Add(ctx context.Context, collection string, doc vector.Document) error {
	return nil
}

func (s *stubIndex) Search(ctx context.Context, collection, queryText string, n int, filter map[string]interface{}) ([]vector.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

func (s *stubIndex) Update(ctx context.Context, collection string, doc vector.Document) error {
	return nil
}

func (s *stubIndex) Delete(ctx context.Context, collection, id string) error {
	return nil
}

func (s *stubIndex) Stats(ctx context.Context, collection string) (vector.Stats, error) {
	return vector.Stats{}, nil
}

func hit(id string, relevance float64, category, difficulty, source string) vector.Result {
	return vector.Result{
		ID:       id,
		Text:     "content for " + id,
		Distance: 1.0 - relevance,
		Metadata: map[string]interface{}{
			"category":         category,
			"difficulty_level": difficulty,
			"source":           source,
		},
	}
}

func newTestEngine(index vector.Index, mode string) *Engine {
	return NewEngine(index, memory.NewStore(), nil, "educational_content", config.SearchConfig{
		SimilarityThreshold: 0.7,
		MaxResults:          10,
		SearchType:          mode,
		MMRDiversity:        0.3,
		CacheTTL:            0,
	})
}

// TestSearch_ThresholdFiltering verifies that hits below the similarity
// threshold are dropped and the rest come back ordered by relevance.
func TestSearch_ThresholdFiltering(t *testing.T) {
	index := &stubIndex{hits: []vector.Result{
		hit("c1", 0.9, "stocks", "beginner", "investopedia"),
		hit("c2", 0.75, "stocks", "beginner", "investopedia"),
		hit("c3", 0.6, "bonds", "beginner", "investopedia"),
		hit("c4", 0.5, "etfs", "beginner", "investopedia"),
		hit("c5", 0.4, "basics", "beginner", "investopedia"),
	}}
	engine := newTestEngine(index, ModeSimilarity)

	results := engine.Search(context.Background(), "what are stocks", nil, 10)

	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].ContentID)
	assert.Equal(t, "c2", results[1].ContentID)
	assert.InDelta(t, 0.9, results[0].Relevance, 1e-9)
	assert.InDelta(t, 0.75, results[1].Relevance, 1e-9)
}

// TestSearch_TieBreakByContentID verifies equal relevances order by
// ascending content id.
func TestSearch_TieBreakByContentID(t *testing.T) {
	index := &stubIndex{hits: []vector.Result{
		hit("c9", 0.8, "stocks", "beginner", "a"),
		hit("c1", 0.8, "bonds", "beginner", "a"),
		hit("c5", 0.8, "etfs", "beginner", "a"),
	}}
	engine := newTestEngine(index, ModeSimilarity)

	results := engine.Search(context.Background(), "investing", nil, 10)

	require.Len(t, results, 3)
	assert.Equal(t, "c1", results[0].ContentID)
	assert.Equal(t, "c5", results[1].ContentID)
	assert.Equal(t, "c9", results[2].ContentID)
}

// TestSearch_IndexFailureDegrades verifies an index outage yields an empty
// result set, never an error or panic.
func TestSearch_IndexFailureDegrades(t *testing.T) {
	index := &stubIndex{err: fmt.Errorf("connection refused")}
	engine := newTestEngine(index, ModeSimilarity)

	results := engine.Search(context.Background(), "what are stocks", nil, 5)

	assert.Empty(t, results)
}

// TestSearch_CachedResultsSkipIndex verifies a repeat query within the TTL
// never touches the index again.
func TestSearch_CachedResultsSkipIndex(t *testing.T) {
	index := &stubIndex{hits: []vector.Result{
		hit("c1", 0.9, "stocks", "beginner", "investopedia"),
	}}
	engine := newTestEngine(index, ModeSimilarity)

	first := engine.Search(context.Background(), "what are stocks", nil, 5)
	second := engine.Search(context.Background(), "what are stocks", nil, 5)

	assert.Equal(t, 1, index.calls)
	assert.Equal(t, first, second)
}

// TestSearch_FilterSemantics verifies string and set-membership filters both
// apply with AND semantics.
func TestSearch_FilterSemantics(t *testing.T) {
	index := &stubIndex{hits: []vector.Result{
		hit("c1", 0.9, "stocks", "beginner", "a"),
		hit("c2", 0.85, "stocks", "advanced", "a"),
		hit("c3", 0.8, "bonds", "beginner", "a"),
	}}
	engine := newTestEngine(index, ModeSimilarity)

	results := engine.Search(context.Background(), "investing", Filters{
		"category":         "stocks",
		"difficulty_level": []string{"beginner", "intermediate"},
	}, 10)

	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ContentID)
}

// TestMMRSearch_PrefersDiverseResults reproduces the diversity trade-off: a
// lower-relevance hit from a different category beats a near-duplicate of
// the top result.
func TestMMRSearch_PrefersDiverseResults(t *testing.T) {
	index := &stubIndex{hits: []vector.Result{
		hit("d1", 0.90, "diversification", "beginner", "investopedia"),
		hit("d2", 0.85, "diversification", "beginner", "investopedia"),
		hit("d3", 0.80, "diversification", "beginner", "investopedia"),
		hit("b1", 0.70, "bonds", "intermediate", "khan_academy"),
	}}
	engine := newTestEngine(index, ModeMMR)

	results := engine.Search(context.Background(), "how to diversify", nil, 2)

	require.Len(t, results, 2)
	assert.Equal(t, "d1", results[0].ContentID)
	assert.Equal(t, "b1", results[1].ContentID)
}

// TestSelectMMR_NoDuplicatesAndLimit exercises the two structural MMR
// guarantees directly.
func TestSelectMMR_NoDuplicatesAndLimit(t *testing.T) {
	candidates := []Result{
		{ContentID: "a", Relevance: 0.9},
		{ContentID: "a", Relevance: 0.9},
		{ContentID: "b", Relevance: 0.8},
		{ContentID: "c", Relevance: 0.7},
		{ContentID: "d", Relevance: 0.6},
	}

	selected := selectMMR(candidates, 3, 0.3)

	require.Len(t, selected, 3)
	seen := make(map[string]struct{})
	for _, r := range selected {
		_, dup := seen[r.ContentID]
		assert.False(t, dup, "content id %s selected twice", r.ContentID)
		seen[r.ContentID] = struct{}{}
	}
}

func TestSelectMMR_EmptyAndZeroLimit(t *testing.T) {
	assert.Nil(t, selectMMR(nil, 3, 0.3))
	assert.Nil(t, selectMMR([]Result{{ContentID: "a"}}, 0, 0.3))
}

// TestMetadataSimilarity checks the 0.5/0.3/0.2 field weighting.
func TestMetadataSimilarity(t *testing.T) {
	base := Result{Metadata: map[string]interface{}{
		"category": "stocks", "difficulty_level": "beginner", "source": "a",
	}}

	tests := []struct {
		name string
		meta map[string]interface{}
		want float64
	}{
		{"identical", map[string]interface{}{"category": "stocks", "difficulty_level": "beginner", "source": "a"}, 1.0},
		{"category only", map[string]interface{}{"category": "stocks", "difficulty_level": "advanced", "source": "b"}, 0.5},
		{"difficulty only", map[string]interface{}{"category": "bonds", "difficulty_level": "beginner", "source": "b"}, 0.3},
		{"source only", map[string]interface{}{"category": "bonds", "difficulty_level": "advanced", "source": "a"}, 0.2},
		{"nothing shared", map[string]interface{}{"category": "bonds", "difficulty_level": "advanced", "source": "b"}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MetadataSimilarity(base, Result{Metadata: tt.meta}), 1e-9)
		})
	}
}

// TestProfileFilters covers the age bracket, difficulty ceiling and
// top-interest mappings.
func TestProfileFilters(t *testing.T) {
	t.Run("nil profile", func(t *testing.T) {
		assert.Nil(t, ProfileFilters(nil))
	})

	t.Run("young beginner", func(t *testing.T) {
		filters := ProfileFilters(&models.UserProfile{
			Age:             14,
			ExperienceLevel: models.DifficultyBeginner,
			Interests:       []string{"stocks"},
		})
		assert.Equal(t, "13-15", filters["target_age"])
		assert.Equal(t, models.DifficultyBeginner, filters["difficulty_level"])
		assert.Equal(t, []string{"stocks"}, filters["category"])
	})

	t.Run("advanced gets full difficulty range", func(t *testing.T) {
		filters := ProfileFilters(&models.UserProfile{
			Age:             17,
			ExperienceLevel: models.DifficultyAdvanced,
			Interests:       []string{"stocks", "bonds", "etfs", "portfolio"},
		})
		assert.Equal(t, []string{"13-15", "16-19", "all_teens"}, filters["target_age"])
		assert.Equal(t,
			[]string{models.DifficultyBeginner, models.DifficultyIntermediate, models.DifficultyAdvanced},
			filters["difficulty_level"])
		assert.Equal(t, []string{"stocks", "bonds", "etfs"}, filters["category"], "interests cap at 3")
	})
}

func TestSuggestions(t *testing.T) {
	engine := newTestEngine(&stubIndex{}, ModeSimilarity)

	t.Run("prefix match", func(t *testing.T) {
		got := engine.Suggestions("sto", 5)
		assert.Equal(t, []string{"stocks"}, got)
	})

	t.Run("underscore topics match with spaces", func(t *testing.T) {
		got := engine.Suggestions("risk", 5)
		assert.Contains(t, got, "risk_management")
	})

	t.Run("empty partial", func(t *testing.T) {
		assert.Nil(t, engine.Suggestions("   ", 5))
	})

	t.Run("limit respected", func(t *testing.T) {
		got := engine.Suggestions("b", 1)
		assert.Len(t, got, 1)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc", truncate("abcdef", 3))

	got := truncate(strings.Repeat("é", 10), 5)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 5), got)
}
