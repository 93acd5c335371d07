package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/cache"
	"github.com/rtirumala2025/InvestX-Labs/internal/metrics"
	"github.com/rtirumala2025/InvestX-Labs/internal/storage/models"
	"github.com/rtirumala2025/InvestX-Labs/internal/vector"
	"github.com/rtirumala2025/InvestX-Labs/pkg/config"
	"github.com/rtirumala2025/InvestX-Labs/pkg/logger"
	"github.com/rtirumala2025/InvestX-Labs/pkg/utils"
)

const (
	ModeSimilarity = "similarity"
	ModeMMR        = "mmr"
)

// Result is one ranked search hit. Relevance is 1 - index distance, clamped
// to [0,1]. Results are ephemeral and recomputed per query.
type Result struct {
	ContentID  string                 `json:"content_id"`
	Snippet    string                 `json:"snippet"`
	Metadata   map[string]interface{} `json:"metadata"`
	Relevance  float64                `json:"relevance"`
	Collection string                 `json:"collection"`
}

// Filters are exact-match or set-membership constraints on metadata fields,
// combined with AND semantics. Values are string or []string.
type Filters map[string]interface{}

// ContentGetter is the slice of the content store the engine needs for
// related-content lookups.
type ContentGetter interface {
	GetContentByID(ctx context.Context, id string) (*models.ContentItem, error)
}

// Engine wraps the vector index with threshold filtering and optional
// diversity-aware (MMR) re-ranking. Index or embedding failures degrade to
// an empty result set and are never surfaced to the caller.
type Engine struct {
	index      vector.Index
	cache      cache.Store
	contents   ContentGetter
	collection string

	threshold    float64
	maxResults   int
	mode         string
	mmrDiversity float64
	cacheTTL     time.Duration
}

func NewEngine(index vector.Index, cacheStore cache.Store, contents ContentGetter, collection string, cfg config.SearchConfig) *Engine {
	return &Engine{
		index:        index,
		cache:        cacheStore,
		contents:     contents,
		collection:   collection,
		threshold:    cfg.SimilarityThreshold,
		maxResults:   cfg.MaxResults,
		mode:         cfg.SearchType,
		mmrDiversity: cfg.MMRDiversity,
		cacheTTL:     cfg.CacheTTL,
	}
}

// Search runs the configured search mode. The returned sequence is ordered
// by descending relevance with ties broken by ascending content id.
func (e *Engine) Search(ctx context.Context, query string, filters Filters, limit int) []Result {
	if limit <= 0 {
		limit = e.maxResults
	}

	cacheKey := fmt.Sprintf("search:%s:%d:%s",
		utils.HashFields(query, fmt.Sprintf("%v", filters)), limit, e.mode)

	var cached []Result
	if hit, err := e.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		metrics.CacheHits.WithLabelValues("search").Inc()
		logger.Debug("Returning cached search results", zap.String("query", truncate(query, 50)))
		return cached
	}
	metrics.CacheMisses.WithLabelValues("search").Inc()

	var results []Result
	switch e.mode {
	case ModeMMR:
		results = e.mmrSearch(ctx, query, filters, limit)
	default:
		results = e.similaritySearch(ctx, query, filters, limit)
	}

	if err := e.cache.Set(ctx, cacheKey, results, e.cacheTTL); err != nil {
		logger.Warn("Failed to cache search results", zap.Error(err))
	}

	logger.Info("Vector search completed",
		zap.String("query", truncate(query, 50)),
		zap.String("mode", e.mode),
		zap.Int("results", len(results)),
	)

	return results
}

// SearchByProfile derives filters from the user profile (age bracket,
// experience-based difficulty ceiling, top-3 interests) and searches.
func (e *Engine) SearchByProfile(ctx context.Context, profile *models.UserProfile, query string, limit int) []Result {
	return e.Search(ctx, query, ProfileFilters(profile), limit)
}

// ProfileFilters maps a user profile onto search filters.
func ProfileFilters(profile *models.UserProfile) Filters {
	if profile == nil {
		return nil
	}

	filters := Filters{}

	switch {
	case profile.Age < 16:
		filters["target_age"] = "13-15"
	case profile.Age > 18:
		filters["target_age"] = "16-19"
	default:
		filters["target_age"] = []string{"13-15", "16-19", "all_teens"}
	}

	switch profile.ExperienceLevel {
	case models.DifficultyIntermediate:
		filters["difficulty_level"] = []string{models.DifficultyBeginner, models.DifficultyIntermediate}
	case models.DifficultyAdvanced:
		filters["difficulty_level"] = []string{models.DifficultyBeginner, models.DifficultyIntermediate, models.DifficultyAdvanced}
	default:
		filters["difficulty_level"] = models.DifficultyBeginner
	}

	if len(profile.Interests) > 0 {
		top := profile.Interests
		if len(top) > 3 {
			top = top[:3]
		}
		filters["category"] = append([]string(nil), top...)
	}

	return filters
}

// RelatedContent finds items similar to an existing one, excluding the item
// itself.
func (e *Engine) RelatedContent(ctx context.Context, contentID string, limit int) []Result {
	if e.contents == nil {
		return nil
	}

	item, err := e.contents.GetContentByID(ctx, contentID)
	if err != nil || item == nil {
		logger.Warn("Related content lookup failed", zap.String("content_id", contentID), zap.Error(err))
		return nil
	}

	query := item.Title + " " + truncate(item.Content, 500)
	results := e.Search(ctx, query, nil, limit+1)

	related := make([]Result, 0, limit)
	for _, r := range results {
		if r.ContentID == contentID {
			continue
		}
		related = append(related, r)
		if len(related) == limit {
			break
		}
	}
	return related
}

// Suggestions returns taxonomy topics matching a partial query prefix.
func (e *Engine) Suggestions(partial string, limit int) []string {
	prefix := strings.ToLower(strings.TrimSpace(partial))
	if prefix == "" {
		return nil
	}

	suggestions := make([]string, 0, limit)
	for _, topic := range models.Categories {
		if strings.HasPrefix(strings.ReplaceAll(topic, "_", " "), prefix) ||
			strings.HasPrefix(topic, prefix) {
			suggestions = append(suggestions, topic)
			if len(suggestions) == limit {
				break
			}
		}
	}
	return suggestions
}

func (e *Engine) similaritySearch(ctx context.Context, query string, filters Filters, limit int) []Result {
	pool := e.fetch(ctx, query, filters, limit*2)

	kept := make([]Result, 0, len(pool))
	for _, r := range pool {
		if r.Relevance >= e.threshold {
			kept = append(kept, r)
		}
	}

	sortResults(kept)
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

func (e *Engine) mmrSearch(ctx context.Context, query string, filters Filters, limit int) []Result {
	pool := e.fetch(ctx, query, filters, limit*3)
	sortResults(pool)
	return selectMMR(pool, limit, e.mmrDiversity)
}

// fetch queries the index and converts raw hits into results; any failure
// yields an empty pool.
func (e *Engine) fetch(ctx context.Context, query string, filters Filters, n int) []Result {
	raw, err := e.index.Search(ctx, e.collection, query, n, filters)
	if err != nil {
		logger.Warn("Vector index unavailable, returning empty results", zap.Error(err))
		return nil
	}

	results := make([]Result, 0, len(raw))
	for _, hit := range raw {
		if !matchesFilters(hit.Metadata, filters) {
			continue
		}
		results = append(results, Result{
			ContentID:  hit.ID,
			Snippet:    hit.Text,
			Metadata:   hit.Metadata,
			Relevance:  clamp01(1.0 - hit.Distance),
			Collection: e.collection,
		})
	}
	return results
}

// selectMMR greedily builds a diverse result set: the most relevant item
// first, then whichever candidate maximizes
// relevance - diversity*maxSimilarityToSelected. Output never repeats a
// content id and never exceeds limit.
func selectMMR(candidates []Result, limit int, diversity float64) []Result {
	if len(candidates) == 0 || limit <= 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(candidates))
	pool := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.ContentID]; dup {
			continue
		}
		seen[c.ContentID] = struct{}{}
		pool = append(pool, c)
	}

	selected := []Result{pool[0]}
	remaining := pool[1:]

	for len(selected) < limit && len(remaining) > 0 {
		bestIdx := 0
		bestScore := mmrScore(remaining[0], selected, diversity)

		for i := 1; i < len(remaining); i++ {
			score := mmrScore(remaining[i], selected, diversity)
			if score > bestScore ||
				(score == bestScore && remaining[i].ContentID < remaining[bestIdx].ContentID) {
				bestScore = score
				bestIdx = i
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

func mmrScore(candidate Result, selected []Result, diversity float64) float64 {
	maxSim := 0.0
	for _, s := range selected {
		if sim := MetadataSimilarity(candidate, s); sim > maxSim {
			maxSim = sim
		}
	}
	return candidate.Relevance - diversity*maxSim
}

// MetadataSimilarity is the cheap proxy for pairwise result similarity:
// weighted agreement on category (0.5), difficulty (0.3) and source (0.2).
func MetadataSimilarity(a, b Result) float64 {
	sim := 0.0
	if metaField(a, "category") == metaField(b, "category") {
		sim += 0.5
	}
	if metaField(a, "difficulty_level") == metaField(b, "difficulty_level") {
		sim += 0.3
	}
	if metaField(a, "source") == metaField(b, "source") {
		sim += 0.2
	}
	return sim
}

func matchesFilters(metadata map[string]interface{}, filters Filters) bool {
	for field, want := range filters {
		have, present := metadata[field]
		if !present {
			continue
		}
		haveStr, _ := have.(string)

		switch w := want.(type) {
		case string:
			if haveStr != w {
				return false
			}
		case []string:
			found := false
			for _, candidate := range w {
				if haveStr == candidate {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		return results[i].ContentID < results[j].ContentID
	})
}

func metaField(r Result, key string) string {
	if r.Metadata == nil {
		return ""
	}
	v, _ := r.Metadata[key].(string)
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
