package recommend

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
	"github.com/rtirumala2025/InvestX-Labs/internal/storage/sqlite"
	"github.com/rtirumala2025/InvestX-Labs/pkg/config"
	"github.com/rtirumala2025/InvestX-Labs/pkg/logger"
)

// Factor names, in weight order.
const (
	FactorInterest   = "interest"
	FactorExperience = "experience"
	FactorPopularity = "popularity"
	FactorFreshness  = "freshness"
	FactorEngagement = "engagement"
)

// FactorValue is one factor's raw value before weighting.
type FactorValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Candidate is a scored recommendation. Ephemeral, recomputed per request.
type Candidate struct {
	Content       models.ContentItem `json:"content"`
	Score         float64            `json:"score"`
	Factors       []FactorValue      `json:"factors"`
	Justification string             `json:"justification"`
}

// ContentStore is the slice of the content store the engine reads.
type ContentStore interface {
	GetContent(ctx context.Context, filters sqlite.ContentFilters, limit int) ([]models.ContentItem, error)
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	GetEngagement(ctx context.Context, userID string, days int) (*models.EngagementRecord, error)
	UpdateUserInterests(ctx context.Context, userID string, interests []string) error
}

// Engine ranks content for a user by a weighted blend of interest,
// experience fit, popularity, freshness and recent engagement. A missing or
// malformed profile falls back to a generic beginner set; callers always get
// a list, never an error.
type Engine struct {
	store ContentStore
	cache cache.Store

	weights        map[string]float64
	minScore       float64
	engagementDays int
	cacheTTL       time.Duration
	now            func() time.Time
}

func NewEngine(store ContentStore, cacheStore cache.Store, cfg config.RecommendConfig) *Engine {
	return &Engine{
		store: store,
		cache: cacheStore,
		weights: map[string]float64{
			FactorInterest:   cfg.InterestWeight,
			FactorExperience: cfg.ExperienceWeight,
			FactorPopularity: cfg.PopularityWeight,
			FactorFreshness:  cfg.FreshnessWeight,
			FactorEngagement: cfg.EngagementWeight,
		},
		minScore:       cfg.MinScore,
		engagementDays: cfg.EngagementDays,
		cacheTTL:       cfg.CacheTTL,
		now:            time.Now,
	}
}

// NewEngineWithClock pins the freshness clock for tests.
func NewEngineWithClock(store ContentStore, cacheStore cache.Store, cfg config.RecommendConfig, now func() time.Time) *Engine {
	e := NewEngine(store, cacheStore, cfg)
	e.now = now
	return e
}

// GetPersonalized returns up to limit ranked recommendations for the user.
// Profile or cache failures degrade to the default beginner set.
func (e *Engine) GetPersonalized(ctx context.Context, userID string, limit int) []Candidate {
	if limit <= 0 {
		limit = 10
	}

	cacheKey := fmt.Sprintf("recommendations:%s:%d", userID, limit)

	var cached []Candidate
	if hit, err := e.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		metrics.CacheHits.WithLabelValues("recommendations").Inc()
		logger.Debug("Returning cached recommendations", zap.String("user_id", userID))
		return cached
	}
	metrics.CacheMisses.WithLabelValues("recommendations").Inc()

	profile, err := e.store.GetUserProfile(ctx, userID)
	if err != nil {
		logger.Warn("Failed to load user profile",
			zap.String("user_id", userID), zap.Error(err))
		return e.defaultRecommendations(ctx, limit)
	}
	if profile == nil || profile.Validate() != nil {
		logger.Warn("Missing or invalid profile, using defaults",
			zap.String("user_id", userID))
		return e.defaultRecommendations(ctx, limit)
	}

	engagement, err := e.store.GetEngagement(ctx, userID, e.engagementDays)
	if err != nil {
		logger.Warn("Failed to load engagement, scoring without it",
			zap.String("user_id", userID), zap.Error(err))
		engagement = nil
	}

	candidates := e.generate(ctx, profile, engagement, limit)
	if len(candidates) == 0 {
		return e.defaultRecommendations(ctx, limit)
	}

	if err := e.cache.Set(ctx, cacheKey, candidates, e.cacheTTL); err != nil {
		logger.Warn("Failed to cache recommendations", zap.Error(err))
	}

	logger.Info("Generated recommendations",
		zap.String("user_id", userID), zap.Int("count", len(candidates)))
	return candidates
}

func (e *Engine) generate(ctx context.Context, profile *models.UserProfile,
	engagement *models.EngagementRecord, limit int) []Candidate {
	content, err := e.store.GetContent(ctx, sqlite.ContentFilters{}, 100)
	if err != nil {
		logger.Warn("Failed to load content for scoring", zap.Error(err))
		return nil
	}

	candidates := make([]Candidate, 0, len(content))
	for _, item := range content {
		score, factors := e.Score(item, profile, engagement)
		if score < e.minScore {
			continue
		}
		candidates = append(candidates, Candidate{
			Content:       item,
			Score:         score,
			Factors:       factors,
			Justification: e.justify(factors, item, profile),
		})
	}

	sortCandidates(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// Score computes the weighted composite for one item, capped at 1.0. The
// returned factors are the raw per-factor values in weight order.
func (e *Engine) Score(item models.ContentItem, profile *models.UserProfile,
	engagement *models.EngagementRecord) (float64, []FactorValue) {
	factors := []FactorValue{
		{FactorInterest, interestScore(item, profile)},
		{FactorExperience, experienceScore(item, profile)},
		{FactorPopularity, popularityScore(item)},
		{FactorFreshness, freshnessScore(item, e.now())},
		{FactorEngagement, engagementScore(item, engagement)},
	}

	total := 0.0
	for _, f := range factors {
		total += f.Value * e.weights[f.Name]
	}
	if total > 1.0 {
		total = 1.0
	}
	return total, factors
}

// interestScore blends an exact category match (0.7) with the fraction of
// content keywords the user's interests cover (0.3).
func interestScore(item models.ContentItem, profile *models.UserProfile) float64 {
	if profile == nil || len(profile.Interests) == 0 {
		return 0.5
	}

	interests := make(map[string]struct{}, len(profile.Interests))
	for _, interest := range profile.Interests {
		interests[strings.ToLower(interest)] = struct{}{}
	}

	categoryMatch := 0.0
	if _, ok := interests[strings.ToLower(item.Category)]; ok {
		categoryMatch = 1.0
	}

	keywordScore := 0.0
	if len(item.Keywords) > 0 {
		matches := 0
		for _, keyword := range item.Keywords {
			if _, ok := interests[strings.ToLower(keyword)]; ok {
				matches++
			}
		}
		keywordScore = float64(matches) / float64(len(item.Keywords))
	}

	return categoryMatch*0.7 + keywordScore*0.3
}

// experienceScore maps the ordinal distance between user level and content
// difficulty onto a fixed scale. A perfect match scores 1.0, one level up
// 0.8, one level down 0.6, more than one up 0.2, more than one down 0.4.
func experienceScore(item models.ContentItem, profile *models.UserProfile) float64 {
	userLevel := models.DifficultyRank(models.DifficultyBeginner)
	if profile != nil {
		userLevel = models.DifficultyRank(profile.ExperienceLevel)
	}
	contentLevel := models.DifficultyRank(item.DifficultyLevel)

	switch contentLevel - userLevel {
	case 0:
		return 1.0
	case 1:
		return 0.8
	case -1:
		return 0.6
	default:
		if contentLevel > userLevel {
			return 0.2
		}
		return 0.4
	}
}

func popularityScore(item models.ContentItem) float64 {
	return item.QualityScore / 10.0
}

// freshnessScore steps down with content age.
func freshnessScore(item models.ContentItem, now time.Time) float64 {
	if item.CreatedAt.IsZero() {
		return 0.5
	}

	days := int(now.Sub(item.CreatedAt).Hours() / 24)
	switch {
	case days < 7:
		return 1.0
	case days < 30:
		return 0.8
	case days < 90:
		return 0.6
	case days < 365:
		return 0.4
	default:
		return 0.2
	}
}

// engagementScore accumulates partial credit for mentions of the item's
// category (0.3 each) and keywords (0.1 each) in the user's recent
// conversation text, capped at 1.0. No history means no credit.
func engagementScore(item models.ContentItem, engagement *models.EngagementRecord) float64 {
	if engagement == nil || len(engagement.Messages) == 0 {
		return 0.0
	}

	category := strings.ToLower(item.Category)
	score := 0.0
	for _, message := range engagement.Messages {
		text := strings.ToLower(message)
		if category != "" && strings.Contains(text, category) {
			score += 0.3
		}
		for _, keyword := range item.Keywords {
			if strings.Contains(text, strings.ToLower(keyword)) {
				score += 0.1
			}
		}
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}

// justify names the top two weighted contributors in reader-friendly terms.
func (e *Engine) justify(factors []FactorValue, item models.ContentItem, profile *models.UserProfile) string {
	type contribution struct {
		name   string
		amount float64
	}
	contributions := make([]contribution, 0, len(factors))
	for _, f := range factors {
		contributions = append(contributions, contribution{f.Name, f.Value * e.weights[f.Name]})
	}
	sort.SliceStable(contributions, func(i, j int) bool {
		return contributions[i].amount > contributions[j].amount
	})

	var reasons []string
	for _, c := range contributions {
		if len(reasons) == 2 || c.amount <= 0 {
			break
		}
		switch c.name {
		case FactorInterest:
			reasons = append(reasons, fmt.Sprintf("matches your interest in %s", item.Category))
		case FactorExperience:
			level := models.DifficultyBeginner
			if profile != nil && profile.ExperienceLevel != "" {
				level = profile.ExperienceLevel
			}
			reasons = append(reasons, fmt.Sprintf("fits your %s level", level))
		case FactorPopularity:
			reasons = append(reasons, "high-quality educational content")
		case FactorFreshness:
			reasons = append(reasons, "recently added")
		case FactorEngagement:
			reasons = append(reasons, "similar to what you've been exploring")
		}
	}

	if len(reasons) == 0 {
		return "Recommended because it is relevant to your learning goals"
	}
	return "Recommended because it " + strings.Join(reasons, ", ")
}

// defaultRecommendations is the profile-agnostic fallback: beginner basics
// at a flat 0.7 score.
func (e *Engine) defaultRecommendations(ctx context.Context, limit int) []Candidate {
	content, err := e.store.GetContent(ctx, sqlite.ContentFilters{
		Category:   "basics",
		Difficulty: models.DifficultyBeginner,
	}, limit)
	if err != nil {
		logger.Warn("Failed to load default content", zap.Error(err))
		return []Candidate{}
	}

	candidates := make([]Candidate, 0, len(content))
	for _, item := range content {
		candidates = append(candidates, Candidate{
			Content:       item,
			Score:         0.7,
			Justification: "Popular beginner content to get you started",
		})
	}
	return candidates
}

// Trending ranks recent content by quality (0.4), freshness (0.4) and teen
// relevance (0.2), keeping only items above 0.5.
func (e *Engine) Trending(ctx context.Context, period string, limit int) []Candidate {
	if limit <= 0 {
		limit = 10
	}

	cacheKey := fmt.Sprintf("trending:%s:%d", period, limit)

	var cached []Candidate
	if hit, err := e.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return cached
	}

	content, err := e.store.GetContent(ctx, sqlite.ContentFilters{}, 50)
	if err != nil {
		logger.Warn("Failed to load content for trending", zap.Error(err))
		return []Candidate{}
	}

	now := e.now()
	candidates := make([]Candidate, 0, len(content))
	for _, item := range content {
		score := item.QualityScore/10.0*0.4 +
			freshnessScore(item, now)*0.4 +
			item.RelevanceScore/10.0*0.2
		if score <= 0.5 {
			continue
		}
		candidates = append(candidates, Candidate{
			Content:       item,
			Score:         score,
			Justification: trendingReason(item, now),
		})
	}

	sortCandidates(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	if err := e.cache.Set(ctx, cacheKey, candidates, 30*time.Minute); err != nil {
		logger.Warn("Failed to cache trending content", zap.Error(err))
	}
	return candidates
}

func trendingReason(item models.ContentItem, now time.Time) string {
	var reasons []string
	if item.QualityScore >= 8 {
		reasons = append(reasons, "high quality")
	}
	if !item.CreatedAt.IsZero() && now.Sub(item.CreatedAt) < 7*24*time.Hour {
		reasons = append(reasons, "recently added")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "popular with teens")
	}
	return "Trending because it's " + strings.Join(reasons, " and ")
}

// UpdateUserInterests merges new interests into the profile and invalidates
// every cached recommendation list for the user.
func (e *Engine) UpdateUserInterests(ctx context.Context, userID string, newInterests []string) error {
	profile, err := e.store.GetUserProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		return fmt.Errorf("no profile for user %s", userID)
	}

	seen := make(map[string]struct{}, len(profile.Interests))
	merged := make([]string, 0, len(profile.Interests)+len(newInterests))
	for _, interest := range append(append([]string{}, profile.Interests...), newInterests...) {
		if _, dup := seen[interest]; dup {
			continue
		}
		seen[interest] = struct{}{}
		merged = append(merged, interest)
	}

	if err := e.store.UpdateUserInterests(ctx, userID, merged); err != nil {
		return fmt.Errorf("failed to update interests: %w", err)
	}

	pattern := fmt.Sprintf("recommendations:%s:*", userID)
	if _, err := e.cache.ClearPattern(ctx, pattern); err != nil {
		logger.Warn("Failed to invalidate recommendation cache",
			zap.String("user_id", userID), zap.Error(err))
	}

	logger.Info("User interests updated",
		zap.String("user_id", userID), zap.Int("interests", len(merged)))
	return nil
}

// sortCandidates orders by descending score, ties broken by ascending
// content id.
func sortCandidates(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Content.ID < candidates[j].Content.ID
	})
}
