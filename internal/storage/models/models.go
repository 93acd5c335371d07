package models

import (
	"fmt"
	"time"
)

// Difficulty levels form an ordinal scale used by the recommendation
// experience factor.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// DifficultyRank maps a difficulty level onto its ordinal position.
// Unknown values rank as beginner.
func DifficultyRank(level string) int {
	switch level {
	case DifficultyIntermediate:
		return 2
	case DifficultyAdvanced:
		return 3
	default:
		return 1
	}
}

// Categories is the fixed content taxonomy. Interests, content categories
// and topic detection all draw from this list.
var Categories = []string{
	"stocks",
	"bonds",
	"etfs",
	"index_funds",
	"diversification",
	"risk_management",
	"compound_interest",
	"portfolio",
	"savings",
	"budgeting",
	"retirement",
	"tax_implications",
	"market_analysis",
	"basics",
}

func IsKnownCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// ContentItem is an analyzed piece of educational content. Items are
// immutable after analysis; re-analysis writes a new version under a new id.
type ContentItem struct {
	ID               string
	Title            string
	Content          string
	Summary          string
	Category         string
	DifficultyLevel  string
	TargetAge        string
	Source           string
	URL              string
	Keywords         []string
	QualityScore     float64
	RelevanceScore   float64
	EducationalScore float64
	CreatedAt        time.Time
}

// UserProfile is owned by the profile service; this engine only reads it.
type UserProfile struct {
	UserID          string
	Age             int
	ExperienceLevel string
	Interests       []string
	RiskTolerance   string
	BudgetRange     string
}

// Validate checks the bounds the profile service is supposed to guarantee.
// A profile that fails here is treated as absent by callers.
func (p *UserProfile) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("profile missing user_id")
	}
	if p.Age < 13 || p.Age > 19 {
		return fmt.Errorf("profile age %d outside supported range 13-19", p.Age)
	}
	if len(p.Interests) == 0 || len(p.Interests) > 10 {
		return fmt.Errorf("profile must carry 1-10 interests, got %d", len(p.Interests))
	}
	seen := make(map[string]struct{}, len(p.Interests))
	for _, interest := range p.Interests {
		if _, dup := seen[interest]; dup {
			return fmt.Errorf("duplicate interest %q", interest)
		}
		seen[interest] = struct{}{}
	}
	return nil
}

// Message roles. Dialogue turns alternate strictly between the two.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single dialogue turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// EngagementRecord summarizes a user's recent interactions, used by the
// recommendation engagement factor.
type EngagementRecord struct {
	UserID       string
	Days         int
	Messages     []string
	TotalEvents  int
	LastActivity time.Time
}

// MarketQuote is a point-in-time snapshot for a single symbol.
type MarketQuote struct {
	Symbol        string
	Name          string
	CurrentPrice  float64
	PriceChange   float64
	PercentChange float64
	Volume        int64
	Sector        string
	Timestamp     time.Time
}

// NewsArticle is a stored news item served by the news sub-retrieval.
type NewsArticle struct {
	ID        string
	Title     string
	Summary   string
	URL       string
	Source    string
	Keywords  []string
	Published time.Time
}
