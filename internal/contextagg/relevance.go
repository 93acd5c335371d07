package contextagg

import (
	"strings"

	"github.com/rtirumala2025/InvestX-Labs/internal/storage/models"
)

// KeywordTables drive the query classifiers that gate the market and news
// sub-retrievals. They are plain data so deployments can tune them without
// code changes.
type KeywordTables struct {
	Market  []string
	News    []string
	Symbols []string
}

func DefaultKeywordTables() KeywordTables {
	return KeywordTables{
		Market: []string{
			"stock", "stocks", "price", "market", "trading", "buy", "sell",
			"portfolio", "investment", "earnings", "dividend", "volume",
		},
		News: []string{
			"news", "update", "recent", "latest", "happening", "today",
			"yesterday", "this week", "announcement", "report",
		},
		// Tickers teens actually ask about, broad index funds included.
		Symbols: []string{
			"AAPL", "GOOGL", "TSLA", "MSFT", "AMZN", "META", "NFLX",
			"VTI", "VOO", "SPY", "QQQ", "ARKK",
		},
	}
}

// IsMarketRelated reports whether the query should trigger a market data
// lookup. Substring membership over the table, case-insensitive.
func IsMarketRelated(query string, table KeywordTables) bool {
	return containsAny(strings.ToLower(query), table.Market)
}

// IsNewsRelated reports whether the query should trigger a news lookup.
func IsNewsRelated(query string, table KeywordTables) bool {
	return containsAny(strings.ToLower(query), table.News)
}

// ExtractSymbols returns the known tickers mentioned in the query, in table
// order so output is deterministic.
func ExtractSymbols(query string, table KeywordTables) []string {
	upper := strings.ToUpper(query)
	var found []string
	for _, symbol := range table.Symbols {
		if strings.Contains(upper, symbol) {
			found = append(found, symbol)
		}
	}
	return found
}

// NewsRelevance scores an article against a query: 0.5 for any query word in
// the title, 0.3 for any in the summary, up to 0.2 proportional to the
// article keywords mentioned by the query. Capped at 1.0.
func NewsRelevance(query string, article models.NewsArticle) float64 {
	queryLower := strings.ToLower(query)
	words := strings.Fields(queryLower)
	if len(words) == 0 {
		return 0
	}

	title := strings.ToLower(article.Title)
	summary := strings.ToLower(article.Summary)

	score := 0.0
	for _, word := range words {
		if strings.Contains(title, word) {
			score += 0.5
			break
		}
	}
	for _, word := range words {
		if strings.Contains(summary, word) {
			score += 0.3
			break
		}
	}
	if len(article.Keywords) > 0 {
		matches := 0
		for _, keyword := range article.Keywords {
			if strings.Contains(queryLower, strings.ToLower(keyword)) {
				matches++
			}
		}
		score += float64(matches) / float64(len(article.Keywords)) * 0.2
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}

// queryTopicMap extends related topics with conventional neighbors of the
// asset class the query mentions.
var queryTopicMap = []struct {
	trigger string
	topics  []string
}{
	{"stock", []string{"portfolio", "diversification", "risk management"}},
	{"bond", []string{"fixed income", "interest rates", "risk"}},
	{"etf", []string{"index funds", "diversification", "low cost"}},
	{"risk", []string{"diversification", "asset allocation", "volatility"}},
}

// RelatedTopics merges keywords and categories from the retrieved
// educational items with query-derived neighbors. First occurrence wins,
// capped at ten entries.
func RelatedTopics(query string, items []EducationalItem) []string {
	const maxTopics = 10

	var topics []string
	seen := make(map[string]struct{})
	add := func(topic string) {
		if topic == "" || len(topics) >= maxTopics {
			return
		}
		if _, dup := seen[topic]; dup {
			return
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}

	for _, item := range items {
		for _, keyword := range item.Keywords {
			add(keyword)
		}
		add(item.Category)
	}

	queryLower := strings.ToLower(query)
	for _, entry := range queryTopicMap {
		if strings.Contains(queryLower, entry.trigger) {
			for _, topic := range entry.topics {
				add(topic)
			}
			break
		}
	}

	return topics
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
