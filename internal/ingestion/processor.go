package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/safety"
	"github.com/rtirumala2025/InvestX-Labs/internal/storage/models"
	"github.com/rtirumala2025/InvestX-Labs/internal/storage/sqlite"
	"github.com/rtirumala2025/InvestX-Labs/internal/vector"
	"github.com/rtirumala2025/InvestX-Labs/pkg/logger"
	"github.com/rtirumala2025/InvestX-Labs/pkg/utils"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// Processor turns raw scraped pages into analyzed educational content:
// cleans the HTML, classifies category and difficulty, screens for unsafe
// material, then writes the item to the content store and the vector index.
type Processor struct {
	db         *sqlite.Client
	index      vector.Index
	screener   *safety.Screener
	collection string
}

func NewProcessor(db *sqlite.Client, index vector.Index, screener *safety.Screener, collection string) *Processor {
	return &Processor{
		db:         db,
		index:      index,
		screener:   screener,
		collection: collection,
	}
}

// ProcessContent ingests one page. Content that trips the safety screener is
// rejected before it can reach the corpus.
func (p *Processor) ProcessContent(ctx context.Context, sourceURL, htmlContent string) (*models.ContentItem, error) {
	logger.Info("Processing content", zap.String("url", sourceURL))

	text := p.cleanHTML(htmlContent)
	if text == "" {
		return nil, fmt.Errorf("no content extracted from HTML")
	}

	if result := p.screener.Screen(text); !result.Safe {
		logger.Warn("Content rejected by safety screen",
			zap.String("url", sourceURL),
			zap.Strings("categories", result.Categories),
		)
		return nil, fmt.Errorf("content failed safety screening: %s", strings.Join(result.Categories, ", "))
	}

	category := classifyCategory(text)
	difficulty := classifyDifficulty(text)
	keywords := extractKeywords(text)

	item := &models.ContentItem{
		ID:              utils.HashString(sourceURL),
		Title:           p.extractTitle(htmlContent),
		Content:         text,
		Summary:         summarize(text),
		Category:        category,
		DifficultyLevel: difficulty,
		TargetAge:       "13-19",
		Source:          sourceHost(sourceURL),
		URL:             sourceURL,
		Keywords:        keywords,
		QualityScore:    scoreQuality(text),
		CreatedAt:       time.Now().UTC(),
	}

	if err := p.db.InsertContent(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to store content: %w", err)
	}

	doc := vector.Document{
		ID:   item.ID,
		Text: item.Content,
		Metadata: map[string]interface{}{
			"title":            item.Title,
			"summary":          item.Summary,
			"category":         item.Category,
			"difficulty_level": item.DifficultyLevel,
			"target_age":       item.TargetAge,
			"source":           item.Source,
			"url":              item.URL,
			"keywords":         item.Keywords,
		},
	}
	if err := p.index.Add(ctx, p.collection, doc); err != nil {
		return nil, fmt.Errorf("failed to index content: %w", err)
	}

	logger.Info("Content processed",
		zap.String("content_id", item.ID),
		zap.String("category", item.Category),
		zap.String("difficulty", item.DifficultyLevel),
	)
	return item, nil
}

func (p *Processor) cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func (p *Processor) extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "Untitled"
	}

	title := doc.Find("title").First().Text()
	if title == "" {
		title = doc.Find("h1").First().Text()
	}
	if title == "" {
		title = "Untitled"
	}
	return strings.TrimSpace(title)
}

// categoryLexicon maps taxonomy categories to trigger words, checked in
// order; first category with the most hits wins.
var categoryLexicon = []struct {
	category string
	keywords []string
}{
	{"stocks", []string{"stock", "share", "equity", "dividend"}},
	{"bonds", []string{"bond", "fixed income", "treasury", "coupon"}},
	{"etfs", []string{"etf", "exchange traded fund"}},
	{"index_funds", []string{"index fund", "s&p 500", "passive investing"}},
	{"diversification", []string{"diversif", "asset allocation", "spread"}},
	{"risk_management", []string{"risk", "volatility", "hedge"}},
	{"compound_interest", []string{"compound", "interest rate", "growth over time"}},
	{"portfolio", []string{"portfolio", "holding", "rebalanc"}},
	{"savings", []string{"saving", "emergency fund", "deposit"}},
	{"budgeting", []string{"budget", "spending", "expense"}},
	{"retirement", []string{"retirement", "401k", "ira", "pension"}},
	{"tax_implications", []string{"tax", "capital gains", "deduction"}},
	{"market_analysis", []string{"market analysis", "technical", "fundamental analysis"}},
}

func classifyCategory(text string) string {
	lower := strings.ToLower(text)

	best := "basics"
	bestScore := 0
	for _, candidate := range categoryLexicon {
		score := 0
		for _, keyword := range candidate.keywords {
			score += strings.Count(lower, keyword)
		}
		if score > bestScore {
			best = candidate.category
			bestScore = score
		}
	}
	return best
}

// classifyDifficulty uses vocabulary weight as a rough proxy. Advanced
// terminology pushes content up the scale.
func classifyDifficulty(text string) string {
	lower := strings.ToLower(text)

	advanced := []string{"derivative", "option", "margin", "short selling", "leverage", "beta", "alpha"}
	intermediate := []string{"diversification", "asset allocation", "expense ratio", "valuation", "yield"}

	for _, term := range advanced {
		if strings.Contains(lower, term) {
			return models.DifficultyAdvanced
		}
	}
	for _, term := range intermediate {
		if strings.Contains(lower, term) {
			return models.DifficultyIntermediate
		}
	}
	return models.DifficultyBeginner
}

func extractKeywords(text string) []string {
	lower := strings.ToLower(text)

	var keywords []string
	for _, candidate := range categoryLexicon {
		for _, keyword := range candidate.keywords {
			if strings.Contains(lower, keyword) {
				keywords = append(keywords, keyword)
				break
			}
		}
	}
	if len(keywords) > 10 {
		keywords = keywords[:10]
	}
	return keywords
}

// summarize takes the leading sentences up to 300 characters. Good enough
// for list views; the full text is always stored alongside.
func summarize(text string) string {
	if len(text) <= 300 {
		return text
	}

	window := text[:300]
	if idx := strings.LastIndexAny(window, ".?!"); idx > 100 {
		return text[:idx+1]
	}
	return window + "..."
}

// scoreQuality is a 1-10 heuristic rewarding substantial, structured text.
func scoreQuality(text string) float64 {
	score := 5.0

	length := len(text)
	switch {
	case length > 3000:
		score += 2
	case length > 1000:
		score += 1
	case length < 300:
		score -= 2
	}

	sentences := strings.Count(text, ".") + strings.Count(text, "?") + strings.Count(text, "!")
	if sentences > 10 {
		score += 1
	}

	if score > 10 {
		score = 10
	}
	if score < 1 {
		score = 1
	}
	return score
}

func sourceHost(rawURL string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	if idx := strings.IndexByte(trimmed, '/'); idx > 0 {
		return trimmed[:idx]
	}
	return trimmed
}
