package news

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rtirumala2025/InvestX-Labs/internal/storage/models"
	"github.com/rtirumala2025/InvestX-Labs/internal/storage/sqlite"
)

// Provider surfaces recent financial news articles for the context
// aggregator. Articles are ingested out of band; this reads the local store
// and normalizes summaries that arrive with embedded HTML.
type Provider struct {
	store *sqlite.Client
	limit int
}

func NewProvider(store *sqlite.Client, limit int) *Provider {
	if limit <= 0 {
		limit = 10
	}
	return &Provider{store: store, limit: limit}
}

func (p *Provider) RecentNews(ctx context.Context) ([]models.NewsArticle, error) {
	articles, err := p.store.GetRecentNews(ctx, p.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent news: %w", err)
	}

	for i := range articles {
		articles[i].Summary = stripHTML(articles[i].Summary)
		articles[i].Title = stripHTML(articles[i].Title)
	}

	return articles, nil
}

// stripHTML reduces markup to plain text. Feed summaries often carry
// anchor tags and tracking pixels; teens only ever see the rendered text.
func stripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.TrimSpace(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}

	doc.Find("script, style").Remove()
	text := doc.Text()
	return strings.Join(strings.Fields(text), " ")
}
