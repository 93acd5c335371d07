package contextagg

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/cache"
	"github.com/rtirumala2025/InvestX-Labs/internal/market"
	"github.com/rtirumala2025/InvestX-Labs/internal/metrics"
	"github.com/rtirumala2025/InvestX-Labs/internal/news"
	"github.com/rtirumala2025/InvestX-Labs/internal/search"
	"github.com/rtirumala2025/InvestX-Labs/internal/storage/models"
	"github.com/rtirumala2025/InvestX-Labs/pkg/config"
	"github.com/rtirumala2025/InvestX-Labs/pkg/logger"
	"github.com/rtirumala2025/InvestX-Labs/pkg/utils"
)

// Context types gating the sub-retrievals.
const (
	TypeEducational = "educational"
	TypeMarket      = "market"
	TypeNews        = "news"
	TypeAll         = "all"
)

// ErrAllSourcesUnavailable is returned only when every dispatched
// sub-retrieval failed. Partial failures degrade to empty sections instead.
var ErrAllSourcesUnavailable = fmt.Errorf("all context sources unavailable")

// EducationalItem is one retrieved piece of educational content with its
// body already chunked to fit the prompt budget.
type EducationalItem struct {
	ContentID       string   `json:"content_id"`
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Summary         string   `json:"summary"`
	Category        string   `json:"category"`
	DifficultyLevel string   `json:"difficulty_level"`
	Source          string   `json:"source"`
	URL             string   `json:"url"`
	Keywords        []string `json:"keywords"`
	Relevance       float64  `json:"relevance"`
}

// RankedArticle is a news article with its query relevance attached.
type RankedArticle struct {
	models.NewsArticle
	Relevance float64 `json:"relevance"`
}

// ConversationContext is derived from recent dialogue history and rides along
// in the bundle so the generation layer can stay on topic.
type ConversationContext struct {
	RecentTopics  []string  `json:"recent_topics"`
	UserInterests []string  `json:"user_interests"`
	CurrentFocus  string    `json:"current_focus"`
	Length        int       `json:"length"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// ContextBundle is the merged multi-source retrieval result.
type ContextBundle struct {
	Query         string               `json:"query"`
	ContextType   string               `json:"context_type"`
	RetrievedAt   time.Time            `json:"retrieved_at"`
	Educational   []EducationalItem    `json:"educational_content"`
	MarketData    []models.MarketQuote `json:"market_data"`
	NewsArticles  []RankedArticle      `json:"news_articles"`
	Conversation  *ConversationContext `json:"conversation_context,omitempty"`
	RelatedTopics []string             `json:"related_topics"`
}

// Aggregator fans out to the search engine and the market/news providers,
// merges whatever completed within the per-source timeout, and caches the
// bundle. A slow or failed source never blocks the others.
type Aggregator struct {
	engine *search.Engine
	market market.QuoteProvider
	news   *news.Provider
	cache  cache.Store
	tables KeywordTables

	chunkSize     int
	sourceTimeout time.Duration
	cacheTTL      time.Duration
}

func NewAggregator(engine *search.Engine, quotes market.QuoteProvider, newsProvider *news.Provider,
	cacheStore cache.Store, cfg config.ContextConfig) *Aggregator {
	return &Aggregator{
		engine:        engine,
		market:        quotes,
		news:          newsProvider,
		cache:         cacheStore,
		tables:        DefaultKeywordTables(),
		chunkSize:     cfg.ChunkSize,
		sourceTimeout: time.Duration(cfg.SourceTimeoutSec) * time.Second,
		cacheTTL:      cfg.CacheTTL,
	}
}

// RetrieveContext assembles the bundle for a query. Sub-retrievals run
// concurrently, each under its own timeout detached from the request
// context, so a cancelled request still finishes warming the cache. The
// response itself is never blocked past request cancellation.
func (a *Aggregator) RetrieveContext(ctx context.Context, query string, profile *models.UserProfile,
	history []models.Message, contextType string) (*ContextBundle, error) {
	if contextType == "" {
		contextType = TypeEducational
	}

	cacheKey := fmt.Sprintf("context:%s:%s:%s",
		utils.HashString(query), utils.HashString(profileFingerprint(profile)), contextType)

	var cached ContextBundle
	if hit, err := a.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		metrics.CacheHits.WithLabelValues("context").Inc()
		logger.Debug("Returning cached context bundle", zap.String("key", cacheKey))
		return &cached, nil
	}
	metrics.CacheMisses.WithLabelValues("context").Inc()

	bundle := &ContextBundle{
		Query:       query,
		ContextType: contextType,
		RetrievedAt: time.Now().UTC(),
	}

	if len(history) > 0 {
		bundle.Conversation = deriveConversationContext(history)
	}

	bgCtx := context.WithoutCancel(ctx)

	var (
		wg         sync.WaitGroup
		dispatched int
		failed     int32
	)
	runSource := func(name string, fn func(context.Context) error) {
		dispatched++
		wg.Add(1)
		go func() {
			defer wg.Done()
			srcCtx, cancel := context.WithTimeout(bgCtx, a.sourceTimeout)
			defer cancel()
			if err := fn(srcCtx); err != nil {
				atomic.AddInt32(&failed, 1)
				metrics.ContextSourceFailures.WithLabelValues(name).Inc()
				logger.Warn("Context source unavailable",
					zap.String("source", name), zap.Error(err))
			}
		}()
	}

	if contextType == TypeEducational || contextType == TypeAll {
		runSource("educational", func(srcCtx context.Context) error {
			items, err := a.retrieveEducational(srcCtx, query, profile)
			bundle.Educational = items
			return err
		})
	}
	if (contextType == TypeMarket || contextType == TypeAll) && IsMarketRelated(query, a.tables) {
		runSource("market", func(srcCtx context.Context) error {
			quotes, err := a.retrieveMarket(srcCtx, query)
			bundle.MarketData = quotes
			return err
		})
	}
	if (contextType == TypeNews || contextType == TypeAll) && IsNewsRelated(query, a.tables) {
		runSource("news", func(srcCtx context.Context) error {
			articles, err := a.retrieveNews(srcCtx, query)
			bundle.NewsArticles = articles
			return err
		})
	}

	done := make(chan error, 1)
	go func() {
		wg.Wait()

		if dispatched > 0 && int(atomic.LoadInt32(&failed)) == dispatched {
			done <- ErrAllSourcesUnavailable
			return
		}

		bundle.RelatedTopics = RelatedTopics(query, bundle.Educational)

		if err := a.cache.Set(bgCtx, cacheKey, bundle, a.cacheTTL); err != nil {
			logger.Warn("Failed to cache context bundle", zap.Error(err))
		}

		logger.Info("Context retrieved",
			zap.String("query", truncate(query, 50)),
			zap.String("type", contextType),
			zap.Int("educational", len(bundle.Educational)),
			zap.Int("market", len(bundle.MarketData)),
			zap.Int("news", len(bundle.NewsArticles)),
		)
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return bundle, nil
	case <-ctx.Done():
		// Sub-retrievals keep running on the detached context to warm the
		// cache for the retry.
		return nil, ctx.Err()
	}
}

func (a *Aggregator) retrieveEducational(ctx context.Context, query string, profile *models.UserProfile) ([]EducationalItem, error) {
	var results []search.Result
	if profile != nil {
		results = a.engine.SearchByProfile(ctx, profile, query, 5)
	} else {
		results = a.engine.Search(ctx, query, nil, 5)
	}

	items := make([]EducationalItem, 0, len(results))
	for _, r := range results {
		item := EducationalItem{
			ContentID:       r.ContentID,
			Title:           metaString(r.Metadata, "title"),
			Content:         r.Snippet,
			Summary:         metaString(r.Metadata, "summary"),
			Category:        metaString(r.Metadata, "category"),
			DifficultyLevel: metaString(r.Metadata, "difficulty_level"),
			Source:          metaString(r.Metadata, "source"),
			URL:             metaString(r.Metadata, "url"),
			Keywords:        metaStrings(r.Metadata, "keywords"),
			Relevance:       r.Relevance,
		}
		if len(item.Content) > a.chunkSize {
			item.Content = chunkContent(item.Content, a.chunkSize)
		}
		items = append(items, item)
	}
	return items, nil
}

func (a *Aggregator) retrieveMarket(ctx context.Context, query string) ([]models.MarketQuote, error) {
	symbols := ExtractSymbols(query, a.tables)
	if len(symbols) == 0 {
		return nil, nil
	}

	quotes := make([]models.MarketQuote, 0, len(symbols))
	var lastErr error
	for _, symbol := range symbols {
		quote, err := a.market.GetQuote(ctx, symbol)
		if err != nil {
			lastErr = err
			logger.Warn("Failed to fetch quote",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		quotes = append(quotes, *quote)
	}

	if len(quotes) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return quotes, nil
}

func (a *Aggregator) retrieveNews(ctx context.Context, query string) ([]RankedArticle, error) {
	articles, err := a.news.RecentNews(ctx)
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedArticle, 0, len(articles))
	for _, article := range articles {
		score := NewsRelevance(query, article)
		if score > 0.3 {
			ranked = append(ranked, RankedArticle{NewsArticle: article, Relevance: score})
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Relevance != ranked[j].Relevance {
			return ranked[i].Relevance > ranked[j].Relevance
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	return ranked, nil
}

// deriveConversationContext distills the last few turns into topics,
// interests and the user's current focus. Pure over the history slice.
func deriveConversationContext(history []models.Message) *ConversationContext {
	recent := history
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	conversationTopics := []string{
		"stocks", "bonds", "etfs", "index funds", "diversification",
		"risk", "portfolio", "savings", "budgeting", "compound interest",
	}

	var topics []string
	seen := make(map[string]struct{})
	focus := ""
	for _, msg := range recent {
		content := strings.ToLower(msg.Content)
		for _, topic := range conversationTopics {
			if strings.Contains(content, topic) {
				if _, dup := seen[topic]; !dup {
					seen[topic] = struct{}{}
					topics = append(topics, topic)
				}
			}
		}
		if strings.Contains(content, "how") || strings.Contains(content, "what") {
			focus = truncate(content, 100)
		}
	}

	cc := &ConversationContext{
		RecentTopics:  topics,
		UserInterests: topics,
		CurrentFocus:  focus,
		Length:        len(history),
	}
	if len(recent) > 0 {
		cc.LastMessageAt = recent[len(recent)-1].Timestamp
	}
	return cc
}

// chunkContent cuts long text at the last sentence terminator before the
// budget. A terminator in the final 30% of the window counts as a good break
// point; otherwise it falls back to a hard cut. Either way the text ends
// with an ellipsis so downstream knows it was truncated.
func chunkContent(content string, chunkSize int) string {
	if len(content) <= chunkSize {
		return content
	}

	window := content[:chunkSize]
	breakPoint := strings.LastIndexAny(window, ".?!")

	if float64(breakPoint) > float64(chunkSize)*0.7 {
		return content[:breakPoint+1] + "..."
	}
	return content[:chunkSize] + "..."
}

// FormatForPrompt renders the bundle as plain text in a fixed section order
// so generated prompts are reproducible for the same bundle.
func (b *ContextBundle) FormatForPrompt() string {
	var sb strings.Builder

	if len(b.Educational) > 0 {
		sb.WriteString("## Educational Content\n\n")
		for i, item := range b.Educational {
			if i >= 3 {
				break
			}
			title := item.Title
			if title == "" {
				title = "Untitled"
			}
			fmt.Fprintf(&sb, "### %d. %s\n", i+1, title)
			fmt.Fprintf(&sb, "**Category:** %s\n", orNA(item.Category))
			fmt.Fprintf(&sb, "**Difficulty:** %s\n", orNA(item.DifficultyLevel))
			fmt.Fprintf(&sb, "**Content:** %s...\n\n", truncate(item.Content, 500))
		}
	}

	if len(b.MarketData) > 0 {
		sb.WriteString("## Market Data\n\n")
		for i, quote := range b.MarketData {
			if i >= 2 {
				break
			}
			name := quote.Name
			if name == "" {
				name = quote.Symbol
			}
			fmt.Fprintf(&sb, "**%s:** $%.2f (%+.2f%%)\n", name, quote.CurrentPrice, quote.PercentChange)
		}
		sb.WriteString("\n")
	}

	if len(b.NewsArticles) > 0 {
		sb.WriteString("## Recent News\n\n")
		for i, article := range b.NewsArticles {
			if i >= 2 {
				break
			}
			title := article.Title
			if title == "" {
				title = "Untitled"
			}
			fmt.Fprintf(&sb, "**%s**\n%s...\n\n", title, truncate(article.Summary, 200))
		}
	}

	if len(b.RelatedTopics) > 0 {
		topics := b.RelatedTopics
		if len(topics) > 5 {
			topics = topics[:5]
		}
		fmt.Fprintf(&sb, "## Related Topics\n%s\n\n", strings.Join(topics, ", "))
	}

	return sb.String()
}

func profileFingerprint(profile *models.UserProfile) string {
	if profile == nil {
		return ""
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return profile.UserID
	}
	return string(data)
}

func metaString(metadata map[string]interface{}, key string) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}

func metaStrings(metadata map[string]interface{}, key string) []string {
	if metadata == nil {
		return nil
	}
	switch v := metadata[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
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
