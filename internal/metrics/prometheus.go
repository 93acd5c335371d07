package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "investx_search_duration_seconds",
			Help:    "Similarity search duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"mode"},
	)

	SearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investx_search_total",
			Help: "Total number of searches processed",
		},
		[]string{"status"},
	)

	SearchResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "investx_search_results_count",
			Help:    "Number of results per search",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	ContextDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "investx_context_duration_seconds",
			Help:    "Context aggregation duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"context_type"},
	)

	ContextSourceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investx_context_source_failures_total",
			Help: "Sub-retrievals that timed out or failed",
		},
		[]string{"source"},
	)

	RecommendationsServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investx_recommendations_served_total",
			Help: "Total recommendation lists served",
		},
		[]string{"kind"},
	)

	RecommendationScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "investx_recommendation_score",
			Help:    "Composite recommendation scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	EmbeddingTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investx_embedding_tokens_used",
			Help: "Total embedding tokens used",
		},
		[]string{"model"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investx_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investx_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	ConversationsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "investx_conversations_active",
			Help: "Conversations updated in the last window",
		},
	)

	ConversationTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investx_conversation_turns_total",
			Help: "Total conversation turns appended",
		},
		[]string{"status"},
	)

	SafetyScreenHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investx_safety_screen_hits_total",
			Help: "Messages flagged by the safety screener",
		},
		[]string{"category"},
	)
)

func Init() {
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchTotal)
	prometheus.MustRegister(SearchResultsCount)
	prometheus.MustRegister(ContextDuration)
	prometheus.MustRegister(ContextSourceFailures)
	prometheus.MustRegister(RecommendationsServed)
	prometheus.MustRegister(RecommendationScore)
	prometheus.MustRegister(EmbeddingTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(ConversationsActive)
	prometheus.MustRegister(ConversationTurnsTotal)
	prometheus.MustRegister(SafetyScreenHits)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
