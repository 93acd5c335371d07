package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/api/handlers"
	"github.com/rtirumala2025/InvestX-Labs/internal/cache"
	"github.com/rtirumala2025/InvestX-Labs/internal/contextagg"
	"github.com/rtirumala2025/InvestX-Labs/internal/conversation"
	"github.com/rtirumala2025/InvestX-Labs/internal/embedding"
	"github.com/rtirumala2025/InvestX-Labs/internal/ingestion"
	"github.com/rtirumala2025/InvestX-Labs/internal/market"
	"github.com/rtirumala2025/InvestX-Labs/internal/metrics"
	"github.com/rtirumala2025/InvestX-Labs/internal/middleware/ratelimit"
	"github.com/rtirumala2025/InvestX-Labs/internal/middleware/security"
	"github.com/rtirumala2025/InvestX-Labs/internal/middleware/validation"
	"github.com/rtirumala2025/InvestX-Labs/internal/news"
	"github.com/rtirumala2025/InvestX-Labs/internal/recommend"
	"github.com/rtirumala2025/InvestX-Labs/internal/safety"
	"github.com/rtirumala2025/InvestX-Labs/internal/search"
	"github.com/rtirumala2025/InvestX-Labs/internal/storage/sqlite"
	"github.com/rtirumala2025/InvestX-Labs/internal/vector/milvus"
	"github.com/rtirumala2025/InvestX-Labs/pkg/config"
	appLogger "github.com/rtirumala2025/InvestX-Labs/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting InvestX retrieval API server")

	metrics.Init()

	db, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	cacheStore := cache.New(cfg.Redis)
	defer cacheStore.Close()

	embedder := embedding.NewClient(cfg.Embedding, cacheStore)

	vectorIndex, err := milvus.NewClient(cfg.Vector, embedder)
	if err != nil {
		appLogger.Fatal("Failed to create vector index client", zap.Error(err))
	}
	defer vectorIndex.Close()

	if err := vectorIndex.EnsureCollection(context.Background(), cfg.Vector.CollectionName); err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	searchEngine := search.NewEngine(vectorIndex, cacheStore, db, cfg.Vector.CollectionName, cfg.Search)
	quoteClient := market.NewClient(cfg.Market, cacheStore)
	newsProvider := news.NewProvider(db, cfg.Market.NewsLimit)
	aggregator := contextagg.NewAggregator(searchEngine, quoteClient, newsProvider, cacheStore, cfg.Context)
	recommender := recommend.NewEngine(db, cacheStore, cfg.Recommend)
	tracker := conversation.NewTracker(cfg.Conversation)
	screener := safety.NewScreener(safety.DefaultPatterns())
	processor := ingestion.NewProcessor(db, vectorIndex, screener, cfg.Vector.CollectionName)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(cacheStore, ratelimit.Config{
		MaxRequestsPerMinute: 120,
		Logger:               appLogger.GetLogger(),
	})
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	contextHandler := handlers.NewContextHandler(aggregator, tracker, db)
	searchHandler := handlers.NewSearchHandler(searchEngine)
	recommendationHandler := handlers.NewRecommendationHandler(recommender)
	conversationHandler := handlers.NewConversationHandler(tracker, screener, db)
	contentHandler := handlers.NewContentHandler(processor)
	wsHandler := handlers.NewWebSocketHandler(aggregator, tracker, db)

	api := app.Group("/api/v1")

	api.Post("/context", contextHandler.RetrieveContext)

	api.Post("/search", searchHandler.Search)
	api.Get("/search/suggestions", searchHandler.Suggestions)
	api.Get("/content/:id/related", searchHandler.RelatedContent)
	api.Post("/content", contentHandler.UploadContent)

	api.Get("/recommendations/trending", recommendationHandler.GetTrending)
	api.Get("/recommendations/:user_id", recommendationHandler.GetPersonalized)
	api.Put("/recommendations/:user_id/interests", recommendationHandler.UpdateInterests)

	api.Post("/conversations/:user_id/:session_id/turns", conversationHandler.AppendTurn)
	api.Get("/conversations/:user_id/:session_id/context", conversationHandler.GetContext)
	api.Post("/conversations/:user_id/:session_id/end", conversationHandler.End)

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
