package ratelimit

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/cache"
)

type Config struct {
	MaxRequestsPerMinute int
	WindowDuration       time.Duration
	Logger               *zap.Logger
}

// RateLimiter enforces a fixed-window request quota per caller, counted in
// the shared cache so limits hold across replicas. When the cache has
// degraded to its in-process mode the limit is per node, which fails open
// rather than blocking traffic.
type RateLimiter struct {
	store  cache.Store
	max    int64
	window time.Duration
	logger *zap.Logger
}

func New(store cache.Store, cfg Config) *RateLimiter {
	if cfg.MaxRequestsPerMinute == 0 {
		cfg.MaxRequestsPerMinute = 60
	}
	if cfg.WindowDuration == 0 {
		cfg.WindowDuration = time.Minute
	}

	return &RateLimiter{
		store:  store,
		max:    int64(cfg.MaxRequestsPerMinute),
		window: cfg.WindowDuration,
		logger: cfg.Logger,
	}
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()
		if userID := c.Get("X-User-ID"); userID != "" {
			key = userID
		}

		windowStart := time.Now().Truncate(rl.window).Unix()
		counterKey := fmt.Sprintf("ratelimit:%s:%d", key, windowStart)

		count, err := rl.store.Increment(c.Context(), counterKey, rl.window)
		if err != nil {
			// Counting is best effort; never block traffic on a cache fault.
			rl.logger.Warn("Rate limit counter unavailable", zap.Error(err))
			return c.Next()
		}

		if count > rl.max {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}
