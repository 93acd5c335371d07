package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/cache/memory"
	"github.com/rtirumala2025/InvestX-Labs/internal/cache/redis"
	"github.com/rtirumala2025/InvestX-Labs/pkg/config"
	"github.com/rtirumala2025/InvestX-Labs/pkg/logger"
)

// Store is the cache contract shared by every component. Values are JSON
// round-tripped; expired entries behave exactly like absent keys.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	ClearPattern(ctx context.Context, pattern string) (int, error)
	Close() error
}

// New connects to Redis, or degrades to a process-local store when the
// backing store is unreachable. The degraded mode keeps identical TTL
// semantics but is single-node: entries are not shared across replicas and
// vanish on restart.
func New(cfg config.RedisConfig) Store {
	client, err := redis.NewClient(cfg.Host, cfg.Port, cfg.Password, cfg.DB)
	if err != nil {
		logger.Warn("Redis unreachable, degrading to in-process cache (single node only)",
			zap.Error(err),
		)
		return memory.NewStore()
	}
	return client
}
