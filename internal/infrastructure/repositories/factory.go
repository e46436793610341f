package repositories

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"orbnet/internal/core/ports"
	"orbnet/internal/infrastructure/repositories/memory"
	redisrepo "orbnet/internal/infrastructure/repositories/redis"
	"orbnet/pkg/config"
)

// StoreFactory creates stores with fallback support: Redis when
// configured and reachable, memory otherwise.
type StoreFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger

	batchedRoster *redisrepo.BatchedRosterStore
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.SugaredLogger) (*StoreFactory, error) {
	factory := &StoreFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory stores",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis stores")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory stores")
	}

	return factory, nil
}

// CreateSignalStore creates the signal stream store
func (f *StoreFactory) CreateSignalStore() ports.SignalStore {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisSignalStore(f.redisClient)
	}
	return memory.NewMemorySignalStore()
}

// CreateSessionStore creates the livestream session store
func (f *StoreFactory) CreateSessionStore() ports.SessionStore {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisSessionStore(f.redisClient)
	}
	return memory.NewMemorySessionStore()
}

// CreateRosterStore creates the room roster store. The Redis variant
// batches the per-event last-seen refresh; memory writes are cheap
// enough to stay direct.
func (f *StoreFactory) CreateRosterStore() ports.RosterStore {
	if f.useRedis && f.redisClient != nil {
		f.batchedRoster = redisrepo.NewBatchedRosterStore(
			redisrepo.NewRedisRosterStore(f.redisClient), 64, 500*time.Millisecond)
		return f.batchedRoster
	}
	return memory.NewMemoryRosterStore()
}

// RedisClient exposes the shared client for components beyond the
// stores (event bus, distributed locks); nil when memory-backed.
func (f *StoreFactory) RedisClient() *redis.Client {
	if f.useRedis {
		return f.redisClient
	}
	return nil
}

// Close stops batchers and closes the Redis connection if used
func (f *StoreFactory) Close() error {
	if f.batchedRoster != nil {
		f.batchedRoster.Stop()
	}
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *StoreFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
