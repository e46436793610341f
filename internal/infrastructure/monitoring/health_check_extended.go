package monitoring

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"orbnet/internal/core/ports"
)

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client *redis.Client, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddSessionStoreCheck probes the session store. Listing live sessions
// exercises the same path the public handlers use.
func (h *HealthChecker) AddSessionStoreCheck(store ports.SessionStore, interval, timeout time.Duration) {
	h.AddCheck("session_store", func(ctx context.Context) (bool, error) {
		if _, err := store.ListLive(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddReadinessCheck creates a readiness check that verifies all dependencies
func (h *HealthChecker) AddReadinessCheck(
	redisClient *redis.Client,
	store ports.SessionStore,
	interval, timeout time.Duration,
) {
	h.AddCheck("readiness", func(ctx context.Context) (bool, error) {
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return false, err
			}
		}

		if store != nil {
			if _, err := store.ListLive(ctx); err != nil {
				return false, err
			}
		}

		return true, nil
	}, interval, timeout)
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	status := h.CheckAll(ctx)
	return status.Status == "healthy"
}
