package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a distributed Limiter backed by a minimum-inter-call timestamp
// stored in Redis, so multiple orchestrator replicas share one per-service
// rate budget. It approximates a token bucket of burst 1 via SET NX PX.
type Redis struct {
	client    *redis.Client
	interval  time.Duration
	keyPrefix string
}

// NewRedis returns a Redis-backed Limiter enforcing at most one permitted
// call per interval, per key, across all processes sharing client.
func NewRedis(client *redis.Client, interval time.Duration, keyPrefix string) *Redis {
	if keyPrefix == "" {
		keyPrefix = "orchestrator:ratelimit:"
	}
	return &Redis{client: client, interval: interval, keyPrefix: keyPrefix}
}

// Wait blocks until the shared inter-call budget for key permits a call, or
// ctx is done. It polls with a small fixed backoff between attempts.
func (r *Redis) Wait(ctx context.Context, key string) error {
	redisKey := r.keyPrefix + key
	const pollInterval = 50 * time.Millisecond

	for {
		ok, err := r.client.SetNX(ctx, redisKey, 1, r.interval).Result()
		if err != nil {
			return fmt.Errorf("ratelimit: redis set failed: %w", err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

var _ Limiter = (*Redis)(nil)
