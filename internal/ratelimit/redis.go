package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const keyPrefix = "teamboard:ratelimit:"

// Limiter decides whether one more request fits in the caller's window.
type Limiter interface {
	AllowRequest(ctx context.Context, scope, subject string, limit int, window time.Duration) (Result, error)
}

// Result describes a rate limit decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the oldest request in the window expires.
	ResetAt time.Time
}

// RedisRateLimiter implements a sliding window log on a Redis sorted set,
// one key per (scope, subject).
type RedisRateLimiter struct {
	client              redis.UniversalClient
	rateLimitRejections metric.Int64Counter
	now                 func() time.Time
}

// NewRedisRateLimiter creates a new Redis-based rate limiter
func NewRedisRateLimiter(client redis.UniversalClient, rateLimitRejections metric.Int64Counter) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:              client,
		rateLimitRejections: rateLimitRejections,
		now:                 time.Now,
	}
}

// AllowRequest records the request and reports whether it is within limit.
// Rejected requests still occupy a slot, so a client hammering the API stays
// throttled until it backs off for a full window.
func (rl *RedisRateLimiter) AllowRequest(ctx context.Context, scope, subject string, limit int, window time.Duration) (Result, error) {
	now := rl.now()
	windowStart := now.Add(-window)
	key := keyPrefix + scope + ":" + subject

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixMilli(), 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.Expire(ctx, key, 2*window)

	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("failed to execute rate limit check: %w", err)
	}

	count, err := countCmd.Result()
	if err != nil {
		return Result{}, fmt.Errorf("failed to get count: %w", err)
	}

	res := Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: max(limit-int(count), 0),
		ResetAt:   now.Add(window),
	}
	if oldest, err := oldestCmd.Result(); err == nil && len(oldest) == 1 {
		res.ResetAt = time.UnixMilli(int64(oldest[0].Score)).Add(window)
	}

	if !res.Allowed && rl.rateLimitRejections != nil {
		rl.rateLimitRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
	}

	return res, nil
}
