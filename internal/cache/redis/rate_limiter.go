package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qupredict/qupredict/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowSrc string

// slidingWindow is evaluated atomically on the server, so replicas of the
// API share one counter per key.
var slidingWindow = redis.NewScript(slidingWindowSrc)

const rateLimitKeyPrefix = "ratelimit:"

// RateLimiter implements sliding-window rate limiting shared across
// processes. Keys are caller-defined, typically "bets:<address>".
type RateLimiter struct {
	rdb *redis.Client
}

// NewRateLimiter returns a rate limiter backed by the shared client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.rdb}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// Allow reports whether one more event is permitted for key within the
// sliding window. It counts the event when permitted.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now().UnixMicro()
	result, err := slidingWindow.Run(ctx, rl.rdb,
		[]string{rateLimitKeyPrefix + key},
		now, window.Microseconds(), limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit %s: unexpected script reply", key)
	}
	return result[0] == 1, nil
}
