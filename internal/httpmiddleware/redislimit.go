package httpmiddleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window per-key limiter shared across API
// replicas. The window key is INCRed and expired atomically enough for
// rate limiting; exact fairness at window edges does not matter here.
type RedisLimiter struct {
	client    *redis.Client
	perWindow int
	window    time.Duration
}

// NewRedisLimiter allows perMinute requests per key per minute window.
func NewRedisLimiter(client *redis.Client, perMinute int) *RedisLimiter {
	return &RedisLimiter{client: client, perWindow: perMinute, window: time.Minute}
}

// Allow increments the caller's window counter. Redis being down fails
// open: dropping traffic because the limiter store is unavailable would
// take the sync path down with it.
func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	window := time.Now().Unix() / int64(l.window.Seconds())
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true
	}
	return incr.Val() <= int64(l.perWindow)
}
