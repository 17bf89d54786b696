package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// countScript increments a window counter and sets its expiry on first use so
// abandoned windows clean themselves up.
var countScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisLimiter shares window counters between every GymDesk instance pointed
// at the same Redis.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: strings.TrimSpace(prefix)}
}

// Allow counts one submission for key in the window containing now.
func (l *RedisLimiter) Allow(ctx context.Context, key string, w Window, now time.Time) (Result, error) {
	if key == "" || w.Unlimited() || l == nil || l.client == nil {
		return Result{Allowed: true}, nil
	}
	index, reset := w.slot(now)
	// Keep the key a little past the window so a slow clock cannot reuse it.
	ttl := w.Length + time.Second
	count, errRun := countScript.Run(ctx, l.client, []string{l.slotKey(key, index)}, ttl.Milliseconds()).Int64()
	if errRun != nil {
		return Result{}, fmt.Errorf("rate limit redis: %w", errRun)
	}
	if count > int64(w.Limit) {
		return Result{Allowed: false, Reset: reset}, nil
	}
	return Result{Allowed: true, Remaining: w.Limit - int(count), Reset: reset}, nil
}

func (l *RedisLimiter) slotKey(key string, index int64) string {
	if l.prefix == "" {
		return fmt.Sprintf("%s:%d", key, index)
	}
	return fmt.Sprintf("%s:%s:%d", l.prefix, key, index)
}

// Close releases the Redis connection pool.
func (l *RedisLimiter) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}
