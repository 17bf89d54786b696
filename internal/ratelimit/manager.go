package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	// redisCooldown is how long the manager stays on memory counters after
	// Redis fails.
	redisCooldown    = 30 * time.Second
	redisPingTimeout = 2 * time.Second
)

// SettingsProvider supplies the latest limiter settings.
type SettingsProvider func() SettingsConfig

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// redisTarget identifies one Redis connection; a change reconnects.
type redisTarget struct {
	addr     string
	password string
	db       int
	prefix   string
}

// Manager counts payment submissions in Redis when configured and in memory
// otherwise.
type Manager struct {
	settings SettingsProvider
	now      func() time.Time
	dial     RedisClientFactory
	memory   *MemoryLimiter

	mu        sync.Mutex
	redis     *RedisLimiter
	target    redisTarget
	coolUntil time.Time
}

// NewManager constructs a Manager. Nil arguments fall back to the settings
// snapshot, time.Now and redis.NewClient.
func NewManager(settings SettingsProvider, now func() time.Time, dial RedisClientFactory) *Manager {
	if settings == nil {
		settings = LoadSettingsConfig
	}
	if now == nil {
		now = time.Now
	}
	if dial == nil {
		dial = redis.NewClient
	}
	return &Manager{settings: settings, now: now, dial: dial, memory: NewMemoryLimiter()}
}

// Allow counts one submission for key against w.
func (m *Manager) Allow(ctx context.Context, key string, w Window) (Result, error) {
	if m == nil || key == "" || w.Unlimited() {
		return Result{Allowed: true}, nil
	}
	now := m.now()
	if cfg := m.settings(); cfg.RedisEnabled {
		limiter, errRedis := m.redisLimiter(ctx, cfg, now)
		if errRedis == nil && limiter != nil {
			result, errAllow := limiter.Allow(ctx, key, w, now)
			if errAllow == nil {
				return result, nil
			}
			errRedis = errAllow
		}
		if errRedis != nil {
			m.coolDown(errRedis, now)
		}
	}
	return m.memory.Allow(ctx, key, w, now)
}

// redisLimiter returns a connected limiter for cfg, or nil while cooling down.
func (m *Manager) redisLimiter(ctx context.Context, cfg SettingsConfig, now time.Time) (*RedisLimiter, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("rate limit redis: missing address")
	}
	target := redisTarget{addr: cfg.RedisAddr, password: cfg.RedisPassword, db: cfg.RedisDB, prefix: cfg.RedisPrefix}

	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Before(m.coolUntil) {
		return nil, nil
	}
	if m.redis != nil && m.target == target {
		return m.redis, nil
	}
	if m.redis != nil {
		_ = m.redis.Close()
		m.redis = nil
	}

	client := m.dial(&redis.Options{Addr: target.addr, Password: target.password, DB: target.db})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redis = NewRedisLimiter(client, target.prefix)
	m.target = target
	return m.redis, nil
}

func (m *Manager) coolDown(err error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Before(m.coolUntil) {
		return
	}
	m.coolUntil = now.Add(redisCooldown)
	log.WithError(err).Warnf("rate limit: redis unavailable, counting in memory for %s", redisCooldown)
}
