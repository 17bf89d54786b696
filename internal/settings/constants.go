package settings

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the gym name shown on receipts.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback gym name.
	DefaultSiteName = "Muscle Unit"
	// SweepIntervalSecondsKey controls how often the expiry sweeper runs.
	SweepIntervalSecondsKey = "SWEEP_INTERVAL_SECONDS"
	// ReceiptRatePerSecondKey caps outgoing receipt emails per second.
	ReceiptRatePerSecondKey = "RECEIPT_RATE_PER_SECOND"
	// RateLimitKey caps payment submissions per admin and membership inside one
	// window.
	RateLimitKey = "RATE_LIMIT"
	// RateLimitWindowSecondsKey is the length of the rate limit window.
	RateLimitWindowSecondsKey = "RATE_LIMIT_WINDOW_SECONDS"
	// RateLimitRedisEnabledKey toggles Redis-backed rate limiting.
	RateLimitRedisEnabledKey = "RATE_LIMIT_REDIS_ENABLED"
	// RateLimitRedisAddrKey defines the Redis address for rate limiting.
	RateLimitRedisAddrKey = "RATE_LIMIT_REDIS_ADDR"
	// RateLimitRedisPasswordKey defines the Redis password for rate limiting.
	RateLimitRedisPasswordKey = "RATE_LIMIT_REDIS_PASSWORD"
	// RateLimitRedisDBKey defines the Redis DB index for rate limiting.
	RateLimitRedisDBKey = "RATE_LIMIT_REDIS_DB"
	// RateLimitRedisPrefixKey defines the Redis key prefix for rate limiting.
	RateLimitRedisPrefixKey = "RATE_LIMIT_REDIS_PREFIX"
	// DefaultSweepIntervalSeconds is the fallback sweep interval (seconds).
	DefaultSweepIntervalSeconds = 300
	// DefaultReceiptRatePerSecond is the fallback receipt send rate.
	DefaultReceiptRatePerSecond = 2
	// DefaultRateLimit is the fallback rate limit (0 means unlimited).
	DefaultRateLimit = 0
	// DefaultRateLimitWindowSeconds is the fallback window length (seconds).
	DefaultRateLimitWindowSeconds = 10
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "gymdesk:rl"
)
