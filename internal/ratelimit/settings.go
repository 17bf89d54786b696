package ratelimit

import (
	"strings"
	"time"

	internalsettings "github.com/router-for-me/GymDesk/internal/settings"
)

// SettingsConfig is the limiter view of the runtime settings.
type SettingsConfig struct {
	Limit         int
	Window        time.Duration
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// LoadSettingsConfig reads limiter settings from the settings snapshot.
func LoadSettingsConfig() SettingsConfig {
	windowSeconds := internalsettings.IntValue(internalsettings.RateLimitWindowSecondsKey, internalsettings.DefaultRateLimitWindowSeconds)
	if windowSeconds <= 0 {
		windowSeconds = internalsettings.DefaultRateLimitWindowSeconds
	}
	cfg := SettingsConfig{
		Limit:         nonNegative(internalsettings.IntValue(internalsettings.RateLimitKey, internalsettings.DefaultRateLimit)),
		Window:        time.Duration(windowSeconds) * time.Second,
		RedisAddr:     strings.TrimSpace(internalsettings.StringValue(internalsettings.RateLimitRedisAddrKey, "")),
		RedisPassword: strings.TrimSpace(internalsettings.StringValue(internalsettings.RateLimitRedisPasswordKey, "")),
		RedisDB:       nonNegative(internalsettings.IntValue(internalsettings.RateLimitRedisDBKey, 0)),
		RedisPrefix:   strings.TrimSpace(internalsettings.StringValue(internalsettings.RateLimitRedisPrefixKey, "")),
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitRedisEnabledKey); ok {
		cfg.RedisEnabled, _ = internalsettings.ParseBool(raw)
	}
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	return cfg
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
