package authapi

import (
	"os"
	"strconv"
	"strings"
)

// Config controls HTTP boundary behavior.
type Config struct {
	// TrustProxy makes admin rate limiting key on X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// MaxBodyBytes caps form bodies on POST /auth.
	MaxBodyBytes int64
	// AdminRatePerMinute is the per-address budget for /api routes.
	AdminRatePerMinute int
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:         envBool("FLUSSAUTH_TRUST_PROXY", false),
		MaxBodyBytes:       envInt64("FLUSSAUTH_MAX_BODY_BYTES", 64<<10),
		AdminRatePerMinute: envInt("FLUSSAUTH_ADMIN_RATE_PER_MINUTE", 30),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 64 << 10
	}
	if c.AdminRatePerMinute <= 0 {
		c.AdminRatePerMinute = 30
	}
	return c
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
