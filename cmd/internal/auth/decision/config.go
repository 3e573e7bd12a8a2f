package decision

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Bounds enforced by Config.Validate.
const (
	MinAuthDuration = 30 * time.Second
	MaxAuthDuration = 3600 * time.Second

	MinDecisionLatency = 100 * time.Millisecond
	MaxDecisionLatency = 3 * time.Second
)

// Config is the immutable engine configuration.
type Config struct {
	// AuthDuration is how long an admission or recheck keeps a session alive.
	// It is also returned to the media server as X-AuthDuration.
	AuthDuration time.Duration

	// AuditEnabled turns access-log writes on.
	AuditEnabled bool

	// MaxDecisionLatency bounds one Decide call; exceeding it yields ErrUnavailable.
	MaxDecisionLatency time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		AuthDuration:       180 * time.Second,
		AuditEnabled:       true,
		MaxDecisionLatency: 2500 * time.Millisecond,
	}
}

// Validate checks the configured bounds.
func (c Config) Validate() error {
	if c.AuthDuration < MinAuthDuration || c.AuthDuration > MaxAuthDuration {
		return ErrConfig
	}
	if c.MaxDecisionLatency < MinDecisionLatency || c.MaxDecisionLatency > MaxDecisionLatency {
		return ErrConfig
	}
	return nil
}

// LoadConfigFromEnv loads engine configuration from environment variables.
//
// Optional:
//   - FLUSSAUTH_AUTH_DURATION (Go duration or whole seconds, 30s..3600s)
//   - FLUSSAUTH_MAX_RESPONSE_TIME (Go duration or seconds, e.g. "2.5", 100ms..3s)
//   - FLUSSAUTH_ENABLE_ACCESS_LOGS (bool)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("FLUSSAUTH_AUTH_DURATION")); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.AuthDuration = d
	}

	if v := strings.TrimSpace(os.Getenv("FLUSSAUTH_MAX_RESPONSE_TIME")); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.MaxDecisionLatency = d
	}

	if v := strings.TrimSpace(os.Getenv("FLUSSAUTH_ENABLE_ACCESS_LOGS")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.AuditEnabled = b
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parseSeconds accepts Go durations and bare (possibly fractional) seconds.
func parseSeconds(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}
