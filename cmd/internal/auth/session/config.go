package session

import (
	"os"
	"strings"
	"time"
)

// Sweeper interval bounds.
const (
	MinSweepInterval = 10 * time.Second
	MaxSweepInterval = 600 * time.Second
)

// SweeperConfig defines runtime configuration for the expiry sweeper.
type SweeperConfig struct {
	// Interval between periodic passes.
	Interval time.Duration

	// PassTimeout bounds a single pass, including one still running at Stop.
	PassTimeout time.Duration
}

// DefaultSweeperConfig returns the production defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:    60 * time.Second,
		PassTimeout: 30 * time.Second,
	}
}

// Validate checks the bounds enforced at startup.
func (c SweeperConfig) Validate() error {
	if c.Interval < MinSweepInterval || c.Interval > MaxSweepInterval {
		return ErrConfig
	}
	if c.PassTimeout <= 0 {
		return ErrConfig
	}
	return nil
}

// LoadSweeperConfigFromEnv loads sweeper configuration from environment variables.
//
// Optional (Go duration strings, or whole seconds):
//   - FLUSSAUTH_CLEANUP_INTERVAL (10s..600s)
//   - FLUSSAUTH_CLEANUP_PASS_TIMEOUT
//
// Returns ErrConfig if configuration is invalid.
func LoadSweeperConfigFromEnv() (SweeperConfig, error) {
	cfg := DefaultSweeperConfig()

	if v := strings.TrimSpace(os.Getenv("FLUSSAUTH_CLEANUP_INTERVAL")); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return SweeperConfig{}, ErrConfig
		}
		cfg.Interval = d
	}

	if v := strings.TrimSpace(os.Getenv("FLUSSAUTH_CLEANUP_PASS_TIMEOUT")); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return SweeperConfig{}, ErrConfig
		}
		cfg.PassTimeout = d
	}

	if err := cfg.Validate(); err != nil {
		return SweeperConfig{}, err
	}
	return cfg, nil
}

// parseSeconds accepts "90s"/"1m30s" as well as a bare "90".
func parseSeconds(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	return time.ParseDuration(v + "s")
}
