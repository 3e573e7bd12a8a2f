package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix namespaces every server setting.
const EnvPrefix = "FLUSSAUTH_"

// EnvKey returns the full variable name for a setting. Names already carrying
// the prefix are returned unchanged.
func EnvKey(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if strings.HasPrefix(name, EnvPrefix) {
		return name
	}
	return EnvPrefix + name
}

// envValue reads a trimmed setting; ok is false when it is unset or blank.
func envValue(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(EnvKey(name)))
	return v, v != ""
}

// EnvString reads a string setting with a default.
func EnvString(name, def string) string {
	if v, ok := envValue(name); ok {
		return v
	}
	return def
}

// EnvBool reads a bool setting. Unparseable values fall back to def.
func EnvBool(name string, def bool) bool {
	v, ok := envValue(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// EnvInt reads a positive int setting.
func EnvInt(name string, def int) int {
	v, ok := envValue(name)
	if !ok {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return n
	}
	return def
}

// EnvInt32 reads a non-negative int32 setting (pool sizes allow zero).
func EnvInt32(name string, def int32) int32 {
	v, ok := envValue(name)
	if !ok {
		return def
	}
	if n, err := strconv.ParseInt(v, 10, 32); err == nil && n >= 0 {
		return int32(n)
	}
	return def
}

// EnvDuration reads a positive Go duration setting ("250ms", "3m").
func EnvDuration(name string, def time.Duration) time.Duration {
	v, ok := envValue(name)
	if !ok {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	return def
}
