package app

import (
	"fmt"
	"strings"
	"time"

	"flussauth/cmd/internal/db"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration

	// DBAdapter is memory, sqlite or postgres. Empty means postgres when
	// DatabaseURL is set and memory otherwise.
	DBAdapter   string
	DatabaseURL string
	SQLitePath  string
	DBMaxConns  int32
	DBMinConns  int32
	AutoMigrate bool

	// If true:
	// - /readyz returns 503 unless a durable store is configured and reachable.
	ReadinessRequireDB bool

	// Management API key policy (see ValidateSecurityConfig).
	APIKey        string
	APIKeyHash    string
	RequireAPIKey bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("HTTP_MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   EnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		DBAdapter:   strings.ToLower(EnvString("DB_ADAPTER", "")),
		DatabaseURL: EnvString("DATABASE_URL", ""),
		SQLitePath:  EnvString("SQLITE_PATH", "flussauth.db"),
		DBMaxConns:  EnvInt32("DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("DB_MIN_CONNS", 0),
		AutoMigrate: EnvBool("AUTO_MIGRATE", true),

		ReadinessRequireDB: EnvBool("READINESS_REQUIRE_DB", false),

		APIKey:        EnvString("API_KEY", ""),
		APIKeyHash:    EnvString("API_KEY_HASH", ""),
		RequireAPIKey: EnvBool("REQUIRE_API_KEY", false),
	}
}

// Adapter resolves the configured storage backend.
func (c Config) Adapter() (string, error) {
	switch a := strings.ToLower(strings.TrimSpace(c.DBAdapter)); a {
	case "":
		if strings.TrimSpace(c.DatabaseURL) != "" {
			return db.AdapterPostgres, nil
		}
		return db.AdapterMemory, nil
	case db.AdapterMemory, db.AdapterSQLite:
		return a, nil
	case db.AdapterPostgres, "postgresql":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return "", fmt.Errorf("config: FLUSSAUTH_DB_ADAPTER=postgres requires FLUSSAUTH_DATABASE_URL")
		}
		return db.AdapterPostgres, nil
	default:
		return "", fmt.Errorf("config: unknown FLUSSAUTH_DB_ADAPTER %q", c.DBAdapter)
	}
}
