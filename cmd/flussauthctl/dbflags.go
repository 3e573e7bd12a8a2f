package main

import (
	"os"
	"strings"

	"flussauth/cmd/internal/db"

	"github.com/spf13/pflag"
)

// dbFlags selects a durable backend. Defaults mirror the server's environment.
type dbFlags struct {
	adapter string
	dsn     string
}

func (f *dbFlags) add(fs *pflag.FlagSet) {
	fs.StringVar(&f.adapter, "adapter", "", "storage adapter: sqlite or postgres (default from FLUSSAUTH_DB_ADAPTER)")
	fs.StringVar(&f.dsn, "dsn", "", "Postgres URL or SQLite path (default from FLUSSAUTH_DATABASE_URL / FLUSSAUTH_SQLITE_PATH)")
}

// resolve fills unset values from the environment.
func (f dbFlags) resolve() (adapter, dsn string, err error) {
	adapter = strings.ToLower(strings.TrimSpace(f.adapter))
	dbURL := strings.TrimSpace(os.Getenv("FLUSSAUTH_DATABASE_URL"))
	if adapter == "" {
		adapter = strings.ToLower(strings.TrimSpace(os.Getenv("FLUSSAUTH_DB_ADAPTER")))
	}
	if adapter == "" {
		adapter = db.AdapterSQLite
		if dbURL != "" {
			adapter = db.AdapterPostgres
		}
	}

	dsn = strings.TrimSpace(f.dsn)
	switch adapter {
	case db.AdapterPostgres:
		if dsn == "" {
			dsn = dbURL
		}
	case db.AdapterSQLite:
		if dsn == "" {
			dsn = strings.TrimSpace(os.Getenv("FLUSSAUTH_SQLITE_PATH"))
		}
		if dsn == "" {
			dsn = "flussauth.db"
		}
	default:
		return "", "", usagef("adapter must be sqlite or postgres, got %q", adapter)
	}
	if dsn == "" {
		return "", "", usagef("no dsn for adapter %s", adapter)
	}
	return adapter, dsn, nil
}
