package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// SQLiteDSN turns a file path into a modernc.org/sqlite DSN with the pragmas
// the stores rely on. Values already in "file:" form are returned unchanged.
func SQLiteDSN(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)"
}

// OpenSQLite opens the SQLite database at path and verifies connectivity.
//
// The pool is limited to one connection: SQLite serializes writers anyway,
// and a single connection makes store-level transactions the only lock.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

// UnixNano converts t to the INTEGER representation used by SQLite tables.
func UnixNano(t time.Time) int64 { return t.UTC().UnixNano() }

// FromUnixNano converts a stored INTEGER timestamp back to UTC time.
func FromUnixNano(n int64) time.Time { return time.Unix(0, n).UTC() }
