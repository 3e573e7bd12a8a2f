// Package db owns schema management: embedded SQL migrations for every
// durable backend and the SQLite connection bootstrap.
package db

import "embed"

// MigrationFS embeds SQL migration files from migrations/<adapter>.
// Used by the app at startup (FLUSSAUTH_AUTO_MIGRATE) and by `flussauthctl migrate`.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var MigrationFS embed.FS
