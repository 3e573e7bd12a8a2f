package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// Adapter names accepted by FLUSSAUTH_DB_ADAPTER.
const (
	AdapterMemory   = "memory"
	AdapterSQLite   = "sqlite"
	AdapterPostgres = "postgres"
)

// Direction is a migration direction.
type Direction string

const (
	// Up applies all pending migrations.
	Up Direction = "up"
	// Down reverts all applied migrations.
	Down Direction = "down"
)

// ErrUnsupportedAdapter is returned for adapters without a schema (memory) or unknown names.
var ErrUnsupportedAdapter = errors.New("db: adapter has no migrations")

// ParseDirection validates a CLI/env direction value.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Up, Down:
		return d, nil
	default:
		return "", fmt.Errorf("direction must be up or down, got %q", s)
	}
}

// Migrate applies migrations in the given direction.
// dsn is a Postgres URL for AdapterPostgres and a file path for AdapterSQLite.
// Returns nil when there is nothing to do.
func Migrate(adapter, dsn string, dir Direction) error {
	m, closeFn, err := newMigrator(adapter, dsn)
	if err != nil {
		return err
	}
	defer closeFn()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migrate: version: %w", err)
	}
	if dirty {
		return fmt.Errorf("migrate: database is dirty at version %d; manual intervention required", version)
	}

	switch dir {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	default:
		return fmt.Errorf("migrate: unknown direction %q", dir)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", dir, err)
	}
	return nil
}

// Version returns the applied migration version. A fresh database reports (0, false, nil).
func Version(adapter, dsn string) (uint, bool, error) {
	m, closeFn, err := newMigrator(adapter, dsn)
	if err != nil {
		return 0, false, err
	}
	defer closeFn()

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// newMigrator opens a dedicated handle for migrations. SQLite runs on a
// single-connection pool in the app, so migrations never share it.
func newMigrator(adapter, dsn string) (*migrate.Migrate, func(), error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, nil, errors.New("migrate: empty dsn")
	}

	var (
		sqlDB   *sql.DB
		dirName string
		driver  func(*sql.DB) (database.Driver, error)
		err     error
	)

	switch adapter {
	case AdapterPostgres:
		sqlDB, err = sql.Open("pgx", dsn)
		dirName = "migrations/postgres"
		driver = func(d *sql.DB) (database.Driver, error) {
			return migratepgx.WithInstance(d, &migratepgx.Config{})
		}
	case AdapterSQLite:
		sqlDB, err = sql.Open("sqlite", SQLiteDSN(dsn))
		dirName = "migrations/sqlite"
		driver = func(d *sql.DB) (database.Driver, error) {
			return migratesqlite.WithInstance(d, &migratesqlite.Config{})
		}
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedAdapter, adapter)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("migrate: open: %w", err)
	}

	src, err := iofs.New(MigrationFS, dirName)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("migrate source: %w", err)
	}

	drv, err := driver(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, adapter, drv)
	if err != nil {
		_ = drv.Close()
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	closeFn := func() {
		_, _ = m.Close()
		_ = sqlDB.Close()
	}
	return m, closeFn, nil
}
