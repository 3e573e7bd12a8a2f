package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"flussauth/cmd/identity"
	"flussauth/cmd/internal/auth/audit"
	"flussauth/cmd/internal/auth/session"
	"flussauth/cmd/internal/db"

	"github.com/jackc/pgx/v5/pgxpool"
)

// backend bundles the stores of one storage adapter and owns its connections.
type backend struct {
	adapter string

	tokens   identity.Store
	sessions session.Store
	audit    audit.Sink

	pool  *pgxpool.Pool
	sqlDB *sql.DB
}

// Durable reports whether state survives a restart.
func (b *backend) Durable() bool { return b.adapter != db.AdapterMemory }

// Ping checks store connectivity within timeout. Memory always answers.
func (b *backend) Ping(parent context.Context, timeout time.Duration) error {
	switch {
	case b.pool != nil:
		return PingDB(parent, b.pool, timeout)
	case b.sqlDB != nil:
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		return b.sqlDB.PingContext(ctx)
	default:
		return nil
	}
}

// Close releases connections. The stores themselves own nothing.
func (b *backend) Close(_ context.Context) error {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.sqlDB != nil {
		return b.sqlDB.Close()
	}
	return nil
}

// openBackend builds the stores for the configured adapter, running
// embedded migrations first when AutoMigrate is set.
func openBackend(ctx context.Context, cfg Config, log Logger) (*backend, error) {
	adapter, err := cfg.Adapter()
	if err != nil {
		return nil, err
	}

	switch adapter {
	case db.AdapterMemory:
		// Nothing reads access logs back in memory mode; the live feed still sees every entry.
		log.Info("db.disabled.inmemory_store")
		return &backend{
			adapter:  adapter,
			tokens:   identity.NewMemoryStore(),
			sessions: session.NewMemoryStore(),
			audit:    audit.Discard,
		}, nil

	case db.AdapterSQLite:
		if cfg.AutoMigrate {
			if err := db.Migrate(db.AdapterSQLite, cfg.SQLitePath, db.Up); err != nil {
				return nil, err
			}
		}
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		b := &backend{adapter: adapter, sqlDB: sqlDB}
		if err := b.initSQLite(); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		log.Info("db.enabled.sqlite_store", "path", cfg.SQLitePath)
		return b, nil

	case db.AdapterPostgres:
		if cfg.AutoMigrate {
			if err := db.Migrate(db.AdapterPostgres, cfg.DatabaseURL, db.Up); err != nil {
				return nil, err
			}
		}
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		b := &backend{adapter: adapter, pool: pool}
		if err := b.initPostgres(); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("db.enabled.postgres_store")
		return b, nil
	}
	return nil, errors.New("unreachable adapter")
}

func (b *backend) initSQLite() error {
	tokens, err := identity.NewSQLiteStore(b.sqlDB)
	if err != nil {
		return err
	}
	sessions, err := session.NewSQLiteStore(b.sqlDB)
	if err != nil {
		return err
	}
	sink, err := audit.NewSQLiteSink(b.sqlDB)
	if err != nil {
		return err
	}
	b.tokens, b.sessions, b.audit = tokens, sessions, sink
	return nil
}

func (b *backend) initPostgres() error {
	tokens, err := identity.NewPostgresStore(b.pool)
	if err != nil {
		return err
	}
	sessions, err := session.NewPostgresStore(b.pool)
	if err != nil {
		return err
	}
	sink, err := audit.NewPostgresSink(b.pool, "")
	if err != nil {
		return err
	}
	b.tokens, b.sessions, b.audit = tokens, sessions, sink
	return nil
}
