package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSchema is the Postgres schema created by the embedded migrations.
const DefaultSchema = "flussauth"

// advisoryLockPrefix namespaces identity admission locks within the database.
const advisoryLockPrefix = "flussauth.identity:"

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresStore implements Store using PostgreSQL (flussauth.active_sessions).
//
// Admissions for one identity are serialized across processes by a
// transaction-scoped advisory lock keyed on the user id.
type PostgresStore struct {
	pool     *pgxpool.Pool
	sessions string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*postgresOptions) error

type postgresOptions struct {
	schema string
}

// WithSchema sets the Postgres schema (default "flussauth").
func WithSchema(schema string) PostgresOption {
	return func(o *postgresOptions) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return errors.New("session: invalid schema identifier")
		}
		o.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	o := postgresOptions{schema: DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	if pool == nil {
		return nil, errors.New("session: nil pool")
	}
	return &PostgresStore{
		pool:     pool,
		sessions: pgx.Identifier{o.schema, "active_sessions"}.Sanitize(),
	}, nil
}

// Admit implements Store.
func (s *PostgresStore) Admit(ctx context.Context, userID string, fn func(tx AdmissionTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("session.Admit: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Held until commit/rollback; concurrent admissions for userID queue here.
	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		advisoryLockPrefix+userID,
	); err != nil {
		return fmt.Errorf("session.Admit: lock: %w", err)
	}

	if err := fn(&postgresTx{tx: tx, sessions: s.sessions}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("session.Admit: commit: %w", err)
	}
	return nil
}

// DeleteExpired implements Store.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.sessions+` WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("session.DeleteExpired: %w", err)
	}
	return tag.RowsAffected(), nil
}

type postgresTx struct {
	tx       pgx.Tx
	sessions string
}

func (t *postgresTx) Get(ctx context.Context, fingerprint string) (Row, error) {
	var row Row
	err := t.tx.QueryRow(ctx, `
		SELECT fingerprint, token_id, user_id, stream_name, client_ip, protocol,
		       started_at, last_checked_at, expires_at
		FROM `+t.sessions+`
		WHERE fingerprint = $1
		FOR UPDATE
	`, fingerprint).Scan(
		&row.Fingerprint,
		&row.TokenID,
		&row.UserID,
		&row.StreamName,
		&row.ClientIP,
		&row.Protocol,
		&row.StartedAt,
		&row.LastCheckedAt,
		&row.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, fmt.Errorf("session.Get: %w", err)
	}
	row.StartedAt = row.StartedAt.UTC()
	row.LastCheckedAt = row.LastCheckedAt.UTC()
	row.ExpiresAt = row.ExpiresAt.UTC()
	return row, nil
}

func (t *postgresTx) CountActive(ctx context.Context, userID, excludeFingerprint string, now time.Time) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM `+t.sessions+`
		WHERE user_id = $1 AND expires_at > $2 AND fingerprint <> $3
	`, userID, now, excludeFingerprint).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("session.CountActive: %w", err)
	}
	return n, nil
}

func (t *postgresTx) Upsert(ctx context.Context, row Row) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO `+t.sessions+` (
			fingerprint, token_id, user_id, stream_name, client_ip, protocol,
			started_at, last_checked_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (fingerprint) DO UPDATE SET
			token_id = EXCLUDED.token_id,
			user_id = EXCLUDED.user_id,
			stream_name = EXCLUDED.stream_name,
			client_ip = EXCLUDED.client_ip,
			protocol = EXCLUDED.protocol,
			started_at = EXCLUDED.started_at,
			last_checked_at = EXCLUDED.last_checked_at,
			expires_at = EXCLUDED.expires_at
	`,
		row.Fingerprint, row.TokenID, row.UserID, row.StreamName, row.ClientIP, row.Protocol,
		row.StartedAt.UTC(), row.LastCheckedAt.UTC(), row.ExpiresAt.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			return ErrTokenGone
		}
		return fmt.Errorf("session.Upsert: %w", err)
	}
	return nil
}

func (t *postgresTx) Extend(ctx context.Context, fingerprint string, checkedAt, expiresAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE `+t.sessions+`
		SET last_checked_at = $2, expires_at = $3
		WHERE fingerprint = $1
	`, fingerprint, checkedAt.UTC(), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("session.Extend: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}
