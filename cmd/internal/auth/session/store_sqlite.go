package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"flussauth/cmd/internal/db"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore implements Store on SQLite.
//
// Admissions hold mu for the whole transaction; together with the
// single-connection pool from db.OpenSQLite this gives per-process exclusion.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore creates a SQLite-backed session store.
func NewSQLiteStore(sqlDB *sql.DB) (*SQLiteStore, error) {
	if sqlDB == nil {
		return nil, errors.New("session: nil sql db")
	}
	return &SQLiteStore{db: sqlDB}, nil
}

// Admit implements Store.
func (s *SQLiteStore) Admit(ctx context.Context, userID string, fn func(tx AdmissionTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session.Admit: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session.Admit: commit: %w", err)
	}
	return nil
}

// DeleteExpired implements Store.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM active_sessions WHERE expires_at < ?`, db.UnixNano(now))
	if err != nil {
		return 0, fmt.Errorf("session.DeleteExpired: %w", err)
	}
	return res.RowsAffected()
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Get(ctx context.Context, fingerprint string) (Row, error) {
	var (
		row                           Row
		started, checked, expiresNano int64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT fingerprint, token_id, user_id, stream_name, client_ip, protocol,
		       started_at, last_checked_at, expires_at
		FROM active_sessions
		WHERE fingerprint = ?
	`, fingerprint).Scan(
		&row.Fingerprint,
		&row.TokenID,
		&row.UserID,
		&row.StreamName,
		&row.ClientIP,
		&row.Protocol,
		&started,
		&checked,
		&expiresNano,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, fmt.Errorf("session.Get: %w", err)
	}
	row.StartedAt = db.FromUnixNano(started)
	row.LastCheckedAt = db.FromUnixNano(checked)
	row.ExpiresAt = db.FromUnixNano(expiresNano)
	return row, nil
}

func (t *sqliteTx) CountActive(ctx context.Context, userID, excludeFingerprint string, now time.Time) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM active_sessions
		WHERE user_id = ? AND expires_at > ? AND fingerprint <> ?
	`, userID, db.UnixNano(now), excludeFingerprint).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("session.CountActive: %w", err)
	}
	return n, nil
}

func (t *sqliteTx) Upsert(ctx context.Context, row Row) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO active_sessions (
			fingerprint, token_id, user_id, stream_name, client_ip, protocol,
			started_at, last_checked_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			token_id = excluded.token_id,
			user_id = excluded.user_id,
			stream_name = excluded.stream_name,
			client_ip = excluded.client_ip,
			protocol = excluded.protocol,
			started_at = excluded.started_at,
			last_checked_at = excluded.last_checked_at,
			expires_at = excluded.expires_at
	`,
		row.Fingerprint, row.TokenID, row.UserID, row.StreamName, row.ClientIP, row.Protocol,
		db.UnixNano(row.StartedAt), db.UnixNano(row.LastCheckedAt), db.UnixNano(row.ExpiresAt),
	)
	if err != nil {
		if sqliteIsForeignKeyViolation(err) {
			return ErrTokenGone
		}
		return fmt.Errorf("session.Upsert: %w", err)
	}
	return nil
}

func (t *sqliteTx) Extend(ctx context.Context, fingerprint string, checkedAt, expiresAt time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE active_sessions
		SET last_checked_at = ?, expires_at = ?
		WHERE fingerprint = ?
	`, db.UnixNano(checkedAt), db.UnixNano(expiresAt), fingerprint)
	if err != nil {
		return fmt.Errorf("session.Extend: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session.Extend: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func sqliteIsForeignKeyViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
