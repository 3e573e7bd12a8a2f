package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"flussauth/cmd/internal/db"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore implements Store on the SQLite schema (tokens table).
// The *sql.DB is owned by the caller.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore constructs a SQLite-backed token store.
func NewSQLiteStore(sqlDB *sql.DB) (*SQLiteStore, error) {
	if sqlDB == nil {
		return nil, errors.New("identity: nil sqlite db")
	}
	return &SQLiteStore{db: sqlDB}, nil
}

// GetByToken implements Store.
func (s *SQLiteStore) GetByToken(ctx context.Context, token string) (Token, error) {
	const op = "identity.GetByToken"

	var (
		t                   Token
		status              string
		validFrom           int64
		validUntil          sql.NullInt64
		ips, streams        sql.NullString
		meta                string
		createdAt, updateAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			id, token, user_id, status, max_sessions,
			valid_from, valid_until, allowed_ips, allowed_streams,
			metadata, created_at, updated_at
		FROM tokens
		WHERE token = ?
	`, token).Scan(
		&t.ID, &t.Token, &t.UserID, &status, &t.MaxSessions,
		&validFrom, &validUntil, &ips, &streams,
		&meta, &createdAt, &updateAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, tokenNotFound(op)
	}
	if err != nil {
		return Token{}, fmt.Errorf("%s: %w", op, err)
	}

	t.Status = Status(status)
	t.ValidFrom = db.FromUnixNano(validFrom)
	if validUntil.Valid {
		v := db.FromUnixNano(validUntil.Int64)
		t.ValidUntil = &v
	}
	if t.AllowedIPs, err = decodeList(ips); err != nil {
		return Token{}, fmt.Errorf("%s: allowed_ips: %w", op, err)
	}
	if t.AllowedStreams, err = decodeList(streams); err != nil {
		return Token{}, fmt.Errorf("%s: allowed_streams: %w", op, err)
	}
	if strings.TrimSpace(meta) != "" {
		if err := json.Unmarshal([]byte(meta), &t.Metadata); err != nil {
			return Token{}, fmt.Errorf("%s: metadata: %w", op, err)
		}
	}
	t.CreatedAt = db.FromUnixNano(createdAt)
	t.UpdatedAt = db.FromUnixNano(updateAt)
	return t, nil
}

// ApplyTransition implements Store.
func (s *SQLiteStore) ApplyTransition(ctx context.Context, tr StatusTransition) error {
	const op = "identity.ApplyTransition"
	if tr.TokenID == "" || tr.To == "" {
		return invalid(op, "token id and target status are required")
	}

	at := tr.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE tokens
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(tr.To), db.UnixNano(at), tr.TokenID, string(tr.From))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, in CreateTokenInput) (Token, error) {
	const op = "identity.Create"

	in, err := normalizeCreate(op, in)
	if err != nil {
		return Token{}, err
	}
	id, err := NewULID(in.Now)
	if err != nil {
		return Token{}, err
	}
	meta, err := json.Marshal(in.Metadata)
	if err != nil {
		return Token{}, invalid(op, "metadata is not JSON-encodable")
	}
	ips, err := encodeList(in.AllowedIPs)
	if err != nil {
		return Token{}, invalid(op, "allowed_ips")
	}
	streams, err := encodeList(in.AllowedStreams)
	if err != nil {
		return Token{}, invalid(op, "allowed_streams")
	}

	t := tokenFromInput(id, in)

	var validUntil sql.NullInt64
	if t.ValidUntil != nil {
		validUntil = sql.NullInt64{Int64: db.UnixNano(*t.ValidUntil), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tokens (
			id, token, user_id, status, max_sessions,
			valid_from, valid_until, allowed_ips, allowed_streams,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Token, t.UserID, string(t.Status), t.MaxSessions,
		db.UnixNano(t.ValidFrom), validUntil, ips, streams,
		string(meta), db.UnixNano(t.CreatedAt), db.UnixNano(t.UpdatedAt))
	if err != nil {
		if sqliteIsUniqueViolation(err) {
			return Token{}, ConflictError{Op: op, Field: "token"}
		}
		return Token{}, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

func encodeList(in []string) (sql.NullString, error) {
	if len(in) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeList(v sql.NullString) ([]string, error) {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil, err
	}
	return NormalizeList(out), nil
}

// sqliteIsUniqueViolation matches SQLITE_CONSTRAINT_UNIQUE / PRIMARYKEY failures.
func sqliteIsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	// Older driver builds report the primary code only; the message is stable.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
