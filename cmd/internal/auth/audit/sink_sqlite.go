package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"flussauth/cmd/internal/db"
)

// SQLiteSink appends entries to the access_logs table.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink constructs a SQLite-backed sink.
func NewSQLiteSink(sqlDB *sql.DB) (*SQLiteSink, error) {
	if sqlDB == nil {
		return nil, errors.New("audit: nil sql db")
	}
	return &SQLiteSink{db: sqlDB}, nil
}

// Write implements Sink.
func (s *SQLiteSink) Write(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_logs (
			id, occurred_at, token, user_id, stream_name, client_ip,
			protocol, result, reason, detail
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, db.UnixNano(e.OccurredAt), e.Token, nullIfEmpty(e.UserID), e.StreamName, e.ClientIP,
		e.Protocol, string(e.Result), e.Reason, nullIfEmpty(e.Detail))
	if err != nil {
		return fmt.Errorf("audit.Write: %w", err)
	}
	return nil
}
