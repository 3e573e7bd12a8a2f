package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink appends entries to flussauth.access_logs.
type PostgresSink struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresSink constructs a sink writing to schema.access_logs.
// An empty schema means "flussauth".
func NewPostgresSink(pool *pgxpool.Pool, schema string) (*PostgresSink, error) {
	if pool == nil {
		return nil, errors.New("audit: nil pool")
	}
	if schema == "" {
		schema = "flussauth"
	}
	return &PostgresSink{pool: pool, table: pgx.Identifier{schema, "access_logs"}.Sanitize()}, nil
}

// Write implements Sink.
func (s *PostgresSink) Write(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (
			id, occurred_at, token, user_id, stream_name, client_ip,
			protocol, result, reason, detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.OccurredAt.UTC(), e.Token, nullIfEmpty(e.UserID), e.StreamName, e.ClientIP,
		e.Protocol, string(e.Result), e.Reason, nullIfEmpty(e.Detail))
	if err != nil {
		return fmt.Errorf("audit.Write: %w", err)
	}
	return nil
}
