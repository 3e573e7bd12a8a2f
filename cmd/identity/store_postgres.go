package identity

import (
	"context"
	"encoding/json"
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

// PostgresStore implements Store using PostgreSQL (flussauth.tokens).
//
// Ownership model:
// - the pool is owned by the caller (app), Close is therefore not provided.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	tokens string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the token store (default "flussauth").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return errors.New("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed token store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	st.tokens = pgIdent(st.schema, "tokens")
	return st, nil
}

// GetByToken implements Store.
func (s *PostgresStore) GetByToken(ctx context.Context, token string) (Token, error) {
	const op = "identity.GetByToken"

	var (
		t      Token
		status string
		meta   []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT
			id, token, user_id, status, max_sessions,
			valid_from, valid_until, allowed_ips, allowed_streams,
			metadata, created_at, updated_at
		FROM `+s.tokens+`
		WHERE token = $1
	`, token).Scan(
		&t.ID,
		&t.Token,
		&t.UserID,
		&status,
		&t.MaxSessions,
		&t.ValidFrom,
		&t.ValidUntil,
		&t.AllowedIPs,
		&t.AllowedStreams,
		&meta,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, tokenNotFound(op)
	}
	if err != nil {
		return Token{}, fmt.Errorf("%s: %w", op, err)
	}

	t.Status = Status(status)
	t.AllowedIPs = NormalizeList(t.AllowedIPs)
	t.AllowedStreams = NormalizeList(t.AllowedStreams)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return Token{}, fmt.Errorf("%s: metadata: %w", op, err)
		}
	}
	return t, nil
}

// ApplyTransition implements Store.
func (s *PostgresStore) ApplyTransition(ctx context.Context, tr StatusTransition) error {
	const op = "identity.ApplyTransition"
	if tr.TokenID == "" || tr.To == "" {
		return invalid(op, "token id and target status are required")
	}

	at := tr.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.tokens+`
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, tr.TokenID, string(tr.From), string(tr.To), at)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, in CreateTokenInput) (Token, error) {
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

	t := tokenFromInput(id, in)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO `+s.tokens+` (
			id, token, user_id, status, max_sessions,
			valid_from, valid_until, allowed_ips, allowed_streams,
			metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10::jsonb, $11, $11
		)
	`, t.ID, t.Token, t.UserID, string(t.Status), t.MaxSessions,
		t.ValidFrom, t.ValidUntil, t.AllowedIPs, t.AllowedStreams,
		string(meta), t.CreatedAt)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Token{}, ConflictError{Op: op, Field: field}
		}
		return Token{}, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names.
	switch c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName)); c {
	case "uq_tokens_token":
		return "token", true
	case "tokens_pkey":
		return "id", true
	default:
		return c, true
	}
}
