package identity

import (
	"context"
	"time"
)

// CreateTokenInput describes a token row to insert.
// Zero values get defaults: random Token, StatusActive, MaxSessions=1, ValidFrom=Now.
type CreateTokenInput struct {
	Token          string
	UserID         string
	Status         Status
	MaxSessions    int
	ValidFrom      time.Time
	ValidUntil     *time.Time
	AllowedIPs     []string
	AllowedStreams []string
	Metadata       map[string]any
	Now            time.Time
}

// Store is the token persistence boundary consumed by the decision engine.
type Store interface {
	// GetByToken loads a token by its string value.
	// Returns an error matching ErrNotFound when no row exists.
	GetByToken(ctx context.Context, token string) (Token, error)

	// ApplyTransition persists a status transition computed by the decision path.
	// It is a compare-and-set on tr.From: if the row no longer has that status
	// (already transitioned, or changed by an operator) it is a no-op.
	ApplyTransition(ctx context.Context, tr StatusTransition) error

	// Create inserts a token. Returns ConflictError{Field: "token"} on duplicates.
	Create(ctx context.Context, in CreateTokenInput) (Token, error)
}

func tokenFromInput(id string, in CreateTokenInput) Token {
	return Token{
		ID:             id,
		Token:          in.Token,
		UserID:         in.UserID,
		Status:         in.Status,
		MaxSessions:    in.MaxSessions,
		ValidFrom:      in.ValidFrom.UTC(),
		ValidUntil:     utcPtr(in.ValidUntil),
		AllowedIPs:     in.AllowedIPs,
		AllowedStreams: in.AllowedStreams,
		Metadata:       in.Metadata,
		CreatedAt:      in.Now.UTC(),
		UpdatedAt:      in.Now.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
