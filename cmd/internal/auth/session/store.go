package session

import (
	"context"
	"time"
)

// Row mirrors an active_sessions row.
type Row struct {
	Fingerprint   string
	TokenID       string
	UserID        string
	StreamName    string
	ClientIP      string
	Protocol      string
	StartedAt     time.Time
	LastCheckedAt time.Time
	ExpiresAt     time.Time
}

// Live reports whether the session still holds a slot at now.
func (r Row) Live(now time.Time) bool { return r.ExpiresAt.After(now) }

// AdmissionTx is the view of the session store available inside Store.Admit.
// All calls observe and mutate state under the identity's admission lock.
type AdmissionTx interface {
	// Get loads the row for fingerprint, expired or not.
	// Returns ErrSessionNotFound when no row exists.
	Get(ctx context.Context, fingerprint string) (Row, error)

	// CountActive counts userID's rows with expires_at > now, excluding excludeFingerprint.
	CountActive(ctx context.Context, userID, excludeFingerprint string, now time.Time) (int, error)

	// Upsert inserts row, or replaces the row with the same fingerprint.
	Upsert(ctx context.Context, row Row) error

	// Extend sets last_checked_at and expires_at on an existing row.
	// Returns ErrSessionNotFound when the row is gone.
	Extend(ctx context.Context, fingerprint string, checkedAt, expiresAt time.Time) error
}

// Store abstracts persistence for active sessions.
type Store interface {
	// Admit runs fn with exclusive admission rights for userID.
	// Changes made through tx are committed when fn returns nil and
	// discarded when it returns an error.
	Admit(ctx context.Context, userID string, fn func(tx AdmissionTx) error) error

	// DeleteExpired removes rows with expires_at < now and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
