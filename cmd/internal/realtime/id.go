package realtime

import (
	"time"

	"flussauth/cmd/identity/ids"
)

// NewSessionID returns a ULID used as feed session id.
func NewSessionID(now time.Time) string {
	return ids.MustULID(now)
}

// NewEnvelopeID returns a ULID used as envelope id.
// ULID is preferable to random hex for tracing and ordering in logs.
func NewEnvelopeID(now time.Time) string {
	return ids.MustULID(now)
}
