package session

import "errors"

var (
	// ErrSessionNotFound is returned when no session row matches a fingerprint.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTokenGone is returned by Upsert when the referenced token row no longer exists.
	ErrTokenGone = errors.New("session token no longer exists")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
