package apikey

import "errors"

// Public, stable errors for callers.
var (
	ErrEmptyKey    = errors.New("empty api key")
	ErrInvalidHash = errors.New("invalid api key hash")
)
