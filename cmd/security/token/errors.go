package token

import "errors"

// Public, stable errors for callers.
var (
	ErrFingerprintKeyTooShort = errors.New("fingerprint key too short")
)
