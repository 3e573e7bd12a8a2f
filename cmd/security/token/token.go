package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"os"
	"strconv"
	"strings"
)

const (
	// FingerprintKeyEnv is the env var name for the optional fingerprint HMAC key.
	// #nosec G101 -- not a credential; it's an environment variable name.
	FingerprintKeyEnv = "FLUSSAUTH_FINGERPRINT_KEY"

	// MinFingerprintKeyBytes is the minimum accepted HMAC key size.
	MinFingerprintKeyBytes = 32
)

// Fingerprint returns the unkeyed session fingerprint of (stream, clientIP, tok).
func Fingerprint(stream, clientIP, tok string) string {
	return digest(sha256.New(), stream, clientIP, tok)
}

// Fingerprinter computes session fingerprints, optionally keyed.
// The zero value is usable and computes unkeyed fingerprints.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter returns a Fingerprinter. An empty key selects plain SHA-256.
func NewFingerprinter(key []byte) (Fingerprinter, error) {
	if len(key) == 0 {
		return Fingerprinter{}, nil
	}
	if len(key) < MinFingerprintKeyBytes {
		return Fingerprinter{}, ErrFingerprintKeyTooShort
	}
	k := make([]byte, len(key))
	copy(k, key)
	return Fingerprinter{key: k}, nil
}

// FingerprinterFromEnv builds a Fingerprinter from FLUSSAUTH_FINGERPRINT_KEY.
func FingerprinterFromEnv() (Fingerprinter, error) {
	raw := strings.TrimSpace(os.Getenv(FingerprintKeyEnv))
	return NewFingerprinter([]byte(raw))
}

// Keyed reports whether fingerprints are HMAC-based.
func (f Fingerprinter) Keyed() bool { return len(f.key) > 0 }

// Fingerprint returns the session fingerprint of (stream, clientIP, tok).
func (f Fingerprinter) Fingerprint(stream, clientIP, tok string) string {
	if len(f.key) == 0 {
		return Fingerprint(stream, clientIP, tok)
	}
	return digest(hmac.New(sha256.New, f.key), stream, clientIP, tok)
}

// digest writes each field as "<len>:<bytes>" in order and returns the hex sum.
func digest(h hash.Hash, fields ...string) string {
	var lenBuf [20]byte
	for _, f := range fields {
		_, _ = h.Write(strconv.AppendInt(lenBuf[:0], int64(len(f)), 10))
		_, _ = h.Write([]byte{':'})
		_, _ = h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}
