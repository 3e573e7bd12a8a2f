package apikey

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type mode uint8

const (
	modeOpen mode = iota
	modePlain
	modeBcrypt
	modeArgon2id
)

// Verifier checks presented API keys against one configured secret.
// The zero value accepts every request (no key configured).
type Verifier struct {
	mode   mode
	secret string
}

// NewVerifier builds a Verifier from a plain key and/or a hashed key.
// A non-empty hash wins over the plain key.
func NewVerifier(plain, hashed string) (Verifier, error) {
	plain = strings.TrimSpace(plain)
	hashed = strings.TrimSpace(hashed)

	switch {
	case hashed != "":
		switch {
		case strings.HasPrefix(hashed, "$argon2id$"):
			if _, _, _, err := decodeArgon2id(hashed); err != nil {
				return Verifier{}, err
			}
			return Verifier{mode: modeArgon2id, secret: hashed}, nil
		case strings.HasPrefix(hashed, "$2a$"), strings.HasPrefix(hashed, "$2b$"), strings.HasPrefix(hashed, "$2y$"):
			if _, err := bcrypt.Cost([]byte(hashed)); err != nil {
				return Verifier{}, ErrInvalidHash
			}
			return Verifier{mode: modeBcrypt, secret: hashed}, nil
		default:
			return Verifier{}, ErrInvalidHash
		}
	case plain != "":
		return Verifier{mode: modePlain, secret: plain}, nil
	default:
		return Verifier{}, nil
	}
}

// Enabled reports whether a key is configured.
func (v Verifier) Enabled() bool { return v.mode != modeOpen }

// Verify reports whether presented matches the configured key.
// With no key configured, every value (including empty) is accepted.
func (v Verifier) Verify(presented string) bool {
	switch v.mode {
	case modeOpen:
		return true
	case modePlain:
		return subtle.ConstantTimeCompare([]byte(presented), []byte(v.secret)) == 1
	case modeBcrypt:
		if presented == "" {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(v.secret), []byte(presented)) == nil
	case modeArgon2id:
		if presented == "" {
			return false
		}
		ok, err := verifyArgon2id(v.secret, presented)
		return err == nil && ok
	default:
		return false
	}
}
