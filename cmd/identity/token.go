package identity

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Status is the lifecycle status of a token.
type Status string

const (
	// StatusActive tokens may be admitted, subject to validity window and allow-lists.
	StatusActive Status = "active"
	// StatusSuspended tokens are always denied.
	StatusSuspended Status = "suspended"
	// StatusExpired tokens are always denied. Set lazily once valid_until has passed.
	StatusExpired Status = "expired"
)

// ParseStatus validates a stored or configured status value.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusSuspended, StatusExpired:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown token status %q", ErrInvalidInput, s)
	}
}

// Token is the credential record presented on every playback check.
type Token struct {
	ID          string
	Token       string
	UserID      string
	Status      Status
	MaxSessions int

	ValidFrom  time.Time
	ValidUntil *time.Time

	// Empty allow-lists mean "any".
	AllowedIPs     []string
	AllowedStreams []string

	Metadata map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AllowsIP reports whether ip passes the token's IP allow-list.
// Entries match exactly or as equal parsed addresses (IPv4-mapped IPv6 is unmapped).
func (t Token) AllowsIP(ip string) bool {
	if len(t.AllowedIPs) == 0 {
		return true
	}

	var (
		addr    netip.Addr
		addrErr error
		parsed  bool
	)
	for _, a := range t.AllowedIPs {
		if a == ip {
			return true
		}
		if !parsed {
			addr, addrErr = netip.ParseAddr(ip)
			parsed = true
		}
		if addrErr != nil {
			continue
		}
		other, err := netip.ParseAddr(a)
		if err != nil {
			continue
		}
		if other.Unmap() == addr.Unmap() {
			return true
		}
	}
	return false
}

// AllowsStream reports whether name passes the token's stream allow-list.
func (t Token) AllowsStream(name string) bool {
	if len(t.AllowedStreams) == 0 {
		return true
	}
	for _, s := range t.AllowedStreams {
		if s == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate store-owned slices and maps.
func (t Token) Clone() Token {
	out := t
	if t.ValidUntil != nil {
		v := *t.ValidUntil
		out.ValidUntil = &v
	}
	out.AllowedIPs = cloneStrings(t.AllowedIPs)
	out.AllowedStreams = cloneStrings(t.AllowedStreams)
	if t.Metadata != nil {
		out.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// StatusTransition is a status change computed by the decision path and
// applied by a Store. From acts as a compare-and-set guard.
type StatusTransition struct {
	TokenID string
	From    Status
	To      Status
	At      time.Time
}

// ExpireTransition returns the lazy active->expired transition for t.
func ExpireTransition(t Token, now time.Time) StatusTransition {
	return StatusTransition{
		TokenID: t.ID,
		From:    t.Status,
		To:      StatusExpired,
		At:      now,
	}
}

// NewOpaqueToken returns a cryptographically random, URL-safe token string.
func NewOpaqueToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 24
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	// URL-safe, no padding: tokens travel in query strings.
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
