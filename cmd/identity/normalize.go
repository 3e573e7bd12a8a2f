package identity

import (
	"strings"
	"time"
)

// NormalizeList trims entries, drops empties and duplicates, and keeps order.
// An empty result is returned as nil so that "no allow-list" has one representation.
func NormalizeList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// normalizeCreate validates in and fills defaults.
func normalizeCreate(op string, in CreateTokenInput) (CreateTokenInput, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return CreateTokenInput{}, invalid(op, "user_id is required")
	}

	in.Token = strings.TrimSpace(in.Token)
	if in.Token == "" {
		t, err := NewOpaqueToken(24)
		if err != nil {
			return CreateTokenInput{}, err
		}
		in.Token = t
	}

	if in.Status == "" {
		in.Status = StatusActive
	}
	st, err := ParseStatus(string(in.Status))
	if err != nil {
		return CreateTokenInput{}, invalid(op, err.Error())
	}
	in.Status = st

	if in.MaxSessions == 0 {
		in.MaxSessions = 1
	}
	if in.MaxSessions < 0 {
		return CreateTokenInput{}, invalid(op, "max_sessions must be positive")
	}

	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	if in.ValidFrom.IsZero() {
		in.ValidFrom = in.Now
	}
	if in.ValidUntil != nil && !in.ValidUntil.After(in.ValidFrom) {
		return CreateTokenInput{}, invalid(op, "valid_until must be after valid_from")
	}

	in.AllowedIPs = NormalizeList(in.AllowedIPs)
	in.AllowedStreams = NormalizeList(in.AllowedStreams)
	if in.Metadata == nil {
		in.Metadata = map[string]any{}
	}
	return in, nil
}
