package decision

import (
	"strings"
	"time"

	"flussauth/cmd/identity"
)

// Request is one playback authorization request.
type Request struct {
	StreamName string
	ClientIP   string
	Token      string
	Protocol   string
}

// Normalize trims fields, defaults Protocol to "unknown" and rejects
// requests missing a stream, client address or token.
func (r Request) Normalize() (Request, error) {
	r.StreamName = strings.TrimSpace(r.StreamName)
	r.ClientIP = strings.TrimSpace(r.ClientIP)
	r.Token = strings.TrimSpace(r.Token)
	r.Protocol = strings.TrimSpace(r.Protocol)

	switch {
	case r.StreamName == "":
		return Request{}, &RequestError{Field: "name"}
	case r.ClientIP == "":
		return Request{}, &RequestError{Field: "ip"}
	case r.Token == "":
		return Request{}, &RequestError{Field: "token"}
	}
	if r.Protocol == "" {
		r.Protocol = "unknown"
	}
	return r, nil
}

// Verdict is the outcome of the checks that need no session state.
type Verdict struct {
	// Eligible is true when the request may proceed to concurrency admission.
	Eligible bool
	// Reason is the denial reason when Eligible is false.
	Reason Reason
	// Transition is a status change the caller should persist, if any.
	Transition *identity.StatusTransition
}

// Evaluate applies status, validity window, IP and stream checks to tok, in that order.
func Evaluate(tok identity.Token, req Request, now time.Time) Verdict {
	switch tok.Status {
	case identity.StatusSuspended:
		return Verdict{Reason: ReasonTokenSuspended}
	case identity.StatusExpired:
		return Verdict{Reason: ReasonTokenExpired}
	}

	if now.Before(tok.ValidFrom) {
		return Verdict{Reason: ReasonTokenNotYetValid}
	}
	if tok.ValidUntil != nil && now.After(*tok.ValidUntil) {
		tr := identity.ExpireTransition(tok, now)
		return Verdict{Reason: ReasonTokenExpired, Transition: &tr}
	}

	if !tok.AllowsIP(req.ClientIP) {
		return Verdict{Reason: ReasonIPNotAllowed}
	}
	if !tok.AllowsStream(req.StreamName) {
		return Verdict{Reason: ReasonStreamNotAllowed}
	}
	return Verdict{Eligible: true}
}
