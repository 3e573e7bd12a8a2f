package decision

import "fmt"

// Reason is a stable machine-readable decision code.
type Reason string

// Denials.
const (
	ReasonTokenNotFound      Reason = "token_not_found"
	ReasonTokenSuspended     Reason = "token_suspended"
	ReasonTokenExpired       Reason = "token_expired"
	ReasonTokenNotYetValid   Reason = "token_not_yet_valid"
	ReasonIPNotAllowed       Reason = "ip_not_allowed"
	ReasonStreamNotAllowed   Reason = "stream_not_allowed"
	ReasonMaxSessionsReached Reason = "max_sessions_reached"
)

// Admissions.
const (
	ReasonNewSession     Reason = "new_session"
	ReasonSessionRecheck Reason = "session_recheck"
)

// Admits reports whether r is an admission reason.
func (r Reason) Admits() bool {
	return r == ReasonNewSession || r == ReasonSessionRecheck
}

// Message returns the operator-facing text for a decision on req.
func (d Decision) Message(req Request) string {
	switch d.Reason {
	case ReasonTokenNotFound:
		return "Invalid or unknown token"
	case ReasonTokenSuspended:
		return "Token has been suspended"
	case ReasonTokenExpired:
		return "Token has expired"
	case ReasonTokenNotYetValid:
		return "Token is not yet valid"
	case ReasonMaxSessionsReached:
		return fmt.Sprintf("Maximum concurrent sessions limit reached (%d)", d.MaxSessions)
	case ReasonIPNotAllowed:
		return fmt.Sprintf("IP address %s is not authorized for this token", req.ClientIP)
	case ReasonStreamNotAllowed:
		return fmt.Sprintf("Stream '%s' is not authorized for this token", req.StreamName)
	case ReasonNewSession:
		return "New session admitted"
	case ReasonSessionRecheck:
		return "Session rechecked"
	default:
		return string(d.Reason)
	}
}
