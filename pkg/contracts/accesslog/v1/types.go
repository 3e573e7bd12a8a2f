// Package v1 defines the access-log feed protocol v1.
//
// It is shared by the server and by feed clients (see tools/scripts/feed-smoke.go)
// so the wire format has one authoritative definition.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is embedded into every envelope.
const Version = "v1"

// Subprotocol is the WebSocket subprotocol clients must offer.
const Subprotocol = "flussauth.accesslog.v1"

// Type constants (wire-stable).
const (
	// TypeHello starts a session handshake (client -> server).
	TypeHello = "hello"
	// TypeHelloAck acknowledges the handshake (server -> client).
	TypeHelloAck = "hello_ack"

	// TypeFilter replaces the client's entry filter (client -> server) and is echoed back.
	TypeFilter = "filter"

	// TypeAccessLog carries one access-log entry (server -> client).
	TypeAccessLog = "access_log"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}

	switch e.Type {
	case TypeHello, TypeHelloAck, TypeFilter, TypeAccessLog, TypeError:
		return nil
	case "":
		return errors.New("missing field: type")
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// HelloPayload is sent by the client to initiate a session.
type HelloPayload struct{}

// HelloAckPayload carries the server-assigned session id.
type HelloAckPayload struct {
	SessionID string `json:"session_id"`
}

// FilterPayload narrows which entries a client receives. Empty fields match anything.
type FilterPayload struct {
	Result     string `json:"result,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	StreamName string `json:"stream_name,omitempty"`
}

// AccessLogPayload is one decision as seen by feed clients.
// TokenPrefix is a masked token; full tokens never leave the server.
type AccessLogPayload struct {
	EntryID     string    `json:"entry_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	TokenPrefix string    `json:"token_prefix"`
	UserID      string    `json:"user_id,omitempty"`
	StreamName  string    `json:"stream_name"`
	ClientIP    string    `json:"client_ip"`
	Protocol    string    `json:"protocol"`
	Result      string    `json:"result"`
	Reason      string    `json:"reason"`
	Detail      string    `json:"detail,omitempty"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
