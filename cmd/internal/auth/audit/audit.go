// Package audit records one access-log entry per authorization decision.
package audit

import (
	"context"
	"errors"
	"time"
)

// Result is the outcome recorded for a decision.
type Result string

const (
	ResultAllowed Result = "allowed"
	ResultDenied  Result = "denied"
)

// Entry is an append-only access-log record.
type Entry struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Token      string    `json:"token"`
	UserID     string    `json:"user_id,omitempty"`
	StreamName string    `json:"stream_name"`
	ClientIP   string    `json:"client_ip"`
	Protocol   string    `json:"protocol"`
	Result     Result    `json:"result"`
	Reason     string    `json:"reason"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink persists or forwards entries.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Tee fans an entry out to every sink and joins their errors.
// A failing sink does not prevent the others from receiving the entry.
type Tee []Sink

// Write implements Sink.
func (t Tee) Write(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range t {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every entry.
var Discard Sink = discard{}

type discard struct{}

func (discard) Write(context.Context, Entry) error { return nil }

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
