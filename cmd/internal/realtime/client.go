package realtime

import (
	"sync"
	"sync/atomic"

	"flussauth/cmd/internal/auth/audit"
	v1 "flussauth/pkg/contracts/accesslog/v1"
)

// Filter narrows the entries delivered to a client. Empty fields match anything.
type Filter struct {
	Result     string
	UserID     string
	StreamName string
}

// Matches reports whether e passes the filter.
func (f Filter) Matches(e audit.Entry) bool {
	if f.Result != "" && f.Result != string(e.Result) {
		return false
	}
	if f.UserID != "" && f.UserID != e.UserID {
		return false
	}
	if f.StreamName != "" && f.StreamName != e.StreamName {
		return false
	}
	return true
}

// Client represents one connected feed session.
//
// Design notes:
// - Send is intentionally NOT closed by the server to avoid panics from concurrent publishers.
// - done is used to signal goroutines to stop.
// - Close is idempotent.
type Client struct {
	SessionID string
	Send      chan v1.Envelope

	filter    atomic.Pointer[Filter]
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue and a match-all filter.
func NewClient(sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	c := &Client{
		SessionID: sessionID,
		Send:      make(chan v1.Envelope, sendQueueSize),
		done:      make(chan struct{}),
	}
	c.filter.Store(&Filter{})
	return c
}

// SetFilter replaces the client's filter.
func (c *Client) SetFilter(f Filter) { c.filter.Store(&f) }

// Filter returns the current filter.
func (c *Client) Filter() Filter { return *c.filter.Load() }

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
// It does NOT close Send to keep publishing safe under concurrency.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
