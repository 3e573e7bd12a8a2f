package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"flussauth/cmd/internal/auth/audit"
	"flussauth/cmd/internal/auth/decision"
	v1 "flussauth/pkg/contracts/accesslog/v1"
)

// FeedObserver receives feed metrics. Implemented by the metrics package.
type FeedObserver interface {
	FeedClientJoined()
	FeedClientLeft()
	FeedDropped()
}

// Feed fans access-log entries out to connected clients.
//
// Concurrency guarantees:
// - Join/Leave are safe under concurrent Write.
// - Write never blocks (drops under backpressure).
// - Write is panic-safe because Client.Send is never closed by the server.
type Feed struct {
	log *slog.Logger
	obs FeedObserver

	mu      sync.RWMutex
	members map[string]*Client
}

// NewFeed constructs an empty Feed. obs may be nil.
func NewFeed(log *slog.Logger, obs FeedObserver) *Feed {
	if log == nil {
		log = slog.Default()
	}
	return &Feed{
		log:     log,
		obs:     obs,
		members: make(map[string]*Client),
	}
}

// Join adds a client.
func (f *Feed) Join(client *Client) {
	if f == nil || client == nil || client.SessionID == "" {
		return
	}

	f.mu.Lock()
	_, existed := f.members[client.SessionID]
	f.members[client.SessionID] = client
	f.mu.Unlock()

	if !existed && f.obs != nil {
		f.obs.FeedClientJoined()
	}
	f.log.Info("feed.client.join", "session_id", client.SessionID)
}

// Leave removes a client and signals its shutdown.
func (f *Feed) Leave(sessionID string) {
	if f == nil || sessionID == "" {
		return
	}

	f.mu.Lock()
	cl := f.members[sessionID]
	delete(f.members, sessionID)
	f.mu.Unlock()

	// Close after removal so a concurrent Write cannot pick the client up again.
	if cl != nil {
		cl.Close()
		if f.obs != nil {
			f.obs.FeedClientLeft()
		}
	}
	f.log.Info("feed.client.leave", "session_id", sessionID)
}

// Len returns the number of connected clients.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.members)
}

// Write implements audit.Sink. Delivery is best effort: it never blocks
// and never fails the decision that produced e.
func (f *Feed) Write(_ context.Context, e audit.Entry) error {
	if f == nil {
		return nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.members) == 0 {
		return nil
	}

	env, err := accessLogEnvelope(e)
	if err != nil {
		return err
	}

	for _, m := range f.members {
		if m == nil || !m.Filter().Matches(e) {
			continue
		}

		select {
		case <-m.Done():
			continue
		default:
		}

		select {
		case m.Send <- env:
		default:
			// Slow client: drop rather than stall decisions.
			if f.obs != nil {
				f.obs.FeedDropped()
			}
		}
	}
	return nil
}

func accessLogEnvelope(e audit.Entry) (v1.Envelope, error) {
	p, err := json.Marshal(v1.AccessLogPayload{
		EntryID:     e.ID,
		OccurredAt:  e.OccurredAt,
		TokenPrefix: decision.MaskToken(e.Token),
		UserID:      e.UserID,
		StreamName:  e.StreamName,
		ClientIP:    e.ClientIP,
		Protocol:    e.Protocol,
		Result:      string(e.Result),
		Reason:      e.Reason,
		Detail:      e.Detail,
	})
	if err != nil {
		return v1.Envelope{}, err
	}
	return newEnvelope(v1.TypeAccessLog, p, time.Now().UTC()), nil
}
