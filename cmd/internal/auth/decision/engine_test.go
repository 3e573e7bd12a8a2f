package decision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"flussauth/cmd/identity"
	"flussauth/cmd/internal/auth/audit"
	"flussauth/cmd/internal/auth/session"
)

type fixture struct {
	tokens   *identity.MemoryStore
	sessions *session.MemoryStore
	sink     *audit.MemorySink
	obs      *countingObserver
	engine   *Engine

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		tokens:   identity.NewMemoryStore(),
		sessions: session.NewMemoryStore(),
		sink:     audit.NewMemorySink(0),
		obs:      &countingObserver{},
		now:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	base := []Option{
		WithClock(f.clock),
		WithAuditSink(f.sink),
		WithObserver(f.obs),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	e, err := NewEngine(f.tokens, f.sessions, DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	f.engine = e
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fixture) token(t *testing.T, in identity.CreateTokenInput) identity.Token {
	t.Helper()
	if in.ValidFrom.IsZero() {
		in.ValidFrom = f.clock().Add(-time.Hour)
	}
	if in.Now.IsZero() {
		in.Now = f.clock().Add(-time.Hour)
	}
	tok, err := f.tokens.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	return tok
}

func (f *fixture) decide(t *testing.T, stream, ip, tok string) Decision {
	t.Helper()
	d, err := f.engine.Decide(context.Background(), Request{StreamName: stream, ClientIP: ip, Token: tok, Protocol: "hls"})
	if err != nil {
		t.Fatalf("Decide(%s,%s,%s): %v", stream, ip, tok, err)
	}
	return d
}

func TestEngine_Scenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.token(t, identity.CreateTokenInput{Token: "abc", UserID: "u1", MaxSessions: 1})

	d := f.decide(t, "s1", "1.2.3.4", "abc")
	if !d.Admitted || d.Reason != ReasonNewSession || d.UserID != "u1" || d.MaxSessions != 1 {
		t.Fatalf("first request: %+v", d)
	}

	f.advance(time.Minute)
	d = f.decide(t, "s1", "1.2.3.4", "abc")
	if !d.Admitted || d.Reason != ReasonSessionRecheck {
		t.Fatalf("recheck: %+v", d)
	}

	d = f.decide(t, "s2", "1.2.3.4", "abc")
	if d.Admitted || d.Reason != ReasonMaxSessionsReached || d.Detail != "1/1" || d.UserID != "u1" {
		t.Fatalf("second stream: %+v", d)
	}

	entries := f.sink.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected one audit entry per decision, got %d", len(entries))
	}
	if entries[2].Result != audit.ResultDenied || entries[2].Reason != string(ReasonMaxSessionsReached) || entries[2].Detail != "1/1" {
		t.Fatalf("unexpected audit entry %+v", entries[2])
	}
	if entries[0].Result != audit.ResultAllowed || entries[0].ID == "" || entries[0].Protocol != "hls" {
		t.Fatalf("unexpected audit entry %+v", entries[0])
	}
}

func TestEngine_RecheckIsIdempotentAndExtends(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.token(t, identity.CreateTokenInput{Token: "abc", UserID: "u1", MaxSessions: 1})

	for i := 0; i < 100; i++ {
		d := f.decide(t, "s1", "1.2.3.4", "abc")
		if !d.Admitted {
			t.Fatalf("iteration %d denied: %+v", i, d)
		}
		if i > 0 && d.Reason != ReasonSessionRecheck {
			t.Fatalf("iteration %d reason %s", i, d.Reason)
		}
		// Each step is shorter than AuthDuration; total far exceeds it.
		f.advance(90 * time.Second)
	}
	if f.sessions.Len() != 1 {
		t.Fatalf("expected a single session row, got %d", f.sessions.Len())
	}
}

func TestEngine_LimitBoundaryAndSlotRelease(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.token(t, identity.CreateTokenInput{Token: "abc", UserID: "u1", MaxSessions: 2})

	if d := f.decide(t, "s1", "1.2.3.4", "abc"); d.Reason != ReasonNewSession {
		t.Fatalf("s1: %+v", d)
	}
	f.advance(100 * time.Second)
	if d := f.decide(t, "s2", "1.2.3.4", "abc"); d.Reason != ReasonNewSession {
		t.Fatalf("s2: %+v", d)
	}
	if d := f.decide(t, "s3", "1.2.3.4", "abc"); d.Reason != ReasonMaxSessionsReached || d.Detail != "2/2" {
		t.Fatalf("s3 should be denied: %+v", d)
	}

	// s1 expires at +180s; s2 lives until +280s.
	f.advance(81 * time.Second)
	if d := f.decide(t, "s3", "1.2.3.4", "abc"); d.Reason != ReasonNewSession {
		t.Fatalf("s3 after s1 expired: %+v", d)
	}
	if d := f.decide(t, "s4", "1.2.3.4", "abc"); d.Reason != ReasonMaxSessionsReached {
		t.Fatalf("s4: %+v", d)
	}
}

func TestEngine_ExpiredUnsweptRowIsNotARecheck(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.token(t, identity.CreateTokenInput{Token: "abc", UserID: "u1", MaxSessions: 1})

	f.decide(t, "s1", "1.2.3.4", "abc")
	f.advance(200 * time.Second) // s1 expired, not swept

	if d := f.decide(t, "s2", "1.2.3.4", "abc"); d.Reason != ReasonNewSession {
		t.Fatalf("s2: %+v", d)
	}
	if d := f.decide(t, "s1", "1.2.3.4", "abc"); d.Reason != ReasonMaxSessionsReached {
		t.Fatalf("expired s1 must go through the limit: %+v", d)
	}
}

func TestEngine_Denials(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	now := f.clock()
	future := now.Add(time.Hour)

	f.token(t, identity.CreateTokenInput{Token: "susp", UserID: "u1", Status: identity.StatusSuspended})
	f.token(t, identity.CreateTokenInput{Token: "later", UserID: "u2", ValidFrom: future, Now: now})
	f.token(t, identity.CreateTokenInput{Token: "iponly", UserID: "u3", AllowedIPs: []string{"9.9.9.9"}, AllowedStreams: []string{"other"}})
	f.token(t, identity.CreateTokenInput{Token: "streamonly", UserID: "u4", AllowedStreams: []string{"other"}})

	cases := []struct {
		tok    string
		reason Reason
		user   string
	}{
		{"missing", ReasonTokenNotFound, ""},
		{"susp", ReasonTokenSuspended, "u1"},
		{"later", ReasonTokenNotYetValid, "u2"},
		{"iponly", ReasonIPNotAllowed, "u3"},
		{"streamonly", ReasonStreamNotAllowed, "u4"},
	}
	for _, tc := range cases {
		d := f.decide(t, "s1", "1.2.3.4", tc.tok)
		if d.Admitted || d.Reason != tc.reason || d.UserID != tc.user {
			t.Fatalf("%s: got %+v want reason=%s user=%q", tc.tok, d, tc.reason, tc.user)
		}
	}
	if f.sessions.Len() != 0 {
		t.Fatalf("denials must not create sessions")
	}
	if n := len(f.sink.Entries()); n != len(cases) {
		t.Fatalf("expected %d audit entries, got %d", len(cases), n)
	}
	if f.sink.Entries()[0].UserID != "" {
		t.Fatalf("unresolved token must be audited without a user")
	}
}

func TestEngine_LazyExpiryPersists(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	until := f.clock().Add(-time.Second)
	f.token(t, identity.CreateTokenInput{
		Token: "old", UserID: "u1",
		ValidFrom: f.clock().Add(-time.Hour), ValidUntil: &until, Now: f.clock().Add(-time.Hour),
	})

	if d := f.decide(t, "s1", "1.2.3.4", "old"); d.Reason != ReasonTokenExpired || d.UserID != "u1" {
		t.Fatalf("first: %+v", d)
	}
	tok, err := f.tokens.GetByToken(context.Background(), "old")
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if tok.Status != identity.StatusExpired {
		t.Fatalf("expected persisted status expired, got %s", tok.Status)
	}
	if d := f.decide(t, "s1", "1.2.3.4", "old"); d.Reason != ReasonTokenExpired {
		t.Fatalf("second: %+v", d)
	}
}

func TestEngine_ExpiryWriteFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	until := f.clock().Add(-time.Second)
	f.token(t, identity.CreateTokenInput{Token: "old", UserID: "u1", ValidUntil: &until})

	e, err := NewEngine(failingTransitions{f.tokens}, f.sessions, DefaultConfig(),
		WithClock(f.clock), WithObserver(f.obs), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	d, err := e.Decide(context.Background(), Request{StreamName: "s1", ClientIP: "1.2.3.4", Token: "old"})
	if err != nil || d.Reason != ReasonTokenExpired {
		t.Fatalf("Decide=%+v,%v", d, err)
	}
	if f.obs.expireFailures.Load() != 1 {
		t.Fatalf("expire failure not observed")
	}
}

func TestEngine_StalledExpiryWriteHonoursDeadline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	until := f.clock().Add(-time.Second)
	f.token(t, identity.CreateTokenInput{Token: "old", UserID: "u1", ValidUntil: &until})

	cfg := DefaultConfig()
	cfg.MaxDecisionLatency = MinDecisionLatency
	obs := &countingObserver{}
	e, err := NewEngine(stalledTransitions{f.tokens}, f.sessions, cfg,
		WithClock(f.clock), WithObserver(obs), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := e.Decide(context.Background(), Request{StreamName: "s1", ClientIP: "1.2.3.4", Token: "old"})
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected unavailable deadline, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Decide still blocked after 3s (deadline %s)", cfg.MaxDecisionLatency)
	}
	if obs.timeouts.Load() != 1 || obs.expireFailures.Load() != 1 {
		t.Fatalf("timeouts=%d expireFailures=%d", obs.timeouts.Load(), obs.expireFailures.Load())
	}
}

func TestEngine_StalledAuditSinkHonoursDeadline(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxDecisionLatency = MinDecisionLatency
	f := newFixture(t)
	f.token(t, identity.CreateTokenInput{Token: "abc", UserID: "u1"})

	obs := &countingObserver{}
	e, err := NewEngine(f.tokens, f.sessions, cfg,
		WithClock(f.clock), WithObserver(obs), WithAuditSink(stalledSink{}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	start := time.Now()
	d, err := e.Decide(context.Background(), Request{StreamName: "s1", ClientIP: "1.2.3.4", Token: "abc"})
	elapsed := time.Since(start)
	if err != nil || !d.Admitted {
		t.Fatalf("Decide=%+v,%v", d, err)
	}
	if elapsed > time.Second {
		t.Fatalf("audit write outlived the decision deadline: %s", elapsed)
	}
	if obs.auditFailures.Load() != 1 {
		t.Fatalf("audit failure not observed")
	}
}

func TestEngine_InvalidRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.engine.Decide(context.Background(), Request{StreamName: "s1", ClientIP: "1.2.3.4"})
	var re *RequestError
	if !errors.As(err, &re) || re.Field != "token" {
		t.Fatalf("expected missing token, got %v", err)
	}
	if len(f.sink.Entries()) != 0 {
		t.Fatalf("invalid requests are not decisions and must not be audited")
	}
}

func TestEngine_StoreFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	e, err := NewEngine(brokenTokens{err: boom}, session.NewMemoryStore(), DefaultConfig(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	_, err = e.Decide(context.Background(), Request{StreamName: "s1", ClientIP: "1.2.3.4", Token: "abc"})
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, boom) {
		t.Fatalf("expected unavailable wrapping cause, got %v", err)
	}
	var ue *UnavailableError
	if !errors.As(err, &ue) || ue.Stage != "token_lookup" {
		t.Fatalf("unexpected stage: %v", err)
	}
}

func TestEngine_DeadlineIsUnavailable(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxDecisionLatency = MinDecisionLatency
	obs := &countingObserver{}
	e, err := NewEngine(slowTokens{}, session.NewMemoryStore(), cfg,
		WithObserver(obs), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	_, err = e.Decide(context.Background(), Request{StreamName: "s1", ClientIP: "1.2.3.4", Token: "abc"})
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected unavailable deadline, got %v", err)
	}
	if obs.timeouts.Load() != 1 {
		t.Fatalf("timeout not observed")
	}
}

func TestEngine_TokenDeletedDuringAdmission(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.token(t, identity.CreateTokenInput{Token: "abc", UserID: "u1"})

	e, err := NewEngine(f.tokens, goneSessions{}, DefaultConfig(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	d, err := e.Decide(context.Background(), Request{StreamName: "s1", ClientIP: "1.2.3.4", Token: "abc"})
	if err != nil || d.Reason != ReasonTokenNotFound {
		t.Fatalf("Decide=%+v,%v", d, err)
	}
}

func TestEngine_AuditFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithAuditSink(brokenSink{}))
	f.token(t, identity.CreateTokenInput{Token: "abc", UserID: "u1"})

	if d := f.decide(t, "s1", "1.2.3.4", "abc"); !d.Admitted {
		t.Fatalf("audit failure must not affect the decision: %+v", d)
	}
	if f.obs.auditFailures.Load() != 1 {
		t.Fatalf("audit failure not observed")
	}
}

func TestEngine_AuditDisabled(t *testing.T) {
	t.Parallel()

	sink := audit.NewMemorySink(0)
	cfg := DefaultConfig()
	cfg.AuditEnabled = false
	tokens := identity.NewMemoryStore()
	e, err := NewEngine(tokens, session.NewMemoryStore(), cfg, WithAuditSink(sink))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := e.Decide(context.Background(), Request{StreamName: "s1", ClientIP: "1.2.3.4", Token: "abc"}); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(sink.Entries()) != 0 {
		t.Fatalf("audit disabled but entries were written")
	}
}

func TestEngine_ConcurrentAdmissionsRespectLimit(t *testing.T) {
	t.Parallel()

	const maxSessions = 3
	f := newFixture(t)
	f.token(t, identity.CreateTokenInput{Token: "abc", UserID: "u1", MaxSessions: maxSessions})

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		denied   atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := f.engine.Decide(context.Background(), Request{
				StreamName: fmt.Sprintf("s%d", i), ClientIP: "1.2.3.4", Token: "abc",
			})
			if err != nil {
				t.Errorf("Decide: %v", err)
				return
			}
			if d.Admitted {
				admitted.Add(1)
			} else if d.Reason == ReasonMaxSessionsReached {
				denied.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if admitted.Load() != maxSessions || denied.Load() != 50-maxSessions {
		t.Fatalf("admitted=%d denied=%d", admitted.Load(), denied.Load())
	}
}

func TestNewEngine_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine(nil, session.NewMemoryStore(), DefaultConfig()); err == nil {
		t.Fatalf("expected error for nil token store")
	}
	if _, err := NewEngine(identity.NewMemoryStore(), session.NewMemoryStore(), Config{}); err != ErrConfig {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

type countingObserver struct {
	decisions      atomic.Int32
	timeouts       atomic.Int32
	auditFailures  atomic.Int32
	expireFailures atomic.Int32
}

func (o *countingObserver) ObserveDecision(string, string, time.Duration) { o.decisions.Add(1) }
func (o *countingObserver) ObserveDecisionError(stage string) {
	if stage == "timeout" {
		o.timeouts.Add(1)
	}
}
func (o *countingObserver) ObserveAuditFailure()  { o.auditFailures.Add(1) }
func (o *countingObserver) ObserveExpireFailure() { o.expireFailures.Add(1) }

type failingTransitions struct{ identity.Store }

func (failingTransitions) ApplyTransition(context.Context, identity.StatusTransition) error {
	return errors.New("read-only replica")
}

type stalledTransitions struct{ identity.Store }

func (stalledTransitions) ApplyTransition(ctx context.Context, _ identity.StatusTransition) error {
	<-ctx.Done()
	return ctx.Err()
}

type stalledSink struct{}

func (stalledSink) Write(ctx context.Context, _ audit.Entry) error {
	<-ctx.Done()
	return ctx.Err()
}

type brokenTokens struct {
	identity.Store
	err error
}

func (b brokenTokens) GetByToken(context.Context, string) (identity.Token, error) {
	return identity.Token{}, b.err
}

type slowTokens struct{ identity.Store }

func (slowTokens) GetByToken(ctx context.Context, _ string) (identity.Token, error) {
	<-ctx.Done()
	return identity.Token{}, ctx.Err()
}

type goneSessions struct{ session.Store }

func (goneSessions) Admit(context.Context, string, func(session.AdmissionTx) error) error {
	return session.ErrTokenGone
}

type brokenSink struct{}

func (brokenSink) Write(context.Context, audit.Entry) error { return errors.New("disk full") }
