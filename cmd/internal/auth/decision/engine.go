package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"flussauth/cmd/identity"
	"flussauth/cmd/identity/ids"
	"flussauth/cmd/internal/auth/audit"
	"flussauth/cmd/internal/auth/session"
	"flussauth/cmd/security/token"
)

// auditTimeout caps the access-log write that follows each decision. The
// write is further bounded by whatever is left of the decision deadline.
const auditTimeout = 2 * time.Second

// Decision is the answer returned to the media server.
type Decision struct {
	Admitted    bool
	Reason      Reason
	UserID      string // empty when the token was not resolved
	MaxSessions int
	Detail      string
}

// Observer receives decision metrics. Implemented by the metrics package.
type Observer interface {
	ObserveDecision(result, reason string, elapsed time.Duration)
	ObserveDecisionError(stage string)
	ObserveAuditFailure()
	ObserveExpireFailure()
}

// Engine decides playback requests. Safe for concurrent use.
type Engine struct {
	tokens   identity.Store
	sessions session.Store
	sink     audit.Sink
	cfg      Config

	fp  token.Fingerprinter
	now func() time.Time
	obs Observer
	log *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithFingerprinter sets the session fingerprint function (default: plain SHA-256).
func WithFingerprinter(fp token.Fingerprinter) Option {
	return func(e *Engine) { e.fp = fp }
}

// WithAuditSink sets where access-log entries go (default: audit.Discard).
func WithAuditSink(s audit.Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.obs = o }
}

// WithLogger overrides slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine constructs an Engine over the given stores.
func NewEngine(tokens identity.Store, sessions session.Store, cfg Config, opts ...Option) (*Engine, error) {
	if tokens == nil || sessions == nil {
		return nil, errors.New("decision: nil store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		tokens:   tokens,
		sessions: sessions,
		sink:     audit.Discard,
		cfg:      cfg,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Decide evaluates req. Denials are returned as a Decision with a nil error;
// errors are ErrInvalidRequest or ErrUnavailable.
func (e *Engine) Decide(ctx context.Context, req Request) (Decision, error) {
	req, err := req.Normalize()
	if err != nil {
		return Decision{}, err
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.MaxDecisionLatency)
	defer cancel()

	now := e.now().UTC()
	d, err := e.decide(ctx, req, now)
	if err != nil {
		var ue *UnavailableError
		stage := "unknown"
		if errors.As(err, &ue) {
			stage = ue.Stage
		}
		if e.obs != nil {
			e.obs.ObserveDecisionError(stage)
		}
		e.log.Error("auth.decision.fail",
			"err", err,
			"stage", stage,
			"stream", req.StreamName,
			"ip", req.ClientIP,
			"token", MaskToken(req.Token),
		)
		return Decision{}, err
	}

	elapsed := time.Since(start)
	if e.cfg.AuditEnabled {
		e.record(ctx, req, d, now)
	}
	if e.obs != nil {
		e.obs.ObserveDecision(resultOf(d), string(d.Reason), elapsed)
	}
	e.log.Debug("auth.decision",
		"admitted", d.Admitted,
		"reason", d.Reason,
		"user_id", d.UserID,
		"stream", req.StreamName,
		"ip", req.ClientIP,
		"proto", req.Protocol,
		"token", MaskToken(req.Token),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return d, nil
}

func (e *Engine) decide(ctx context.Context, req Request, now time.Time) (Decision, error) {
	tok, err := e.tokens.GetByToken(ctx, req.Token)
	if identity.IsNotFound(err) {
		return Decision{Reason: ReasonTokenNotFound}, nil
	}
	if err != nil {
		return Decision{}, failed(ctx, "token_lookup", err)
	}

	v := Evaluate(tok, req, now)
	if v.Transition != nil {
		e.applyTransition(ctx, *v.Transition)
		if err := ctx.Err(); err != nil {
			return Decision{}, failed(ctx, "token_expire", err)
		}
	}
	if !v.Eligible {
		return Decision{Reason: v.Reason, UserID: tok.UserID, MaxSessions: tok.MaxSessions}, nil
	}

	d, err := e.admit(ctx, tok, req, now)
	if errors.Is(err, session.ErrTokenGone) {
		// Deleted between lookup and admission.
		return Decision{Reason: ReasonTokenNotFound}, nil
	}
	if err != nil {
		return Decision{}, failed(ctx, "admission", err)
	}
	return d, nil
}

func (e *Engine) admit(ctx context.Context, tok identity.Token, req Request, now time.Time) (Decision, error) {
	fp := e.fp.Fingerprint(req.StreamName, req.ClientIP, req.Token)
	expiresAt := now.Add(e.cfg.AuthDuration)

	d := Decision{UserID: tok.UserID, MaxSessions: tok.MaxSessions}
	err := e.sessions.Admit(ctx, tok.UserID, func(tx session.AdmissionTx) error {
		row, err := tx.Get(ctx, fp)
		switch {
		case err == nil && row.Live(now):
			err := tx.Extend(ctx, fp, now, expiresAt)
			if err == nil {
				d.Admitted, d.Reason = true, ReasonSessionRecheck
				return nil
			}
			if !errors.Is(err, session.ErrSessionNotFound) {
				return err
			}
			// Swept underneath us: admit as new.
		case err != nil && !errors.Is(err, session.ErrSessionNotFound):
			return err
		}

		n, err := tx.CountActive(ctx, tok.UserID, fp, now)
		if err != nil {
			return err
		}
		if n >= tok.MaxSessions {
			d.Reason = ReasonMaxSessionsReached
			d.Detail = fmt.Sprintf("%d/%d", n, tok.MaxSessions)
			return nil
		}

		if err := tx.Upsert(ctx, session.Row{
			Fingerprint:   fp,
			TokenID:       tok.ID,
			UserID:        tok.UserID,
			StreamName:    req.StreamName,
			ClientIP:      req.ClientIP,
			Protocol:      req.Protocol,
			StartedAt:     now,
			LastCheckedAt: now,
			ExpiresAt:     expiresAt,
		}); err != nil {
			return err
		}
		d.Admitted, d.Reason = true, ReasonNewSession
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return d, nil
}

// applyTransition persists a lazy status change within the decision deadline.
// Failures are logged and swallowed; the next evaluation recomputes the transition.
func (e *Engine) applyTransition(ctx context.Context, tr identity.StatusTransition) {
	if err := e.tokens.ApplyTransition(ctx, tr); err != nil {
		if e.obs != nil {
			e.obs.ObserveExpireFailure()
		}
		e.log.Warn("auth.token.expire.fail", "err", err, "token_id", tr.TokenID)
	}
}

// record writes the access-log entry. The write survives request cancellation
// but never outlives the decision deadline carried by ctx.
func (e *Engine) record(ctx context.Context, req Request, d Decision, now time.Time) {
	budget := auditTimeout
	if deadline, ok := ctx.Deadline(); ok {
		budget = min(budget, time.Until(deadline))
	}
	if budget <= 0 {
		if e.obs != nil {
			e.obs.ObserveAuditFailure()
		}
		e.log.Warn("auth.audit.write.skip", "reason", d.Reason, "err", context.DeadlineExceeded)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	defer cancel()

	err := e.sink.Write(ctx, audit.Entry{
		ID:         ids.MustULID(now),
		OccurredAt: now,
		Token:      req.Token,
		UserID:     d.UserID,
		StreamName: req.StreamName,
		ClientIP:   req.ClientIP,
		Protocol:   req.Protocol,
		Result:     audit.Result(resultOf(d)),
		Reason:     string(d.Reason),
		Detail:     d.Detail,
	})
	if err != nil {
		if e.obs != nil {
			e.obs.ObserveAuditFailure()
		}
		e.log.Warn("auth.audit.write.fail", "err", err, "reason", d.Reason)
	}
}

func resultOf(d Decision) string {
	if d.Admitted {
		return string(audit.ResultAllowed)
	}
	return string(audit.ResultDenied)
}

// failed wraps a store error as ErrUnavailable. When the decision context
// ended, the stage becomes "timeout" and the context error is always wrapped.
func failed(ctx context.Context, stage string, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		if !errors.Is(err, cerr) {
			err = fmt.Errorf("%w: %w", err, cerr)
		}
		if errors.Is(cerr, context.DeadlineExceeded) {
			stage = "timeout"
		}
	}
	return unavailable(stage, err)
}

// MaskToken returns a log-safe prefix of a token.
func MaskToken(s string) string {
	const keep = 6
	if len(s) <= keep {
		return "***"
	}
	return s[:keep] + "..."
}
