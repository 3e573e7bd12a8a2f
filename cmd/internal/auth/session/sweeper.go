package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// SweepObserver records sweep outcomes. Implemented by the metrics package.
type SweepObserver interface {
	ObserveSweep(removed int64, elapsed time.Duration, err error)
}

// Sweeper deletes expired sessions on a fixed interval and on demand.
//
// Passes never overlap: Sweep holds passMu for the whole pass, so an
// on-demand pass issued during a periodic one waits for it to finish.
type Sweeper struct {
	store    Store
	cfg      SweeperConfig
	now      func() time.Time
	observer SweepObserver
	log      *slog.Logger

	passMu sync.Mutex

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSweepObserver attaches a metrics observer.
func WithSweepObserver(o SweepObserver) SweeperOption {
	return func(s *Sweeper) { s.observer = o }
}

// WithLogger overrides slog.Default().
func WithLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSweeper constructs a Sweeper. It does not start the periodic loop.
func NewSweeper(store Store, cfg SweeperConfig, opts ...SweeperOption) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("session: nil store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Sweeper{
		store: store,
		cfg:   cfg,
		now:   time.Now,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Sweep runs one pass and returns the number of rows removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	start := time.Now()
	n, err := s.store.DeleteExpired(ctx, s.now().UTC())
	elapsed := time.Since(start)

	if s.observer != nil {
		s.observer.ObserveSweep(n, elapsed, err)
	}
	if err != nil {
		s.log.Error("session.sweep.fail", "err", err, "elapsed_ms", elapsed.Milliseconds())
		return 0, err
	}
	if n > 0 {
		s.log.Info("session.sweep.done", "removed", n, "elapsed_ms", elapsed.Milliseconds())
	}
	return n, nil
}

// Start launches the periodic loop. Calling Start twice, or after Stop, is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.done != nil || s.stopped {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx, s.done)
}

func (s *Sweeper) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.periodicPass(ctx)
		}
	}
}

// periodicPass detaches from loop cancellation so Stop lets it finish.
func (s *Sweeper) periodicPass(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PassTimeout)
	defer cancel()
	_, _ = s.Sweep(passCtx)
}

// Stop cancels the loop and waits for it, including any in-flight pass,
// to exit or for ctx to end.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.lifeMu.Lock()
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.lifeMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
