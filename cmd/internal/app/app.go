// Package app wires the flussauth server runtime: config, logging, storage
// backends, the decision engine, the expiry sweeper, HTTP routes and the
// live access-log feed.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	authapi "flussauth/cmd/internal/auth/api"
	"flussauth/cmd/internal/auth/audit"
	"flussauth/cmd/internal/auth/decision"
	"flussauth/cmd/internal/auth/session"
	"flussauth/cmd/internal/metrics"
	"flussauth/cmd/internal/realtime"
	"flussauth/cmd/security/apikey"
	"flussauth/cmd/security/token"

	"github.com/gorilla/mux"
)

// App is the flussauth server runtime. It owns the HTTP server, the storage
// backend and the sweeper lifecycle.
type App struct {
	cfg Config
	log Logger

	store   *backend
	metrics *metrics.Registry

	engine  *decision.Engine
	sweeper *session.Sweeper
	feed    *realtime.Feed
	ws      *realtime.WSGateway
	auth    *authapi.Handler

	router *mux.Router
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	keys, fp, err := ValidateSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}

	decisionCfg, err := decision.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	sweepCfg, err := session.LoadSweeperConfigFromEnv()
	if err != nil {
		return nil, err
	}

	st, err := openBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a, err := build(cfg, log, st, decisionCfg, sweepCfg, keys, fp)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}
	return a, nil
}

func build(
	cfg Config,
	log Logger,
	st *backend,
	decisionCfg decision.Config,
	sweepCfg session.SweeperConfig,
	keys apikey.Verifier,
	fp token.Fingerprinter,
) (*App, error) {
	reg := metrics.NewRegistry()
	feed := realtime.NewFeed(log, reg)
	ws := realtime.NewWSGateway(log, feed)

	// The feed only sees what is audited; with audit disabled it stays silent.
	engine, err := decision.NewEngine(st.tokens, st.sessions, decisionCfg,
		decision.WithFingerprinter(fp),
		decision.WithAuditSink(audit.Tee{st.audit, feed}),
		decision.WithObserver(reg),
		decision.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	sweeper, err := session.NewSweeper(st.sessions, sweepCfg,
		session.WithSweepObserver(reg),
		session.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	auth, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), engine, sweeper,
		authapi.WithAPIKey(keys),
		authapi.WithFeed(ws),
	)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		log:     log,
		store:   st,
		metrics: reg,
		engine:  engine,
		sweeper: sweeper,
		feed:    feed,
		ws:      ws,
		auth:    auth,
		router:  mux.NewRouter(),
	}
	registerHTTP(a.router, log, cfg, st, reg.Handler(), auth)

	if !keys.Enabled() {
		log.Warn("security.api_key.disabled", "hint", "set FLUSSAUTH_API_KEY or FLUSSAUTH_API_KEY_HASH to guard /api")
	}
	if !fp.Keyed() {
		log.Info("security.fingerprint.unkeyed")
	}
	return a, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	return WithSecurityHeaders(WithRequestLogging(a.router, a.log, a.router, a.metrics))
}

// Run starts the sweeper and the HTTP server and blocks until context
// cancellation or fatal server error. Shutdown drains HTTP, stops the
// sweeper (awaiting an in-flight pass) and closes the store.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		a.log.Error("server.listen.fail", "addr", a.cfg.HTTPAddr, "err", err)
		_ = a.store.Close(context.Background())
		return err
	}

	a.sweeper.Start(ctx)

	base := runtimeBaseURL(ln.Addr().String())
	a.log.Info("server.start",
		"addr", ln.Addr().String(),
		"url", base,
		"feed_url", wsBaseURL(base)+"/api/access-logs/ws",
		"adapter", a.store.adapter,
		"audit", a.engine.Config().AuditEnabled,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		runErr = errors.Join(runErr, err)
	}
	if err := a.sweeper.Stop(shutdownCtx); err != nil {
		a.log.Error("session.sweeper.stop.fail", "err", err)
		runErr = errors.Join(runErr, err)
	}
	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return runErr
}

// runtimeBaseURL turns a listen address into a URL a local operator can open.
// Wildcard binds are reported as 127.0.0.1.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
