package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"flussauth/cmd/internal/auth/decision"
	"flussauth/cmd/security/apikey"

	"github.com/gorilla/mux"
)

// Decider is the decision engine as seen by the HTTP boundary.
type Decider interface {
	Decide(ctx context.Context, req decision.Request) (decision.Decision, error)
	Config() decision.Config
}

// Cleaner runs an expiry sweep on demand.
type Cleaner interface {
	Sweep(ctx context.Context) (int64, error)
}

// Handler serves /auth for the media server and the /api management routes.
type Handler struct {
	log *slog.Logger
	cfg Config

	engine  Decider
	cleaner Cleaner
	keys    apikey.Verifier
	limiter *ipLimiter
	feed    http.Handler

	now func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithAPIKey guards /api routes with v. Without it /api is open.
func WithAPIKey(v apikey.Verifier) HandlerOption {
	return func(h *Handler) { h.keys = v }
}

// WithFeed mounts the live access-log feed at /api/access-logs/ws.
func WithFeed(feed http.Handler) HandlerOption {
	return func(h *Handler) { h.feed = feed }
}

// WithClock overrides time.Now for rate limiting.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs a Handler. engine and cleaner are required.
func NewHandler(log *slog.Logger, cfg Config, engine Decider, cleaner Cleaner, opts ...HandlerOption) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("authapi: nil decision engine")
	}
	if cleaner == nil {
		return nil, errors.New("authapi: nil cleaner")
	}
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()

	h := &Handler{
		log:     log,
		cfg:     cfg,
		engine:  engine,
		cleaner: cleaner,
		limiter: newIPLimiter(cfg.AdminRatePerMinute),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires routes onto r.
func (h *Handler) Register(r *mux.Router) {
	if h == nil || r == nil {
		return
	}
	r.HandleFunc("/auth", h.handleAuth).Methods(http.MethodGet, http.MethodPost)

	// Limit before the key check so wrong keys spend the caller's budget.
	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.rateLimit)
	api.Use(h.requireAPIKey)
	api.HandleFunc("/sessions/cleanup", h.handleCleanup).Methods(http.MethodPost)
	if h.feed != nil {
		api.Handle("/access-logs/ws", h.feed).Methods(http.MethodGet)
	}
}

// handleAuth answers the media server. Parameters come from the query string;
// POST may carry them as a form body instead.
func (h *Handler) handleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	}
	if err := r.ParseForm(); err != nil {
		writeInvalid(w, "malformed_request", "Request parameters could not be parsed")
		return
	}

	req := decision.Request{
		StreamName: r.Form.Get("name"),
		ClientIP:   r.Form.Get("ip"),
		Token:      r.Form.Get("token"),
		Protocol:   r.Form.Get("proto"),
	}
	req, err := req.Normalize()
	if err != nil {
		h.writeDecisionError(w, err)
		return
	}

	d, err := h.engine.Decide(r.Context(), req)
	if err != nil {
		h.writeDecisionError(w, err)
		return
	}

	if !d.Admitted {
		var userID *string
		if d.UserID != "" {
			userID = &d.UserID
		}
		h.log.Info("auth.denied",
			"reason", d.Reason,
			"detail", d.Detail,
			"stream", req.StreamName,
			"ip", req.ClientIP,
			"proto", req.Protocol,
			"token", decision.MaskToken(req.Token),
		)
		writeJSON(w, http.StatusForbidden, deniedResponse{
			Error:   "access_denied",
			Reason:  string(d.Reason),
			Message: d.Message(req),
			UserID:  userID,
		})
		return
	}

	authSeconds := int64(h.engine.Config().AuthDuration / time.Second)
	w.Header().Set("X-UserId", d.UserID)
	w.Header().Set("X-Max-Sessions", strconv.Itoa(d.MaxSessions))
	w.Header().Set("X-AuthDuration", strconv.FormatInt(authSeconds, 10))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) writeDecisionError(w http.ResponseWriter, err error) {
	var re *decision.RequestError
	switch {
	case errors.As(err, &re):
		writeInvalid(w, "missing_"+re.Field, "Missing required parameter: "+re.Field)
	case errors.Is(err, decision.ErrInvalidRequest):
		writeInvalid(w, "invalid_request", err.Error())
	default:
		// ErrUnavailable and anything unexpected: never a denial.
		writeUnavailable(w)
	}
}
