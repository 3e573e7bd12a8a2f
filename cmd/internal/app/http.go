package app

import (
	"net/http"
	"time"

	authapi "flussauth/cmd/internal/auth/api"

	"github.com/gorilla/mux"
)

// Version is reported by GET /. Overridden at build time with -ldflags "-X".
var Version = "dev"

func registerHTTP(
	r *mux.Router,
	log Logger,
	cfg Config,
	store *backend,
	metrics http.Handler,
	auth *authapi.Handler,
) {
	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "flussauth",
			"version": Version,
			"status":  "running",
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.ReadinessRequireDB && !store.Durable() {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if err := store.Ping(req.Context(), 2*time.Second); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			log.Info("readyz.db.not_ready", "adapter", store.adapter, "err", err)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	}).Methods(http.MethodGet)

	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	if auth != nil {
		auth.Register(r)
	}
}
