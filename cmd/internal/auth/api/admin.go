package authapi

import (
	"net/http"
	"strings"
)

// requireAPIKey enforces the management key on /api routes.
// WebSocket upgrades may pass the key as ?api_key= since browsers cannot set headers there.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.keys.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		key := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if key == "" && isWebSocketUpgrade(r) {
			key = strings.TrimSpace(r.URL.Query().Get("api_key"))
		}
		if !h.keys.Verify(key) {
			h.log.Warn("api.unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr, "key_present", key != "")
			writeJSON(w, http.StatusUnauthorized, unauthorizedResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.cleaner.Sweep(r.Context())
	if err != nil {
		h.log.Error("api.cleanup.fail", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, unavailableResponse{
			Error:   "cleanup_unavailable",
			Message: "Session cleanup failed",
		})
		return
	}
	h.log.Info("api.cleanup.done", "cleaned", n)
	writeJSON(w, http.StatusOK, cleanupResponse{Cleaned: n})
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket")
}
