package authapi

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeInvalid(w http.ResponseWriter, reason, msg string) {
	writeJSON(w, http.StatusBadRequest, invalidResponse{Error: "invalid_request", Reason: reason, Message: msg})
}

func writeUnavailable(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, unavailableResponse{
		Error:   "authorization_unavailable",
		Message: "Authorization service temporarily unavailable",
	})
}
