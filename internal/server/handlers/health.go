package handlers

import (
	"encoding/json"
	"net/http"
)

// Health returns the server health status. A failed store ping reports
// degraded with 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := h.provider.Ping(r.Context()); err != nil {
		h.logger.Warn("health check ping failed", "error", err)
		status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": status,
	}); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
}
