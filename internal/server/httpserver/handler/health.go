package handler

import (
	"net/http"
	"time"
)

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, HealthResponse{
		Status: "healthy",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles GET /ready. A replica is ready once its link to the
// primary is up.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	role := h.backend.Stats().Role
	if !h.backend.Ready() {
		h.writeError(w, r, http.StatusServiceUnavailable, CodeNotReady, "replication link down", map[string]string{"role": role})
		return
	}
	h.writeJSON(w, r, http.StatusOK, HealthResponse{
		Status: "ready",
		Role:   role,
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
