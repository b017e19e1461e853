package api

import (
	"net/http"
	"time"

	"github.com/chatvault/chatvault/internal/api/respond"
	"github.com/chatvault/chatvault/internal/store"
)

// Readiness is the cached service-level health flag maintained by the
// background checkers.
type Readiness interface {
	IsHealthy() bool
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	pinger store.HealthPinger // nil when the daemon runs without a store
	ready  Readiness          // nil means always ready
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(pinger store.HealthPinger, ready Readiness) *HealthHandler {
	return &HealthHandler{pinger: pinger, ready: ready}
}

// CheckHealth handles GET /api/health
// Always returns 200; body reports healthy/unhealthy.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.ready != nil && !h.ready.IsHealthy() {
		status = "unhealthy"
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// CheckStoreHealth handles GET /api/health/store
func (h *HealthHandler) CheckStoreHealth(w http.ResponseWriter, r *http.Request) {
	if h.pinger == nil {
		respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy", "store": "none"})
		return
	}
	if err := h.pinger.HealthPing(r.Context()); err != nil {
		respond.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}
