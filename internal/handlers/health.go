package handlers

import (
	"net/http"

	"github.com/driftline-systems/driftline/common/httputil"
	"github.com/driftline-systems/driftline/internal/egress"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	pool    *egress.Pool
	version string
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(pool *egress.Pool, version string) *HealthHandler {
	return &HealthHandler{pool: pool, version: version}
}

// Health handles GET /healthz.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "driftline",
		"version": h.version,
	})
}

// Ready handles GET /readyz. The engine is ready once at least one identity
// can accept assignments.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.pool.HealthyCount() == 0 {
		httputil.WriteError(w, http.StatusServiceUnavailable, "not_ready", "no healthy egress identities")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
