package handlers

import (
	"errors"
	"net/http"

	"github.com/driftline-systems/driftline/common/httputil"
	"github.com/driftline-systems/driftline/internal/egress"
	"github.com/driftline-systems/driftline/internal/models"
)

// IdentitiesHandler exposes the egress pool to the operator console.
type IdentitiesHandler struct {
	pool *egress.Pool
}

// NewIdentitiesHandler creates an identities handler.
func NewIdentitiesHandler(pool *egress.Pool) *IdentitiesHandler {
	return &IdentitiesHandler{pool: pool}
}

// List handles GET /v1/identities.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"identities": h.pool.Snapshot(),
	})
}

// Get handles GET /v1/identities/{id}.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	identity, err := h.pool.Get(id)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "identity_not_found", "identity not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, identity)
}

type healthOverrideRequest struct {
	Health models.Health `json:"health"`
}

// SetHealth handles PUT /v1/identities/{id}/health, letting operators drain an
// identity ahead of removal.
func (h *IdentitiesHandler) SetHealth(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req healthOverrideRequest
	if err := httputil.DecodeJSON(r, &req, 4096); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	switch req.Health {
	case models.HealthHealthy, models.HealthDegraded, models.HealthUnavailable:
	default:
		httputil.WriteError(w, http.StatusBadRequest, "invalid_health", "health must be healthy, degraded or unavailable")
		return
	}

	if err := h.pool.SetHealth(id, req.Health); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "identity_not_found", "identity not found")
		return
	}

	identity, _ := h.pool.Get(id)
	httputil.WriteJSON(w, http.StatusOK, identity)
}

// Shrink handles DELETE /v1/identities/{id}.
func (h *IdentitiesHandler) Shrink(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.pool.Shrink(id); err != nil {
		switch {
		case errors.Is(err, egress.ErrIdentityNotFound):
			httputil.WriteError(w, http.StatusNotFound, "identity_not_found", "identity not found")
		case errors.Is(err, egress.ErrIdentityBusy):
			httputil.WriteError(w, http.StatusConflict, "identity_busy", "identity still has active sessions; drain it first")
		default:
			httputil.WriteError(w, http.StatusInternalServerError, "shrink_failed", "failed to remove identity")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Grow handles POST /v1/identities.
func (h *IdentitiesHandler) Grow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identities []egress.IdentitySpec `json:"identities"`
	}
	if err := httputil.DecodeJSON(r, &req, 65536); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(req.Identities) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_request", "identities list is empty")
		return
	}

	if err := h.pool.Grow(req.Identities); err != nil {
		httputil.WriteError(w, http.StatusConflict, "grow_failed", err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"identities": h.pool.Snapshot(),
	})
}
