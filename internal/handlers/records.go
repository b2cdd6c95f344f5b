package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/driftline-systems/driftline/common/httputil"
	"github.com/driftline-systems/driftline/internal/models"
	"github.com/driftline-systems/driftline/internal/repository"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// RecordsHandler serves the operator console's record query API.
type RecordsHandler struct {
	repo repository.Repository
}

// NewRecordsHandler creates a records handler.
func NewRecordsHandler(repo repository.Repository) *RecordsHandler {
	return &RecordsHandler{repo: repo}
}

// List handles GET /v1/records.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.ListFilter{
		SessionKey: q.Get("session_key"),
		Page:       1,
		Limit:      defaultPageLimit,
	}

	if state := q.Get("state"); state != "" {
		rs := models.RecordState(state)
		if !rs.Valid() {
			httputil.WriteError(w, http.StatusBadRequest, "invalid_state", "unknown record state "+state)
			return
		}
		filter.State = rs
	}

	if page := q.Get("page"); page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid_page", "page must be a positive integer")
			return
		}
		filter.Page = n
	}

	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		if n > maxPageLimit {
			n = maxPageLimit
		}
		filter.Limit = n
	}

	records, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "list_failed", "failed to list records")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.ListRecordsResponse{
		Records: records,
		Total:   total,
		Page:    filter.Page,
		Limit:   filter.Limit,
	})
}

// Get handles GET /v1/records/{id}.
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_record_id", "record id must be provided")
		return
	}

	record, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "record_not_found", "record not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "lookup_failed", "failed to load record")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, record)
}

// Stats handles GET /v1/records/stats.
func (h *RecordsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.repo.CountByState(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "stats_failed", "failed to count records")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"counts": counts,
	})
}
