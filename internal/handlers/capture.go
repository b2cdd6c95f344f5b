// Package handlers wires HTTP routes to the engine services.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/driftline-systems/driftline/common/httputil"
	"github.com/driftline-systems/driftline/internal/capture"
	"github.com/driftline-systems/driftline/internal/egress"
	"github.com/driftline-systems/driftline/internal/models"
)

// CaptureService is the slice of the capture service the handler needs.
type CaptureService interface {
	Ingest(ctx context.Context, req *models.CaptureRequest) (string, error)
}

// CaptureHandler serves the visitor-facing capture endpoint.
type CaptureHandler struct {
	svc            CaptureService
	maxPayloadSize int64
}

// NewCaptureHandler creates a capture handler.
func NewCaptureHandler(svc CaptureService, maxPayloadSize int64) *CaptureHandler {
	return &CaptureHandler{svc: svc, maxPayloadSize: maxPayloadSize}
}

// Submit handles POST /v1/captures.
func (h *CaptureHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.CaptureRequest
	if err := httputil.DecodeJSON(r, &req, h.maxPayloadSize); err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "capture payload exceeds the configured limit")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	recordID, err := h.svc.Ingest(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, capture.ErrMalformedInput):
			httputil.WriteError(w, http.StatusBadRequest, "malformed_input", err.Error())
		case errors.Is(err, egress.ErrPoolExhausted):
			httputil.WriteError(w, http.StatusServiceUnavailable, "pool_exhausted", "no healthy egress identity available")
		case errors.Is(err, capture.ErrAssignmentFailed):
			httputil.WriteError(w, http.StatusBadGateway, "assignment_failed", "session assignment failed")
		default:
			slog.Error("capture ingestion failed",
				slog.String("session_key", req.SessionKey),
				slog.String("error", err.Error()),
			)
			httputil.WriteError(w, http.StatusInternalServerError, "capture_failed", "failed to persist capture")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, models.CaptureResponse{RecordID: recordID})
}
