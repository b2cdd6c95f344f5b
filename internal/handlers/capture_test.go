package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline-systems/driftline/internal/capture"
	"github.com/driftline-systems/driftline/internal/egress"
	"github.com/driftline-systems/driftline/internal/models"
)

type mockCaptureService struct {
	ingestFunc func(ctx context.Context, req *models.CaptureRequest) (string, error)
}

func (m *mockCaptureService) Ingest(ctx context.Context, req *models.CaptureRequest) (string, error) {
	return m.ingestFunc(ctx, req)
}

func captureBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(models.CaptureRequest{
		SessionKey: "visitor-1",
		Payload:    "dXNlcjpwYXNz",
		UserAgent:  "Mozilla/5.0",
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestCaptureSubmit_Accepted(t *testing.T) {
	svc := &mockCaptureService{
		ingestFunc: func(ctx context.Context, req *models.CaptureRequest) (string, error) {
			assert.Equal(t, "visitor-1", req.SessionKey)
			return "rec-123", nil
		},
	}
	h := NewCaptureHandler(svc, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/v1/captures", captureBody(t))
	w := httptest.NewRecorder()
	h.Submit(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp models.CaptureResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "rec-123", resp.RecordID)
}

func TestCaptureSubmit_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"malformed input", capture.ErrMalformedInput, http.StatusBadRequest, "malformed_input"},
		{"pool exhausted", egress.ErrPoolExhausted, http.StatusServiceUnavailable, "pool_exhausted"},
		{"assignment failed", capture.ErrAssignmentFailed, http.StatusBadGateway, "assignment_failed"},
		{"storage failure", errors.New("db down"), http.StatusInternalServerError, "capture_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCaptureService{
				ingestFunc: func(ctx context.Context, req *models.CaptureRequest) (string, error) {
					return "", tt.err
				},
			}
			h := NewCaptureHandler(svc, 1<<20)

			req := httptest.NewRequest(http.MethodPost, "/v1/captures", captureBody(t))
			w := httptest.NewRecorder()
			h.Submit(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantCode)
		})
	}
}

func TestCaptureSubmit_InvalidJSON(t *testing.T) {
	h := NewCaptureHandler(&mockCaptureService{
		ingestFunc: func(ctx context.Context, req *models.CaptureRequest) (string, error) {
			t.Fatal("service must not be called")
			return "", nil
		},
	}, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/v1/captures", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.Submit(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

func TestCaptureSubmit_PayloadTooLarge(t *testing.T) {
	h := NewCaptureHandler(&mockCaptureService{
		ingestFunc: func(ctx context.Context, req *models.CaptureRequest) (string, error) {
			t.Fatal("service must not be called")
			return "", nil
		},
	}, 16)

	req := httptest.NewRequest(http.MethodPost, "/v1/captures", captureBody(t))
	w := httptest.NewRecorder()
	h.Submit(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "payload_too_large")
}
