package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline-systems/driftline/internal/models"
	"github.com/driftline-systems/driftline/internal/repository"
)

func seededRecordsHandler(t *testing.T, count int) *RecordsHandler {
	t.Helper()

	repo := repository.NewInMemoryRepository()
	base := time.Now()
	for i := 0; i < count; i++ {
		require.NoError(t, repo.Create(context.Background(), &models.Record{
			ID:            fmt.Sprintf("rec-%03d", i),
			SessionKey:    fmt.Sprintf("visitor-%d", i%2),
			IdentityID:    "us-a",
			Payload:       []byte("payload"),
			PayloadDigest: fmt.Sprintf("digest-%d", i),
			State:         models.StatePending,
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
			UpdatedAt:     base.Add(time.Duration(i) * time.Second),
			EligibleAt:    base,
		}))
	}
	return NewRecordsHandler(repo)
}

func TestRecordsList(t *testing.T) {
	h := seededRecordsHandler(t, 5)

	req := httptest.NewRequest(http.MethodGet, "/v1/records?session_key=visitor-0", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ListRecordsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, resp.Records, 3)
	for _, rec := range resp.Records {
		assert.Equal(t, "visitor-0", rec.SessionKey)
	}
}

func TestRecordsList_Pagination(t *testing.T) {
	h := seededRecordsHandler(t, 5)

	req := httptest.NewRequest(http.MethodGet, "/v1/records?page=2&limit=2", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ListRecordsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 5, resp.Total)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 2, resp.Limit)
	assert.Len(t, resp.Records, 2)
}

func TestRecordsList_BadParams(t *testing.T) {
	h := seededRecordsHandler(t, 1)

	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"unknown state", "state=bogus", "invalid_state"},
		{"zero page", "page=0", "invalid_page"},
		{"non-numeric page", "page=abc", "invalid_page"},
		{"negative limit", "limit=-1", "invalid_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/records?"+tt.query, nil)
			w := httptest.NewRecorder()
			h.List(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.code)
		})
	}
}

func TestRecordsGet(t *testing.T) {
	h := seededRecordsHandler(t, 2)

	req := httptest.NewRequest(http.MethodGet, "/v1/records/rec-001", nil)
	req.SetPathValue("id", "rec-001")
	w := httptest.NewRecorder()
	h.Get(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var rec models.Record
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rec))
	assert.Equal(t, "rec-001", rec.ID)
}

func TestRecordsGet_NotFound(t *testing.T) {
	h := seededRecordsHandler(t, 1)

	req := httptest.NewRequest(http.MethodGet, "/v1/records/missing", nil)
	req.SetPathValue("id", "missing")
	w := httptest.NewRecorder()
	h.Get(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "record_not_found")
}

func TestRecordsStats(t *testing.T) {
	h := seededRecordsHandler(t, 3)

	req := httptest.NewRequest(http.MethodGet, "/v1/records/stats", nil)
	w := httptest.NewRecorder()
	h.Stats(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Counts map[string]int `json:"counts"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 3, resp.Counts[string(models.StatePending)])
}
