// Package server assembles the HTTP surface of the engine.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftline-systems/driftline/common/middleware"
	"github.com/driftline-systems/driftline/internal/auth"
	"github.com/driftline-systems/driftline/internal/handlers"
	"github.com/driftline-systems/driftline/internal/stream"
)

// Handlers collects everything the router mounts.
type Handlers struct {
	Capture    *handlers.CaptureHandler
	Records    *handlers.RecordsHandler
	Identities *handlers.IdentitiesHandler
	Auth       *handlers.AuthHandler
	Health     *handlers.HealthHandler
	Stream     *stream.Handler
}

// NewRouter constructs a ServeMux with all API routes registered. The capture
// endpoint is guarded by static tokens, the console endpoints by operator
// tokens.
func NewRouter(h Handlers, operators *auth.Service, captureTokens *auth.CaptureTokens) http.Handler {
	mux := http.NewServeMux()

	// Visitor-facing capture endpoint
	mux.HandleFunc("POST /v1/captures", captureTokens.Require(h.Capture.Submit))

	// Operator console
	mux.HandleFunc("POST /v1/auth/login", h.Auth.Login)
	mux.HandleFunc("GET /v1/records", operators.RequireOperator(h.Records.List))
	mux.HandleFunc("GET /v1/records/stats", operators.RequireOperator(h.Records.Stats))
	mux.HandleFunc("GET /v1/records/{id}", operators.RequireOperator(h.Records.Get))
	mux.HandleFunc("GET /v1/identities", operators.RequireOperator(h.Identities.List))
	mux.HandleFunc("POST /v1/identities", operators.RequireOperator(h.Identities.Grow))
	mux.HandleFunc("GET /v1/identities/{id}", operators.RequireOperator(h.Identities.Get))
	mux.HandleFunc("PUT /v1/identities/{id}/health", operators.RequireOperator(h.Identities.SetHealth))
	mux.HandleFunc("DELETE /v1/identities/{id}", operators.RequireOperator(h.Identities.Shrink))

	// Live event stream
	mux.HandleFunc("GET /v1/stream", operators.RequireOperator(h.Stream.ServeHTTP))

	// Health endpoints
	mux.HandleFunc("GET /healthz", h.Health.Health)
	mux.HandleFunc("GET /readyz", h.Health.Ready)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
