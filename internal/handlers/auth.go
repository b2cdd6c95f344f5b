package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/driftline-systems/driftline/common/httputil"
	"github.com/driftline-systems/driftline/internal/auth"
	"github.com/driftline-systems/driftline/internal/models"
)

// AuthHandler serves operator console authentication.
type AuthHandler struct {
	svc *auth.Service
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := httputil.DecodeJSON(r, &req, 4096); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	token, err := h.svc.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			httputil.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
			return
		}
		slog.Error("operator login failed", slog.String("error", err.Error()))
		httputil.WriteError(w, http.StatusInternalServerError, "login_failed", "failed to issue token")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.LoginResponse{
		Token:     token,
		ExpiresIn: h.svc.TokenTTL(),
	})
}
