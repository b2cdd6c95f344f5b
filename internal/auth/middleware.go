package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/driftline-systems/driftline/common/httputil"
)

// RequireOperator guards console endpoints with a bearer token. WebSocket
// clients cannot set headers, so a "token" query parameter is accepted too.
func (s *Service) RequireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing operator token")
			return
		}

		if _, err := s.Validate(token); err != nil {
			httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r)
	}
}

// CaptureTokens guards the capture endpoint with static tokens, compared in
// constant time.
type CaptureTokens struct {
	tokens []string
}

// NewCaptureTokens builds the guard; an empty list disables authentication
// (development only).
func NewCaptureTokens(tokens []string) *CaptureTokens {
	return &CaptureTokens{tokens: tokens}
}

// Require wraps a capture handler with token validation.
func (c *CaptureTokens) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(c.tokens) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		presented := bearerToken(r)
		for _, t := range c.tokens {
			if subtle.ConstantTimeCompare([]byte(presented), []byte(t)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid capture token")
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
