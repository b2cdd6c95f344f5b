// Package auth issues and validates operator tokens and guards the capture
// endpoint with static tokens.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the operator token claims.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenGenerator signs and validates operator access tokens.
type TokenGenerator struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenGenerator creates a generator with the given signing secret.
func NewTokenGenerator(secret string, ttl time.Duration) *TokenGenerator {
	return &TokenGenerator{secret: []byte(secret), ttl: ttl}
}

// TTL returns the configured token lifetime.
func (tg *TokenGenerator) TTL() time.Duration {
	return tg.ttl
}

// Generate issues a signed token for an operator.
func (tg *TokenGenerator) Generate(username string) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tg.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "driftline",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tg.secret)
}

// Validate parses and verifies a token, returning its claims.
func (tg *TokenGenerator) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return tg.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
