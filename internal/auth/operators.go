package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Operator is one configured console account. PasswordHash is a bcrypt hash
// supplied through configuration; the engine never stores plaintext.
type Operator struct {
	Username     string
	PasswordHash string
}

// Service authenticates operators against the configured account list.
type Service struct {
	operators map[string]Operator
	tokens    *TokenGenerator
}

// NewService creates the operator auth service.
func NewService(operators []Operator, tokens *TokenGenerator) *Service {
	byName := make(map[string]Operator, len(operators))
	for _, op := range operators {
		byName[op.Username] = op
	}
	return &Service{operators: byName, tokens: tokens}
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(username, password string) (string, error) {
	op, ok := s.operators[username]
	if !ok {
		// Burn a comparison anyway so missing and wrong usernames take the
		// same time.
		bcrypt.CompareHashAndPassword([]byte("$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinva"), []byte(password))
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.tokens.Generate(username)
}

// Validate checks an operator token and returns the username.
func (s *Service) Validate(token string) (string, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return "", err
	}
	return claims.Username, nil
}

// TokenTTL returns the configured token lifetime.
func (s *Service) TokenTTL() int64 {
	return int64(s.tokens.TTL().Seconds())
}
