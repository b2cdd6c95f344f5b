// Package session implements sticky assignment of visitor sessions to egress
// identities.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/driftline-systems/driftline/internal/models"
)

// ErrBindingNotFound is returned for lookups of unknown session keys.
var ErrBindingNotFound = errors.New("session binding not found")

// Store persists session bindings. Implementations must be safe for
// concurrent use; atomicity of bind-or-return-existing lives in
// PutIfAbsent so two racing assigns for the same key converge on one binding.
type Store interface {
	// Get returns the binding for a session key, expired or not.
	Get(ctx context.Context, sessionKey string) (*models.SessionBinding, error)

	// PutIfAbsent stores the binding unless one already exists for the key.
	// It returns the winning binding and whether the given one was stored.
	PutIfAbsent(ctx context.Context, binding *models.SessionBinding) (*models.SessionBinding, bool, error)

	// Touch extends an existing binding's expiry.
	Touch(ctx context.Context, sessionKey string, expiresAt time.Time) error

	// Delete removes a binding.
	Delete(ctx context.Context, sessionKey string) error

	// Expired returns all bindings past their expiry at the given time.
	Expired(ctx context.Context, now time.Time) ([]*models.SessionBinding, error)
}

// MemoryStore is the in-process binding store used in tests and
// single-instance deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	bindings map[string]*models.SessionBinding
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bindings: make(map[string]*models.SessionBinding)}
}

func (s *MemoryStore) Get(ctx context.Context, sessionKey string) (*models.SessionBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bindings[sessionKey]
	if !ok {
		return nil, ErrBindingNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) PutIfAbsent(ctx context.Context, binding *models.SessionBinding) (*models.SessionBinding, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.bindings[binding.SessionKey]; ok {
		cp := *existing
		return &cp, false, nil
	}

	stored := *binding
	s.bindings[binding.SessionKey] = &stored
	cp := stored
	return &cp, true, nil
}

func (s *MemoryStore) Touch(ctx context.Context, sessionKey string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bindings[sessionKey]
	if !ok {
		return ErrBindingNotFound
	}
	b.ExpiresAt = expiresAt
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bindings[sessionKey]; !ok {
		return ErrBindingNotFound
	}
	delete(s.bindings, sessionKey)
	return nil
}

func (s *MemoryStore) Expired(ctx context.Context, now time.Time) ([]*models.SessionBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.SessionBinding
	for _, b := range s.bindings {
		if b.Expired(now) {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}
