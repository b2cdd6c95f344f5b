package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/driftline-systems/driftline/internal/egress"
	"github.com/driftline-systems/driftline/internal/metrics"
	"github.com/driftline-systems/driftline/internal/models"
)

// Manager binds session keys to egress identities. A non-expired binding is
// sticky: repeated Assign calls for the same key return the same identity
// until the binding ages out.
type Manager struct {
	pool  *egress.Pool
	store Store
	ttl   time.Duration
	now   func() time.Time

	// keyed locks serialize Assign and sweep for the same session key while
	// leaving different keys fully concurrent.
	locksMu sync.Mutex
	locks   map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates an assignment manager with the given binding TTL.
func NewManager(pool *egress.Pool, store Store, ttl time.Duration) *Manager {
	return &Manager{
		pool:  pool,
		store: store,
		ttl:   ttl,
		now:   func() time.Time { return time.Now().UTC() },
		locks: make(map[string]*keyLock),
	}
}

// SetClock overrides the manager's clock; used by tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Manager) lockKey(key string) *keyLock {
	m.locksMu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return l
}

func (m *Manager) unlockKey(key string, l *keyLock) {
	l.mu.Unlock()

	m.locksMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
	m.locksMu.Unlock()
}

// Assign returns the identity bound to sessionKey, creating a binding if
// none exists. Geography preference applies only to new bindings; an
// existing binding wins regardless of the hint.
func (m *Manager) Assign(ctx context.Context, sessionKey, geoPreference string) (models.Identity, error) {
	if sessionKey == "" {
		return models.Identity{}, errors.New("empty session key")
	}

	now := m.now()

	// Fast path: live binding, no lock needed.
	if b, err := m.store.Get(ctx, sessionKey); err == nil && !b.Expired(now) {
		identity, err := m.sticky(ctx, b, now)
		if err == nil {
			return identity, nil
		}
		// Bound identity vanished (shrunk between sweeps); rebind below.
	} else if err != nil && !errors.Is(err, ErrBindingNotFound) {
		return models.Identity{}, fmt.Errorf("lookup binding: %w", err)
	}

	l := m.lockKey(sessionKey)
	defer m.unlockKey(sessionKey, l)

	// Re-check under the key lock; a concurrent Assign may have bound it.
	if b, err := m.store.Get(ctx, sessionKey); err == nil && !b.Expired(now) {
		if identity, err := m.sticky(ctx, b, now); err == nil {
			return identity, nil
		}
	}

	// Expired binding still present: release the old identity before
	// rebinding so the counter invariant holds.
	if b, err := m.store.Get(ctx, sessionKey); err == nil && b.Expired(now) {
		if delErr := m.store.Delete(ctx, sessionKey); delErr == nil {
			m.pool.Release(b.IdentityID)
		}
	}

	identity, err := m.pool.Select(geoPreference)
	if err != nil {
		metrics.AssignmentsTotal.WithLabelValues("failed").Inc()
		return models.Identity{}, err
	}

	binding := &models.SessionBinding{
		SessionKey: sessionKey,
		IdentityID: identity.ID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
	}

	winner, stored, err := m.store.PutIfAbsent(ctx, binding)
	if err != nil {
		m.pool.Release(identity.ID)
		return models.Identity{}, fmt.Errorf("store binding: %w", err)
	}
	if !stored {
		// Lost a cross-instance race; undo our increment and follow the winner.
		m.pool.Release(identity.ID)
		return m.sticky(ctx, winner, now)
	}

	metrics.AssignmentsTotal.WithLabelValues("new").Inc()
	slog.Debug("session bound",
		slog.String("session_key", sessionKey),
		slog.String("identity_id", identity.ID),
	)
	return identity, nil
}

// sticky serves an Assign from an existing binding, extending its expiry.
func (m *Manager) sticky(ctx context.Context, b *models.SessionBinding, now time.Time) (models.Identity, error) {
	identity, err := m.pool.Get(b.IdentityID)
	if err != nil {
		return models.Identity{}, err
	}

	// Bindings expire on inactivity, so activity pushes expiry out.
	if err := m.store.Touch(ctx, b.SessionKey, now.Add(m.ttl)); err != nil && !errors.Is(err, ErrBindingNotFound) {
		slog.Warn("failed to extend binding",
			slog.String("session_key", b.SessionKey),
			slog.String("error", err.Error()),
		)
	}

	metrics.AssignmentsTotal.WithLabelValues("sticky").Inc()
	return identity, nil
}

// sweepKey removes one expired binding and releases its identity. Called by
// the sweeper under the same key lock Assign uses, so release and rebind
// cannot race on the identity counter.
func (m *Manager) sweepKey(ctx context.Context, sessionKey string) bool {
	l := m.lockKey(sessionKey)
	defer m.unlockKey(sessionKey, l)

	b, err := m.store.Get(ctx, sessionKey)
	if err != nil {
		return false
	}
	if !b.Expired(m.now()) {
		// Assign touched it between the scan and now.
		return false
	}
	if err := m.store.Delete(ctx, sessionKey); err != nil {
		return false
	}

	m.pool.Release(b.IdentityID)
	return true
}
