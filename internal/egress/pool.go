// Package egress maintains the pool of egress network identities and their
// probe-derived health. The pool is the only owner of identity state; callers
// interact through Select/Release and receive immutable snapshots.
package egress

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/driftline-systems/driftline/internal/models"
)

var (
	// ErrPoolExhausted is returned when no healthy identity can serve a
	// selection, including after falling back from the preferred geography.
	ErrPoolExhausted = errors.New("egress pool exhausted")

	// ErrIdentityNotFound is returned for lookups of unknown identity IDs.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrIdentityBusy is returned when shrinking an identity that still has
	// active sessions bound to it.
	ErrIdentityBusy = errors.New("identity has active sessions")
)

// IdentitySpec describes one identity at pool initialization or growth.
type IdentitySpec struct {
	ID   string `yaml:"id" json:"id"`
	Geo  string `yaml:"geo" json:"geo"`
	Addr string `yaml:"addr" json:"addr"`
}

// entry is the live pool-internal representation of one identity.
// The active counter is atomic because it is the only value written on the
// hot assignment path; health bookkeeping is written only by the prober.
type entry struct {
	id   string
	geo  string
	addr string

	active atomic.Int64

	mu          sync.Mutex
	health      models.Health
	consecFails int
	lastProbe   time.Time
}

func (e *entry) snapshot() models.Identity {
	e.mu.Lock()
	health := e.health
	lastProbe := e.lastProbe
	e.mu.Unlock()

	return models.Identity{
		ID:             e.id,
		Geo:            e.geo,
		Health:         health,
		ActiveSessions: e.active.Load(),
		LastProbe:      lastProbe,
	}
}

// Pool owns the set of egress identities. Membership changes (grow/shrink)
// take the write lock; selection and release only ever take the read lock, so
// concurrent assignments never serialize on a global lock.
type Pool struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewPool builds a pool from the startup specs. All identities start healthy;
// the first probe cycle corrects that if needed.
func NewPool(specs []IdentitySpec) (*Pool, error) {
	p := &Pool{entries: make(map[string]*entry, len(specs))}
	for _, spec := range specs {
		if err := p.add(spec); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pool) add(spec IdentitySpec) error {
	if spec.ID == "" {
		return errors.New("identity spec missing id")
	}
	if _, exists := p.entries[spec.ID]; exists {
		return fmt.Errorf("duplicate identity id %q", spec.ID)
	}
	p.entries[spec.ID] = &entry{
		id:     spec.ID,
		geo:    spec.Geo,
		addr:   spec.Addr,
		health: models.HealthHealthy,
	}
	return nil
}

// Select picks a healthy identity for the given geography preference and
// increments its active-session count. Selection prefers an exact geo match,
// falls back to any geography, and breaks ties by lowest active count then
// lexicographic ID so results are deterministic under test.
//
// The increment is claimed with a compare-and-swap against the count the pick
// was based on. A lost swap means a concurrent selector already took that
// slot; re-picking then sees the raised count and spreads onto the next-least
// loaded identity instead of herding.
//
// The returned snapshot reflects the identity after the increment.
func (p *Pool) Select(geo string) (models.Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for {
		chosen, observed := p.pickLocked(geo)
		if chosen == nil && geo != "" {
			chosen, observed = p.pickLocked("")
		}
		if chosen == nil {
			return models.Identity{}, ErrPoolExhausted
		}

		if chosen.active.CompareAndSwap(observed, observed+1) {
			return chosen.snapshot(), nil
		}
	}
}

// pickLocked returns the best healthy candidate for geo ("" means any) and
// the active count the choice was based on. Caller holds at least the read
// lock.
func (p *Pool) pickLocked(geo string) (*entry, int64) {
	var best *entry
	var bestActive int64

	for _, e := range p.entries {
		if geo != "" && e.geo != geo {
			continue
		}
		e.mu.Lock()
		healthy := e.health == models.HealthHealthy
		e.mu.Unlock()
		if !healthy {
			continue
		}

		active := e.active.Load()
		if best == nil || active < bestActive || (active == bestActive && e.id < best.id) {
			best = e
			bestActive = active
		}
	}
	return best, bestActive
}

// Release decrements an identity's active-session count when a binding
// expires. Releasing an unknown identity is a no-op: the identity may have
// been shrunk after its last binding was swept.
func (p *Pool) Release(id string) {
	p.mu.RLock()
	e, ok := p.entries[id]
	p.mu.RUnlock()
	if !ok {
		return
	}

	// Floor at zero; the count invariant must hold even if a release races a
	// crashed sweep that already ran.
	for {
		cur := e.active.Load()
		if cur <= 0 {
			return
		}
		if e.active.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// Get returns a snapshot of one identity.
func (p *Pool) Get(id string) (models.Identity, error) {
	p.mu.RLock()
	e, ok := p.entries[id]
	p.mu.RUnlock()
	if !ok {
		return models.Identity{}, ErrIdentityNotFound
	}
	return e.snapshot(), nil
}

// Snapshot returns all identities sorted by ID.
func (p *Pool) Snapshot() []models.Identity {
	p.mu.RLock()
	out := make([]models.Identity, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.snapshot())
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Grow adds identities to a running pool.
func (p *Pool) Grow(specs []IdentitySpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, spec := range specs {
		if err := p.add(spec); err != nil {
			return err
		}
	}
	return nil
}

// Shrink removes an identity. It refuses while sessions are still bound to
// the identity; callers should mark it unavailable first and wait for the
// binding sweep to drain it.
func (p *Pool) Shrink(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[id]
	if !ok {
		return ErrIdentityNotFound
	}
	if e.active.Load() > 0 {
		return ErrIdentityBusy
	}
	delete(p.entries, id)
	return nil
}

// SetHealth forces an identity's health, bypassing probe thresholds. Used by
// operators to drain an identity and by tests.
func (p *Pool) SetHealth(id string, health models.Health) error {
	p.mu.RLock()
	e, ok := p.entries[id]
	p.mu.RUnlock()
	if !ok {
		return ErrIdentityNotFound
	}

	e.mu.Lock()
	e.health = health
	e.consecFails = 0
	e.mu.Unlock()
	return nil
}

// HealthyCount returns the number of currently healthy identities.
func (p *Pool) HealthyCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, e := range p.entries {
		e.mu.Lock()
		if e.health == models.HealthHealthy {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// recordProbe applies one probe result to an identity and returns the health
// before and after. Thresholds: failDegraded consecutive failures mark the
// identity degraded, failUnavailable mark it unavailable; one success
// restores healthy immediately.
func (p *Pool) recordProbe(id string, ok bool, failDegraded, failUnavailable int, now time.Time) (before, after models.Health, found bool) {
	p.mu.RLock()
	e, exists := p.entries[id]
	p.mu.RUnlock()
	if !exists {
		return "", "", false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	before = e.health
	e.lastProbe = now

	if ok {
		e.consecFails = 0
		e.health = models.HealthHealthy
	} else {
		e.consecFails++
		switch {
		case e.consecFails >= failUnavailable:
			e.health = models.HealthUnavailable
		case e.consecFails >= failDegraded:
			e.health = models.HealthDegraded
		}
	}

	return before, e.health, true
}

// addrs returns id->probe address for every pool member.
func (p *Pool) addrs() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]string, len(p.entries))
	for id, e := range p.entries {
		out[id] = e.addr
	}
	return out
}
