package models

import "time"

// Health describes the probe-derived status of an egress identity.
type Health string

const (
	HealthHealthy     Health = "healthy"
	HealthDegraded    Health = "degraded"
	HealthUnavailable Health = "unavailable"
)

// Identity is a point-in-time snapshot of one egress network identity.
// Live pool entries are owned by the egress package; callers only ever see
// snapshots, so there is no shared mutable state leaking out of the pool.
type Identity struct {
	ID             string    `json:"id"`
	Geo            string    `json:"geo"`
	Health         Health    `json:"health"`
	ActiveSessions int64     `json:"active_sessions"`
	LastProbe      time.Time `json:"last_probe,omitempty"`
}

// SessionBinding is the sticky mapping from a session key to an identity.
type SessionBinding struct {
	SessionKey string    `json:"session_key"`
	IdentityID string    `json:"identity_id"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the binding has passed its expiry at the given time.
func (b *SessionBinding) Expired(now time.Time) bool {
	return !now.Before(b.ExpiresAt)
}
