package models

import "time"

// Event topics consumed by operator consoles and the NATS bridge.
const (
	TopicRecordCreated  = "records.created"
	TopicRecordUpdated  = "records.updated"
	TopicIdentityHealth = "identities.health"
)

// Event is one state-change notification fanned out to subscribers.
type Event struct {
	Topic          string          `json:"topic"`
	RecordID       string          `json:"record_id,omitempty"`
	SessionKey     string          `json:"session_key,omitempty"`
	IdentityID     string          `json:"identity_id,omitempty"`
	State          RecordState     `json:"state,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	RetryCount     int             `json:"retry_count,omitempty"`
	Health         Health          `json:"health,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// RecordCreated builds a creation event for a new record.
func RecordCreated(r *Record) Event {
	return Event{
		Topic:      TopicRecordCreated,
		RecordID:   r.ID,
		SessionKey: r.SessionKey,
		IdentityID: r.IdentityID,
		State:      r.State,
		Timestamp:  time.Now().UTC(),
	}
}

// RecordUpdated builds a transition event carrying the record's new state.
func RecordUpdated(r *Record) Event {
	return Event{
		Topic:          TopicRecordUpdated,
		RecordID:       r.ID,
		SessionKey:     r.SessionKey,
		IdentityID:     r.IdentityID,
		State:          r.State,
		Classification: r.Classification,
		RetryCount:     r.RetryCount,
		Timestamp:      time.Now().UTC(),
	}
}

// IdentityHealthChanged builds a health transition event for an identity.
func IdentityHealthChanged(id string, health Health) Event {
	return Event{
		Topic:      TopicIdentityHealth,
		IdentityID: id,
		Health:     health,
		Timestamp:  time.Now().UTC(),
	}
}
