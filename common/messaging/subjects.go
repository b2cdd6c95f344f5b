// Package messaging defines the NATS subject namespace used by the engine to
// publish record lifecycle events for out-of-process consumers.
package messaging

import "strings"

// Subject names follow the pattern: driftline.<stream>.<action>
const (
	// SubjectRecordsCreated carries events for newly captured records.
	SubjectRecordsCreated = "driftline.records.created"

	// SubjectRecordsUpdated carries record state transition events.
	SubjectRecordsUpdated = "driftline.records.updated"

	// SubjectIdentitiesHealth carries egress identity health transitions.
	SubjectIdentitiesHealth = "driftline.identities.health"
)

// ValidSubject reports whether a subject belongs to the driftline namespace.
func ValidSubject(subject string) bool {
	if !strings.HasPrefix(subject, "driftline.") {
		return false
	}
	switch subject {
	case SubjectRecordsCreated, SubjectRecordsUpdated, SubjectIdentitiesHealth:
		return true
	}
	return false
}
