package models

import "time"

// RecordState is the lifecycle state of a captured record.
type RecordState string

const (
	StatePending    RecordState = "pending"
	StateValidating RecordState = "validating"
	StateValidated  RecordState = "validated"
	StateInvalid    RecordState = "invalid"
	StateError      RecordState = "error"
)

// Valid reports whether s is one of the known lifecycle states.
func (s RecordState) Valid() bool {
	switch s {
	case StatePending, StateValidating, StateValidated, StateInvalid, StateError:
		return true
	}
	return false
}

// Terminal reports whether a record in this state can never transition again.
func (s RecordState) Terminal() bool {
	switch s {
	case StateValidated, StateInvalid, StateError:
		return true
	}
	return false
}

// DeviceSignature is the parsed client fingerprint attached to a capture.
type DeviceSignature struct {
	UserAgent      string `json:"user_agent"`
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OS             string `json:"os"`
	Mobile         bool   `json:"mobile"`
	Bot            bool   `json:"bot"`
	AcceptLanguage string `json:"accept_language,omitempty"`
}

// Classification is the tier assigned to a validated record by the scorer.
type Classification struct {
	Tier       string  `json:"tier"`
	Confidence float64 `json:"confidence"`
}

// Record is one captured credential/session unit progressing through
// validation. Records are created in StatePending and mutated exclusively
// through the repository's claim/transition operations.
type Record struct {
	ID             string          `json:"id"`
	SessionKey     string          `json:"session_key"`
	IdentityID     string          `json:"identity_id"`
	Payload        []byte          `json:"-"`
	PayloadDigest  string          `json:"payload_digest"`
	Device         DeviceSignature `json:"device"`
	State          RecordState     `json:"state"`
	Classification *Classification `json:"classification,omitempty"`
	RetryCount     int             `json:"retry_count"`
	LastError      *string         `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ClaimedAt      *time.Time      `json:"claimed_at,omitempty"`
	EligibleAt     time.Time       `json:"eligible_at"`
}
