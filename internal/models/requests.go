package models

// CaptureRequest is the inbound payload accepted by the capture endpoint.
type CaptureRequest struct {
	SessionKey string `json:"session_key"`
	// GeoHint is the visitor's preferred egress geography; empty means any.
	GeoHint string `json:"geo_hint,omitempty"`
	// Payload is the opaque captured material, base64 or raw text; the engine
	// never interprets it beyond hashing for dedup.
	Payload string               `json:"payload"`
	Device  DeviceSignatureInput `json:"device"`
}

// DeviceSignatureInput is the raw client fingerprint before parsing.
type DeviceSignatureInput struct {
	UserAgent      string `json:"user_agent"`
	AcceptLanguage string `json:"accept_language,omitempty"`
}

// CaptureResponse acknowledges an accepted capture.
type CaptureResponse struct {
	RecordID string `json:"record_id"`
}

// LoginRequest is the operator console login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued operator token.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// ListRecordsRequest filters the records query API.
type ListRecordsRequest struct {
	State      RecordState
	SessionKey string
	Page       int
	Limit      int
}

// ListRecordsResponse is a page of records plus the unfiltered total.
type ListRecordsResponse struct {
	Records []*Record `json:"records"`
	Total   int       `json:"total"`
	Page    int       `json:"page"`
	Limit   int       `json:"limit"`
}
