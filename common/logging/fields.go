package logging

import "log/slog"

// Common field names for consistent logging across the engine.
const (
	FieldService    = "service"
	FieldRecordID   = "record_id"
	FieldSessionKey = "session_key"
	FieldIdentityID = "identity_id"
	FieldState      = "state"
	FieldTopic      = "topic"
	FieldSubscriber = "subscriber_id"
	FieldWorker     = "worker"
	FieldIP         = "ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// RecordID returns a slog attribute for a record ID.
func RecordID(id string) slog.Attr {
	return slog.String(FieldRecordID, id)
}

// SessionKey returns a slog attribute for a session key.
func SessionKey(key string) slog.Attr {
	return slog.String(FieldSessionKey, key)
}

// IdentityID returns a slog attribute for an egress identity ID.
func IdentityID(id string) slog.Attr {
	return slog.String(FieldIdentityID, id)
}

// State returns a slog attribute for a record state.
func State(state string) slog.Attr {
	return slog.String(FieldState, state)
}

// Topic returns a slog attribute for an event topic.
func Topic(topic string) slog.Attr {
	return slog.String(FieldTopic, topic)
}

// Subscriber returns a slog attribute for a subscriber connection ID.
func Subscriber(id string) slog.Attr {
	return slog.String(FieldSubscriber, id)
}

// Worker returns a slog attribute for a pipeline worker index.
func Worker(n int) slog.Attr {
	return slog.Int(FieldWorker, n)
}

// IP returns a slog attribute for the IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
