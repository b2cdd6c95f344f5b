// Package verify defines the external verification/enrichment collaborator
// consumed by the validation pipeline.
package verify

import "context"

// Result is the outcome of one external verification call.
type Result struct {
	// Valid reports whether the captured material checked out.
	Valid bool `json:"valid"`

	// Enrichment carries signal flags and metadata from the collaborator,
	// consumed by the classifier. Values are typically booleans or numbers.
	Enrichment map[string]interface{} `json:"enrichment,omitempty"`
}

// Verifier checks captured material against an external collaborator.
// Implementations must honor ctx deadlines and be safe to retry: the
// pipeline re-invokes Check for the same payload after transient failures.
type Verifier interface {
	Check(ctx context.Context, payload []byte) (*Result, error)
}
