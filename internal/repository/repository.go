// Package repository is the single source of truth for record state. All
// mutation goes through the claim/transition operations; no caller writes
// record fields directly.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/driftline-systems/driftline/internal/models"
)

var (
	ErrRecordNotFound = errors.New("record not found")

	// ErrNoPendingRecords is returned by ClaimNext when nothing is eligible.
	ErrNoPendingRecords = errors.New("no pending records")

	// ErrInvalidTransition is returned when a transition is attempted from a
	// state other than the one the operation requires.
	ErrInvalidTransition = errors.New("invalid record state transition")
)

// ListFilter narrows List results.
type ListFilter struct {
	State      models.RecordState
	SessionKey string
	Page       int
	Limit      int
}

// Repository persists records and enforces the validation state machine.
//
// Claim semantics: ClaimNext atomically moves exactly one eligible pending
// record to validating and stamps the claim time, so at most one worker owns
// a record at any instant. The Mark*/Requeue operations require the record
// to be in validating and fail with ErrInvalidTransition otherwise, which
// also protects terminal states from being rewritten.
type Repository interface {
	Create(ctx context.Context, record *models.Record) error
	GetByID(ctx context.Context, id string) (*models.Record, error)
	List(ctx context.Context, filter ListFilter) ([]*models.Record, int, error)

	// FindBySessionDigest returns the newest record for (sessionKey, digest)
	// created at or after since. Used by ingestion dedup.
	FindBySessionDigest(ctx context.Context, sessionKey, digest string, since time.Time) (*models.Record, error)

	// ClaimNext claims the oldest-eligible pending record, or returns
	// ErrNoPendingRecords.
	ClaimNext(ctx context.Context, now time.Time) (*models.Record, error)

	// MarkValidated completes a claim with a classification. Terminal.
	MarkValidated(ctx context.Context, id string, classification models.Classification, now time.Time) (*models.Record, error)

	// MarkInvalid completes a claim as externally rejected. Terminal.
	MarkInvalid(ctx context.Context, id string, now time.Time) (*models.Record, error)

	// RequeueRetry returns a claimed record to pending after a transient
	// failure, incrementing its retry count and deferring eligibility.
	RequeueRetry(ctx context.Context, id string, eligibleAt time.Time, lastError string, now time.Time) (*models.Record, error)

	// MarkFailed moves a claimed record to the terminal error state after
	// retries are exhausted.
	MarkFailed(ctx context.Context, id string, lastError string, now time.Time) (*models.Record, error)

	// ReapExpiredClaims returns records claimed before cutoff to pending
	// (retry count incremented), or to the terminal error state when the
	// retry cap is already spent. It returns every record it touched.
	ReapExpiredClaims(ctx context.Context, cutoff time.Time, retryCap int, now time.Time) ([]*models.Record, error)

	// CountByState returns record counts per state for the console.
	CountByState(ctx context.Context) (map[models.RecordState]int, error)
}
