// Package capture accepts inbound capture submissions, binds them to an
// egress identity and persists them for the validation pipeline.
package capture

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/driftline-systems/driftline/internal/egress"
	"github.com/driftline-systems/driftline/internal/metrics"
	"github.com/driftline-systems/driftline/internal/models"
	"github.com/driftline-systems/driftline/internal/repository"
)

var (
	// ErrMalformedInput rejects captures with empty payloads or device
	// signatures that do not parse. Never retried.
	ErrMalformedInput = errors.New("malformed capture input")

	// ErrAssignmentFailed wraps non-exhaustion assignment errors.
	ErrAssignmentFailed = errors.New("session assignment failed")
)

// Assigner is the slice of the session manager the capture service needs.
type Assigner interface {
	Assign(ctx context.Context, sessionKey, geoPreference string) (models.Identity, error)
}

// EventSink receives best-effort record creation events.
type EventSink interface {
	Publish(event models.Event)
}

// Service implements capture ingestion.
type Service struct {
	assigner      Assigner
	repo          repository.Repository
	events        EventSink
	dedup         *Dedup
	dedupWindow   time.Duration
	assignTimeout time.Duration
	now           func() time.Time
}

// NewService creates a capture service. events may be nil.
func NewService(assigner Assigner, repo repository.Repository, events EventSink, dedupWindow, assignTimeout time.Duration) *Service {
	return &Service{
		assigner:      assigner,
		repo:          repo,
		events:        events,
		dedup:         NewDedup(dedupWindow),
		dedupWindow:   dedupWindow,
		assignTimeout: assignTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Close stops the dedup window's cleanup loop.
func (s *Service) Close() {
	s.dedup.Close()
}

// Ingest validates and persists one capture, returning the record ID.
// Resubmitting an identical (session key, payload) pair inside the dedup
// window returns the original record ID without creating a duplicate.
func (s *Service) Ingest(ctx context.Context, req *models.CaptureRequest) (string, error) {
	if req.SessionKey == "" {
		metrics.CapturesTotal.WithLabelValues("malformed").Inc()
		return "", fmt.Errorf("%w: missing session key", ErrMalformedInput)
	}
	if len(req.Payload) == 0 {
		metrics.CapturesTotal.WithLabelValues("malformed").Inc()
		return "", fmt.Errorf("%w: empty payload", ErrMalformedInput)
	}

	device, err := parseDeviceSignature(req.Device)
	if err != nil {
		metrics.CapturesTotal.WithLabelValues("malformed").Inc()
		return "", fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	sum := sha256.Sum256([]byte(req.Payload))
	digest := hex.EncodeToString(sum[:])

	if recordID, ok := s.dedup.Lookup(req.SessionKey, digest); ok {
		metrics.CaptureDedupHits.Inc()
		metrics.CapturesTotal.WithLabelValues("dedup").Inc()
		return recordID, nil
	}

	// The in-process window is empty after a restart and blind to captures
	// accepted by other instances; the repository lookup covers both.
	existing, err := s.repo.FindBySessionDigest(ctx, req.SessionKey, digest, s.now().Add(-s.dedupWindow))
	switch {
	case err == nil:
		s.dedup.Remember(req.SessionKey, digest, existing.ID)
		metrics.CaptureDedupHits.Inc()
		metrics.CapturesTotal.WithLabelValues("dedup").Inc()
		return existing.ID, nil
	case !errors.Is(err, repository.ErrRecordNotFound):
		metrics.CapturesTotal.WithLabelValues("store_failed").Inc()
		return "", fmt.Errorf("dedup lookup: %w", err)
	}

	// Assignment is bounded: a stalled binding store must fail the capture
	// fast instead of queueing callers.
	assignCtx, cancel := context.WithTimeout(ctx, s.assignTimeout)
	identity, err := s.assigner.Assign(assignCtx, req.SessionKey, req.GeoHint)
	cancel()
	if err != nil {
		metrics.CapturesTotal.WithLabelValues("assign_failed").Inc()
		if errors.Is(err, egress.ErrPoolExhausted) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrAssignmentFailed, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate record id: %w", err)
	}

	now := s.now()
	record := &models.Record{
		ID:            id.String(),
		SessionKey:    req.SessionKey,
		IdentityID:    identity.ID,
		Payload:       []byte(req.Payload),
		PayloadDigest: digest,
		Device:        device,
		State:         models.StatePending,
		CreatedAt:     now,
		UpdatedAt:     now,
		EligibleAt:    now,
	}

	if err := s.repo.Create(ctx, record); err != nil {
		metrics.CapturesTotal.WithLabelValues("store_failed").Inc()
		return "", fmt.Errorf("persist record: %w", err)
	}

	s.dedup.Remember(req.SessionKey, digest, record.ID)
	metrics.CapturesTotal.WithLabelValues("accepted").Inc()

	// Notification is best-effort; a hub outage never fails ingestion.
	if s.events != nil {
		s.events.Publish(models.RecordCreated(record))
	}

	slog.Debug("capture accepted",
		slog.String("record_id", record.ID),
		slog.String("session_key", record.SessionKey),
		slog.String("identity_id", record.IdentityID),
	)
	return record.ID, nil
}
