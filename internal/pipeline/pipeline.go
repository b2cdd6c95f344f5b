// Package pipeline runs the validation worker pool that moves records
// through the claim/verify/classify state machine.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/driftline-systems/driftline/internal/metrics"
	"github.com/driftline-systems/driftline/internal/models"
	"github.com/driftline-systems/driftline/internal/repository"
	"github.com/driftline-systems/driftline/internal/verify"
)

// EventSink receives record transition events.
type EventSink interface {
	Publish(event models.Event)
}

// Config holds the worker pool and retry policy knobs.
type Config struct {
	// Workers is the fixed worker pool size.
	Workers int

	// PollInterval is how long an idle worker waits before re-polling for
	// claimable records.
	PollInterval time.Duration

	// CheckTimeout bounds each external verification call.
	CheckTimeout time.Duration

	// RetryCap is the maximum number of retries before a record goes to the
	// terminal error state.
	RetryCap int

	// BackoffBase is the first retry delay; each retry doubles it.
	BackoffBase time.Duration

	// BackoffMax caps the exponential retry delay.
	BackoffMax time.Duration

	// ClaimLease is how long a claim may go without a transition before the
	// reaper takes it back.
	ClaimLease time.Duration

	// ReapInterval is the reaper tick.
	ReapInterval time.Duration
}

// Pipeline owns the validation workers and the claim reaper.
type Pipeline struct {
	repo       repository.Repository
	verifier   verify.Verifier
	classifier *Classifier
	events     EventSink
	cfg        Config
	now        func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a pipeline. events may be nil.
func New(repo repository.Repository, verifier verify.Verifier, classifier *Classifier, events EventSink, cfg Config) *Pipeline {
	return &Pipeline{
		repo:       repo,
		verifier:   verifier,
		classifier: classifier,
		events:     events,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		stop:       make(chan struct{}),
	}
}

// SetClock overrides the pipeline's clock; used by tests.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Start launches the worker pool and the reaper.
func (p *Pipeline) Start(ctx context.Context) {
	slog.Info("validation pipeline started",
		slog.Int("workers", p.cfg.Workers),
		slog.Int("retry_cap", p.cfg.RetryCap),
		slog.Duration("claim_lease", p.cfg.ClaimLease),
	)

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.wg.Add(1)
	go p.reaper(ctx)
}

// Stop signals all loops to exit and waits for them.
func (p *Pipeline) Stop() {
	close(p.stop)
	p.wg.Wait()
	slog.Info("validation pipeline stopped")
}

func (p *Pipeline) worker(ctx context.Context, n int) {
	defer p.wg.Done()

	log := slog.With(slog.Int("worker", n))
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		rec, err := p.repo.ClaimNext(ctx, p.now())
		if err != nil {
			if !errors.Is(err, repository.ErrNoPendingRecords) {
				log.Error("claim failed", slog.String("error", err.Error()))
			}
			select {
			case <-time.After(p.cfg.PollInterval):
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		p.process(ctx, log, rec)
	}
}

// process runs one claimed record through verification and applies the
// resulting transition.
func (p *Pipeline) process(ctx context.Context, log *slog.Logger, rec *models.Record) {
	checkCtx, cancel := context.WithTimeout(ctx, p.cfg.CheckTimeout)
	start := time.Now()
	result, err := p.verifier.Check(checkCtx, rec.Payload)
	metrics.VerificationDuration.Observe(time.Since(start).Seconds())
	cancel()

	now := p.now()

	switch {
	case err != nil:
		// Transient failure (including timeout): retry with backoff until
		// the cap is spent, then park the record in the error state.
		if rec.RetryCount >= p.cfg.RetryCap {
			updated, markErr := p.repo.MarkFailed(ctx, rec.ID, err.Error(), now)
			if markErr != nil {
				log.Error("failed to mark record errored",
					slog.String("record_id", rec.ID),
					slog.String("error", markErr.Error()),
				)
				return
			}
			metrics.RecordTransitionsTotal.WithLabelValues(string(models.StateError)).Inc()
			log.Warn("record exhausted retries",
				slog.String("record_id", rec.ID),
				slog.Int("retries", rec.RetryCount),
			)
			p.publish(updated)
			return
		}

		eligibleAt := now.Add(p.backoff(rec.RetryCount))
		updated, reqErr := p.repo.RequeueRetry(ctx, rec.ID, eligibleAt, err.Error(), now)
		if reqErr != nil {
			log.Error("failed to requeue record",
				slog.String("record_id", rec.ID),
				slog.String("error", reqErr.Error()),
			)
			return
		}
		metrics.VerificationRetries.Inc()
		metrics.RecordTransitionsTotal.WithLabelValues(string(models.StatePending)).Inc()
		p.publish(updated)

	case !result.Valid:
		updated, markErr := p.repo.MarkInvalid(ctx, rec.ID, now)
		if markErr != nil {
			log.Error("failed to mark record invalid",
				slog.String("record_id", rec.ID),
				slog.String("error", markErr.Error()),
			)
			return
		}
		metrics.RecordTransitionsTotal.WithLabelValues(string(models.StateInvalid)).Inc()
		p.publish(updated)

	default:
		classification := p.classifier.Classify(result.Enrichment)
		updated, markErr := p.repo.MarkValidated(ctx, rec.ID, classification, now)
		if markErr != nil {
			log.Error("failed to mark record validated",
				slog.String("record_id", rec.ID),
				slog.String("error", markErr.Error()),
			)
			return
		}
		metrics.RecordTransitionsTotal.WithLabelValues(string(models.StateValidated)).Inc()
		log.Debug("record validated",
			slog.String("record_id", rec.ID),
			slog.String("tier", classification.Tier),
		)
		p.publish(updated)
	}
}

// backoff returns the retry delay for a record that has already retried
// retryCount times: base doubled per retry, capped.
func (p *Pipeline) backoff(retryCount int) time.Duration {
	delay := p.cfg.BackoffBase
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= p.cfg.BackoffMax {
			return p.cfg.BackoffMax
		}
	}
	if delay > p.cfg.BackoffMax {
		delay = p.cfg.BackoffMax
	}
	return delay
}

func (p *Pipeline) reaper(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.reap(ctx)
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// reap returns records whose claim lease expired (crashed worker) to the
// queue, or to the terminal error state when their retries are spent.
func (p *Pipeline) reap(ctx context.Context) {
	now := p.now()
	cutoff := now.Add(-p.cfg.ClaimLease)

	reaped, err := p.repo.ReapExpiredClaims(ctx, cutoff, p.cfg.RetryCap, now)
	if err != nil {
		slog.Error("claim reap failed", slog.String("error", err.Error()))
		return
	}
	if len(reaped) == 0 {
		return
	}

	metrics.ReapedClaimsTotal.Add(float64(len(reaped)))
	slog.Warn("reaped expired claims", slog.Int("count", len(reaped)))
	for _, rec := range reaped {
		metrics.RecordTransitionsTotal.WithLabelValues(string(rec.State)).Inc()
		p.publish(rec)
	}
}

func (p *Pipeline) publish(rec *models.Record) {
	if p.events != nil {
		p.events.Publish(models.RecordUpdated(rec))
	}
}
