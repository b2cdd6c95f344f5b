package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/driftline-systems/driftline/internal/models"
)

// InMemoryRepository keeps records in process memory. Used by tests and
// development; the Postgres repository is the durable implementation.
type InMemoryRepository struct {
	mu      sync.Mutex
	records map[string]*models.Record
	order   []string // creation order, for deterministic claims
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[string]*models.Record)}
}

func cloneRecord(r *models.Record) *models.Record {
	cp := *r
	if r.Classification != nil {
		c := *r.Classification
		cp.Classification = &c
	}
	if r.LastError != nil {
		e := *r.LastError
		cp.LastError = &e
	}
	if r.ClaimedAt != nil {
		t := *r.ClaimedAt
		cp.ClaimedAt = &t
	}
	cp.Payload = append([]byte(nil), r.Payload...)
	return &cp
}

func (r *InMemoryRepository) Create(ctx context.Context, record *models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[record.ID] = cloneRecord(record)
	r.order = append(r.order, record.ID)
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRecord(rec), nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*models.Record, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*models.Record
	for _, id := range r.order {
		rec := r.records[id]
		if filter.State != "" && rec.State != filter.State {
			continue
		}
		if filter.SessionKey != "" && rec.SessionKey != filter.SessionKey {
			continue
		}
		matched = append(matched, rec)
	}

	// Newest first, like the console expects.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make([]*models.Record, 0, end-start)
	for _, rec := range matched[start:end] {
		out = append(out, cloneRecord(rec))
	}
	return out, total, nil
}

func (r *InMemoryRepository) FindBySessionDigest(ctx context.Context, sessionKey, digest string, since time.Time) (*models.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var newest *models.Record
	for _, rec := range r.records {
		if rec.SessionKey != sessionKey || rec.PayloadDigest != digest {
			continue
		}
		if rec.CreatedAt.Before(since) {
			continue
		}
		if newest == nil || rec.CreatedAt.After(newest.CreatedAt) {
			newest = rec
		}
	}
	if newest == nil {
		return nil, ErrRecordNotFound
	}
	return cloneRecord(newest), nil
}

func (r *InMemoryRepository) ClaimNext(ctx context.Context, now time.Time) (*models.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		rec := r.records[id]
		if rec.State != models.StatePending || rec.EligibleAt.After(now) {
			continue
		}
		claimed := now
		rec.State = models.StateValidating
		rec.ClaimedAt = &claimed
		rec.UpdatedAt = now
		return cloneRecord(rec), nil
	}
	return nil, ErrNoPendingRecords
}

// transition applies fn to a record that must currently be validating.
func (r *InMemoryRepository) transition(id string, now time.Time, fn func(*models.Record)) (*models.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if rec.State != models.StateValidating {
		return nil, ErrInvalidTransition
	}

	fn(rec)
	rec.ClaimedAt = nil
	rec.UpdatedAt = now
	return cloneRecord(rec), nil
}

func (r *InMemoryRepository) MarkValidated(ctx context.Context, id string, classification models.Classification, now time.Time) (*models.Record, error) {
	return r.transition(id, now, func(rec *models.Record) {
		rec.State = models.StateValidated
		c := classification
		rec.Classification = &c
		rec.LastError = nil
	})
}

func (r *InMemoryRepository) MarkInvalid(ctx context.Context, id string, now time.Time) (*models.Record, error) {
	return r.transition(id, now, func(rec *models.Record) {
		rec.State = models.StateInvalid
		rec.LastError = nil
	})
}

func (r *InMemoryRepository) RequeueRetry(ctx context.Context, id string, eligibleAt time.Time, lastError string, now time.Time) (*models.Record, error) {
	return r.transition(id, now, func(rec *models.Record) {
		rec.State = models.StatePending
		rec.RetryCount++
		rec.EligibleAt = eligibleAt
		msg := lastError
		rec.LastError = &msg
	})
}

func (r *InMemoryRepository) MarkFailed(ctx context.Context, id string, lastError string, now time.Time) (*models.Record, error) {
	return r.transition(id, now, func(rec *models.Record) {
		rec.State = models.StateError
		msg := lastError
		rec.LastError = &msg
	})
}

func (r *InMemoryRepository) ReapExpiredClaims(ctx context.Context, cutoff time.Time, retryCap int, now time.Time) ([]*models.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reaped []*models.Record
	for _, rec := range r.records {
		if rec.State != models.StateValidating || rec.ClaimedAt == nil || rec.ClaimedAt.After(cutoff) {
			continue
		}

		if rec.RetryCount >= retryCap {
			rec.State = models.StateError
			msg := "claim lease expired after retry cap"
			rec.LastError = &msg
		} else {
			rec.State = models.StatePending
			rec.RetryCount++
			msg := "claim lease expired"
			rec.LastError = &msg
			rec.EligibleAt = now
		}
		rec.ClaimedAt = nil
		rec.UpdatedAt = now
		reaped = append(reaped, cloneRecord(rec))
	}
	return reaped, nil
}

func (r *InMemoryRepository) CountByState(ctx context.Context) (map[models.RecordState]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[models.RecordState]int)
	for _, rec := range r.records {
		out[rec.State]++
	}
	return out, nil
}
