package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline-systems/driftline/internal/models"
)

func newPendingRecord(id string, createdAt time.Time) *models.Record {
	return &models.Record{
		ID:            id,
		SessionKey:    "visitor-1",
		IdentityID:    "us-a",
		Payload:       []byte("payload-" + id),
		PayloadDigest: "digest-" + id,
		State:         models.StatePending,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
		EligibleAt:    createdAt,
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo := NewInMemoryRepository()
	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestClaimNext_CreationOrder(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Create(ctx, newPendingRecord("a", now)))
	require.NoError(t, repo.Create(ctx, newPendingRecord("b", now)))

	first, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, "a", first.ID)
	assert.Equal(t, models.StateValidating, first.State)
	require.NotNil(t, first.ClaimedAt)

	second, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, "b", second.ID)

	_, err = repo.ClaimNext(ctx, now)
	assert.ErrorIs(t, err, ErrNoPendingRecords)
}

func TestClaimNext_HonorsEligibility(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	rec := newPendingRecord("a", now)
	rec.EligibleAt = now.Add(time.Minute)
	require.NoError(t, repo.Create(ctx, rec))

	_, err := repo.ClaimNext(ctx, now)
	assert.ErrorIs(t, err, ErrNoPendingRecords)

	claimed, err := repo.ClaimNext(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "a", claimed.ID)
}

func TestMarkValidated(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Create(ctx, newPendingRecord("a", now)))
	_, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)

	rec, err := repo.MarkValidated(ctx, "a", models.Classification{Tier: "prime", Confidence: 0.9}, now)
	require.NoError(t, err)
	assert.Equal(t, models.StateValidated, rec.State)
	require.NotNil(t, rec.Classification)
	assert.Equal(t, "prime", rec.Classification.Tier)
	assert.Nil(t, rec.ClaimedAt)
}

func TestTransitions_RequireValidatingState(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Create(ctx, newPendingRecord("a", now)))

	// Record is pending, not validating.
	_, err := repo.MarkValidated(ctx, "a", models.Classification{Tier: "prime"}, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = repo.MarkInvalid(ctx, "a", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = repo.MarkFailed(ctx, "a", "boom", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = repo.RequeueRetry(ctx, "a", now, "boom", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = repo.MarkValidated(ctx, "missing", models.Classification{}, now)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Create(ctx, newPendingRecord("a", now)))
	_, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)
	_, err = repo.MarkInvalid(ctx, "a", now)
	require.NoError(t, err)

	_, err = repo.MarkValidated(ctx, "a", models.Classification{Tier: "prime"}, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRequeueRetry(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Create(ctx, newPendingRecord("a", now)))
	_, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)

	eligible := now.Add(4 * time.Second)
	rec, err := repo.RequeueRetry(ctx, "a", eligible, "timeout", now)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, rec.State)
	assert.Equal(t, 1, rec.RetryCount)
	require.NotNil(t, rec.LastError)
	assert.Equal(t, "timeout", *rec.LastError)
	assert.True(t, rec.EligibleAt.Equal(eligible))

	// Not claimable until the backoff elapses.
	_, err = repo.ClaimNext(ctx, now)
	assert.ErrorIs(t, err, ErrNoPendingRecords)

	claimed, err := repo.ClaimNext(ctx, eligible)
	require.NoError(t, err)
	assert.Equal(t, "a", claimed.ID)
}

func TestReapExpiredClaims(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	// One stale claim under the cap, one at the cap, one fresh claim.
	require.NoError(t, repo.Create(ctx, newPendingRecord("stale", now)))
	require.NoError(t, repo.Create(ctx, newPendingRecord("spent", now)))
	require.NoError(t, repo.Create(ctx, newPendingRecord("fresh", now)))

	_, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)
	_, err = repo.ClaimNext(ctx, now)
	require.NoError(t, err)

	// Exhaust the spent record's retries.
	repo.mu.Lock()
	repo.records["spent"].RetryCount = 3
	repo.mu.Unlock()

	later := now.Add(5 * time.Minute)
	_, err = repo.ClaimNext(ctx, later)
	require.NoError(t, err) // fresh

	cutoff := later.Add(-2 * time.Minute)
	reaped, err := repo.ReapExpiredClaims(ctx, cutoff, 3, later)
	require.NoError(t, err)
	require.Len(t, reaped, 2)

	stale, err := repo.GetByID(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, stale.State)
	assert.Equal(t, 1, stale.RetryCount)

	spent, err := repo.GetByID(ctx, "spent")
	require.NoError(t, err)
	assert.Equal(t, models.StateError, spent.State)
	assert.Equal(t, 3, spent.RetryCount)

	fresh, err := repo.GetByID(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, models.StateValidating, fresh.State, "fresh claim must survive the reap")
}

func TestFindBySessionDigest(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	old := newPendingRecord("old", now.Add(-time.Hour))
	old.PayloadDigest = "digest-x"
	require.NoError(t, repo.Create(ctx, old))

	recent := newPendingRecord("recent", now)
	recent.PayloadDigest = "digest-x"
	require.NoError(t, repo.Create(ctx, recent))

	got, err := repo.FindBySessionDigest(ctx, "visitor-1", "digest-x", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "recent", got.ID)

	_, err = repo.FindBySessionDigest(ctx, "visitor-1", "digest-x", now.Add(time.Minute))
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestList_FilterAndPaginate(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		rec := newPendingRecord(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Second))
		if i%2 == 1 {
			rec.SessionKey = "visitor-2"
		}
		require.NoError(t, repo.Create(ctx, rec))
	}

	// Newest first.
	all, total, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, all, 5)
	assert.Equal(t, "r4", all[0].ID)

	// Session filter.
	filtered, total, err := repo.List(ctx, ListFilter{SessionKey: "visitor-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, filtered, 2)

	// Pagination.
	page2, total, err := repo.List(ctx, ListFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page2, 2)
	assert.Equal(t, "r2", page2[0].ID)

	// Page past the end.
	empty, total, err := repo.List(ctx, ListFilter{Page: 4, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, empty)
}

func TestCountByState(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Create(ctx, newPendingRecord("a", now)))
	require.NoError(t, repo.Create(ctx, newPendingRecord("b", now)))
	_, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)

	counts, err := repo.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.StatePending])
	assert.Equal(t, 1, counts[models.StateValidating])
}

func TestCreate_StoresCopy(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	rec := newPendingRecord("a", now)
	require.NoError(t, repo.Create(ctx, rec))
	rec.SessionKey = "mutated"
	rec.Payload[0] = 'X'

	got, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "visitor-1", got.SessionKey)
	assert.Equal(t, []byte("payload-a"), got.Payload)
}

func TestClaimNext_ConcurrentClaimantsGetOneRecord(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, repo.Create(ctx, newPendingRecord("a", now)))

	const claimants = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	var claimed atomic.Int64
	errs := make(chan error, claimants)

	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := repo.ClaimNext(ctx, now.Add(time.Second))
			if err == nil {
				claimed.Add(1)
				return
			}
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	assert.Equal(t, int64(1), claimed.Load(), "exactly one claimant may win the record")
	for err := range errs {
		assert.ErrorIs(t, err, ErrNoPendingRecords)
	}

	rec, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.StateValidating, rec.State)
}
