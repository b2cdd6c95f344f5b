package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftline-systems/driftline/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL. Claims rely on
// FOR UPDATE SKIP LOCKED so concurrent workers never contend for the same
// record, and transitions are state-guarded UPDATEs so a stale claimant
// cannot rewrite a record the reaper already requeued.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to PostgreSQL and applies migrations.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(connString); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

const recordColumns = `
	id, session_key, identity_id, payload, payload_digest, device,
	state, tier, confidence, retry_count, last_error,
	created_at, updated_at, claimed_at, eligible_at
`

func scanRecord(row pgx.Row) (*models.Record, error) {
	var (
		rec        models.Record
		device     []byte
		tier       *string
		confidence *float64
	)
	err := row.Scan(
		&rec.ID, &rec.SessionKey, &rec.IdentityID, &rec.Payload, &rec.PayloadDigest, &device,
		&rec.State, &tier, &confidence, &rec.RetryCount, &rec.LastError,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.ClaimedAt, &rec.EligibleAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	if len(device) > 0 {
		if err := json.Unmarshal(device, &rec.Device); err != nil {
			return nil, fmt.Errorf("failed to decode device signature: %w", err)
		}
	}
	if tier != nil && confidence != nil {
		rec.Classification = &models.Classification{Tier: *tier, Confidence: *confidence}
	}
	return &rec, nil
}

func (r *PostgresRepository) Create(ctx context.Context, record *models.Record) error {
	device, err := json.Marshal(record.Device)
	if err != nil {
		return fmt.Errorf("failed to encode device signature: %w", err)
	}

	query := `
		INSERT INTO records (
			id, session_key, identity_id, payload, payload_digest, device,
			state, retry_count, created_at, updated_at, eligible_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query,
		record.ID, record.SessionKey, record.IdentityID, record.Payload,
		record.PayloadDigest, device, record.State, record.RetryCount,
		record.CreatedAt, record.UpdatedAt, record.EligibleAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = $1`
	return scanRecord(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*models.Record, int, error) {
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	where := ` WHERE ($1 = '' OR state = $1) AND ($2 = '' OR session_key = $2)`

	var total int
	countQuery := `SELECT COUNT(*) FROM records` + where
	if err := r.pool.QueryRow(ctx, countQuery, string(filter.State), filter.SessionKey).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	query := `SELECT ` + recordColumns + ` FROM records` + where + `
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, string(filter.State), filter.SessionKey, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func (r *PostgresRepository) FindBySessionDigest(ctx context.Context, sessionKey, digest string, since time.Time) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records
		WHERE session_key = $1 AND payload_digest = $2 AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1`
	return scanRecord(r.pool.QueryRow(ctx, query, sessionKey, digest, since))
}

func (r *PostgresRepository) ClaimNext(ctx context.Context, now time.Time) (*models.Record, error) {
	query := `
		UPDATE records SET state = 'validating', claimed_at = $1, updated_at = $1
		WHERE id = (
			SELECT id FROM records
			WHERE state = 'pending' AND eligible_at <= $1
			ORDER BY eligible_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + recordColumns

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, now))
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrNoPendingRecords
	}
	return rec, err
}

// completeClaim runs a validating-guarded UPDATE and distinguishes a missing
// record from an invalid transition when no row matched.
func (r *PostgresRepository) completeClaim(ctx context.Context, id, query string, args ...any) (*models.Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, ErrRecordNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	return rec, err
}

func (r *PostgresRepository) MarkValidated(ctx context.Context, id string, classification models.Classification, now time.Time) (*models.Record, error) {
	query := `
		UPDATE records
		SET state = 'validated', tier = $2, confidence = $3, last_error = NULL,
		    claimed_at = NULL, updated_at = $4
		WHERE id = $1 AND state = 'validating'
		RETURNING ` + recordColumns
	return r.completeClaim(ctx, id, query, id, classification.Tier, classification.Confidence, now)
}

func (r *PostgresRepository) MarkInvalid(ctx context.Context, id string, now time.Time) (*models.Record, error) {
	query := `
		UPDATE records
		SET state = 'invalid', last_error = NULL, claimed_at = NULL, updated_at = $2
		WHERE id = $1 AND state = 'validating'
		RETURNING ` + recordColumns
	return r.completeClaim(ctx, id, query, id, now)
}

func (r *PostgresRepository) RequeueRetry(ctx context.Context, id string, eligibleAt time.Time, lastError string, now time.Time) (*models.Record, error) {
	query := `
		UPDATE records
		SET state = 'pending', retry_count = retry_count + 1, eligible_at = $2,
		    last_error = $3, claimed_at = NULL, updated_at = $4
		WHERE id = $1 AND state = 'validating'
		RETURNING ` + recordColumns
	return r.completeClaim(ctx, id, query, id, eligibleAt, lastError, now)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id string, lastError string, now time.Time) (*models.Record, error) {
	query := `
		UPDATE records
		SET state = 'error', last_error = $2, claimed_at = NULL, updated_at = $3
		WHERE id = $1 AND state = 'validating'
		RETURNING ` + recordColumns
	return r.completeClaim(ctx, id, query, id, lastError, now)
}

func (r *PostgresRepository) ReapExpiredClaims(ctx context.Context, cutoff time.Time, retryCap int, now time.Time) ([]*models.Record, error) {
	query := `
		UPDATE records
		SET state       = CASE WHEN retry_count >= $2 THEN 'error' ELSE 'pending' END,
		    retry_count = CASE WHEN retry_count >= $2 THEN retry_count ELSE retry_count + 1 END,
		    last_error  = CASE WHEN retry_count >= $2
		                       THEN 'claim lease expired after retry cap'
		                       ELSE 'claim lease expired' END,
		    eligible_at = $3,
		    claimed_at  = NULL,
		    updated_at  = $3
		WHERE state = 'validating' AND claimed_at <= $1
		RETURNING ` + recordColumns

	rows, err := r.pool.Query(ctx, query, cutoff, retryCap, now)
	if err != nil {
		return nil, fmt.Errorf("failed to reap expired claims: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CountByState(ctx context.Context) (map[models.RecordState]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT state, COUNT(*) FROM records GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer rows.Close()

	out := make(map[models.RecordState]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		out[models.RecordState(state)] = count
	}
	return out, rows.Err()
}
