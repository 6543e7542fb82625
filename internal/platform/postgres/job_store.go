package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/quillhq/docpipe/internal/store"
)

// JobStore implements store.JobStore using PostgreSQL. Leasing uses
// FOR UPDATE SKIP LOCKED so multiple worker processes can share a lane
// without double-claiming rows; lease expiry makes delivery at-least-once.
type JobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewJobStore creates a new PostgreSQL implementation of store.JobStore.
func NewJobStore(db store.DBTX, log *slog.Logger) *JobStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if log == nil {
		log = slog.Default()
	}

	return &JobStore{
		db:     db,
		logger: log.With(slog.String("component", "job_store")),
	}
}

var _ store.JobStore = (*JobStore)(nil)

// Enqueue implements store.JobStore.Enqueue.
func (s *JobStore) Enqueue(ctx context.Context, lane string, payload []byte, maxAttempts int) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC()

	query := `
		INSERT INTO jobs (id, lane, payload, status, attempts, max_attempts, available_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $6, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		id,
		lane,
		payload,
		store.JobStatusAvailable,
		maxAttempts,
		now,
	)
	if err != nil {
		return uuid.Nil, MapError(err)
	}

	return id, nil
}

// Lease implements store.JobStore.Lease. A single statement claims both
// available jobs whose backoff elapsed and leased jobs whose lease
// expired (the redelivery path of at-least-once semantics).
func (s *JobStore) Lease(
	ctx context.Context,
	lane string,
	limit int,
	leaseFor time.Duration,
) ([]*store.JobRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	leasedUntil := now.Add(leaseFor)

	query := `
		UPDATE jobs
		SET status = $1, leased_until = $2, updated_at = $3
		WHERE id IN (
			SELECT id FROM jobs
			WHERE lane = $4
			  AND (
				(status = $5 AND available_at <= $3)
				OR (status = $1 AND leased_until <= $3)
			  )
			ORDER BY available_at ASC
			LIMIT $6
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, lane, payload, status, attempts, max_attempts, available_at, leased_until, created_at, updated_at
	`

	rows, err := s.db.QueryContext(ctx, query,
		store.JobStatusLeased,
		leasedUntil,
		now,
		lane,
		store.JobStatusAvailable,
		limit,
	)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*store.JobRecord
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, MapError(err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return jobs, nil
}

// Complete implements store.JobStore.Complete.
func (s *JobStore) Complete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $2, leased_until = NULL, updated_at = $3
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, store.JobStatusDone, time.Now().UTC())
	if err != nil {
		return MapError(err)
	}

	return requireRowAffected(result, store.ErrJobNotFound)
}

// Fail implements store.JobStore.Fail. The attempt counter and the retry
// decision are evaluated in one statement so concurrent failure reports
// for the same job cannot both schedule a redelivery.
func (s *JobStore) Fail(ctx context.Context, id uuid.UUID, retryDelay time.Duration) (bool, error) {
	now := time.Now().UTC()

	query := `
		UPDATE jobs
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 < max_attempts THEN $2 ELSE $3 END,
		    available_at = CASE WHEN attempts + 1 < max_attempts THEN $4 ELSE available_at END,
		    leased_until = NULL,
		    updated_at = $5
		WHERE id = $1
		RETURNING status
	`

	var status store.JobStatus
	err := s.db.QueryRowContext(ctx, query,
		id,
		store.JobStatusAvailable,
		store.JobStatusDead,
		now.Add(retryDelay),
		now,
	).Scan(&status)
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return false, store.ErrJobNotFound
		}
		return false, MapError(err)
	}

	return status == store.JobStatusAvailable, nil
}

// Drop implements store.JobStore.Drop.
func (s *JobStore) Drop(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $2, leased_until = NULL, updated_at = $3
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, store.JobStatusDead, time.Now().UTC())
	if err != nil {
		return MapError(err)
	}

	return requireRowAffected(result, store.ErrJobNotFound)
}

func scanJob(rows *sql.Rows) (*store.JobRecord, error) {
	var (
		job         store.JobRecord
		leasedUntil sql.NullTime
	)

	err := rows.Scan(
		&job.ID,
		&job.Lane,
		&job.Payload,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.AvailableAt,
		&leasedUntil,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if leasedUntil.Valid {
		t := leasedUntil.Time
		job.LeasedUntil = &t
	}

	return &job, nil
}
