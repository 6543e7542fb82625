package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the delivery state of a queued job.
type JobStatus string

// Possible job status values
const (
	JobStatusAvailable JobStatus = "available"
	JobStatusLeased    JobStatus = "leased"
	JobStatusDone      JobStatus = "done"
	JobStatusDead      JobStatus = "dead"
)

// JobRecord is one durable queue row. Payload is an opaque serialized job;
// the queue package owns its encoding.
type JobRecord struct {
	ID          uuid.UUID
	Lane        string
	Payload     []byte
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	AvailableAt time.Time
	LeasedUntil *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// JobStore defines the durable queue's storage operations. Delivery is
// at-least-once: a leased job whose lease expires becomes leasable again,
// so handlers must tolerate replays.
type JobStore interface {
	// Enqueue inserts a new available job and returns its ID.
	Enqueue(ctx context.Context, lane string, payload []byte, maxAttempts int) (uuid.UUID, error)

	// Lease atomically claims up to limit deliverable jobs in the lane:
	// available jobs whose backoff has elapsed, plus leased jobs whose
	// lease has expired. Claimed jobs are held until now+leaseFor.
	Lease(ctx context.Context, lane string, limit int, leaseFor time.Duration) ([]*JobRecord, error)

	// Complete marks a leased job done.
	Complete(ctx context.Context, id uuid.UUID) error

	// Fail records a failed attempt. If attempts remain the job is
	// rescheduled after retryDelay and retryScheduled is true; otherwise
	// the job is marked dead.
	Fail(ctx context.Context, id uuid.UUID, retryDelay time.Duration) (retryScheduled bool, err error)

	// Drop marks a job dead without counting an attempt. Used for jobs
	// whose referenced rows no longer exist.
	Drop(ctx context.Context, id uuid.UUID) error
}
