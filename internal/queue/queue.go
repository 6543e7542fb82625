// Package queue provides the durable job queue: a closed union of job
// payloads, named lanes with fixed delivery policy, and a client wrapping
// the storage-backed queue with the enqueue API used by services and
// workers. The client is constructed once at process start and passed
// explicitly to every call site.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/quillhq/docpipe/internal/config"
	"github.com/quillhq/docpipe/internal/store"
)

// Lane names. Lanes are a fixed partition of the queue: the unified
// processor-job lane and the serialized bulk-orchestration lane.
const (
	LaneProcess = "process"
	LaneBulk    = "bulk"
)

// LanePolicy fixes delivery behavior per lane. Policy is never set per job.
type LanePolicy struct {
	// Concurrency caps simultaneous leases held by this lane's worker.
	Concurrency int

	// MaxRetries is the number of redeliveries after the first attempt.
	MaxRetries int

	// RetryDelay is the backoff before a failed job becomes leasable again.
	RetryDelay time.Duration

	// Expiry bounds a lease; an unacknowledged job past it is redelivered.
	Expiry time.Duration
}

// Client is the process-wide handle on the durable queue. It owns lane
// policy and payload encoding; storage mechanics live in the JobStore.
type Client struct {
	jobs   store.JobStore
	lanes  map[string]LanePolicy
	logger *slog.Logger
}

// NewClient creates the queue client with lane policies derived from the
// queue configuration.
func NewClient(jobs store.JobStore, cfg config.QueueConfig, logger *slog.Logger) *Client {
	return &Client{
		jobs: jobs,
		lanes: map[string]LanePolicy{
			LaneProcess: {
				Concurrency: cfg.ProcessConcurrency,
				MaxRetries:  cfg.ProcessMaxRetries,
				RetryDelay:  cfg.ProcessRetryDelay,
				Expiry:      cfg.JobExpiry,
			},
			LaneBulk: {
				// Serialized: the bulk orchestrator itself fans out many
				// jobs, so only one may run at a time.
				Concurrency: 1,
				MaxRetries:  cfg.BulkMaxRetries,
				RetryDelay:  cfg.BulkRetryDelay,
				Expiry:      cfg.JobExpiry,
			},
		},
		logger: logger.With(slog.String("component", "queue")),
	}
}

// Policy returns the delivery policy for a lane.
func (c *Client) Policy(lane string) LanePolicy {
	return c.lanes[lane]
}

// EnqueueColumnProcessorJob enqueues one processor execution on the process
// lane. The referenced run must already exist in the queued state.
func (c *Client) EnqueueColumnProcessorJob(
	ctx context.Context,
	projectID, documentID, columnID, runID uuid.UUID,
) (uuid.UUID, error) {
	return c.enqueue(ctx, LaneProcess, ColumnProcessorJob{
		ProjectID:  projectID,
		DocumentID: documentID,
		ColumnID:   columnID,
		RunID:      runID,
	})
}

// EnqueuePromptRunJob enqueues a prompt run execution on the process lane.
func (c *Client) EnqueuePromptRunJob(ctx context.Context, promptRunID uuid.UUID) (uuid.UUID, error) {
	return c.enqueue(ctx, LaneProcess, PromptRunJob{PromptRunID: promptRunID})
}

// EnqueueBulkProcessJob enqueues a bulk fan-out on the bulk lane.
// documentIDs may be nil to target every document in the project.
func (c *Client) EnqueueBulkProcessJob(
	ctx context.Context,
	projectID, columnID uuid.UUID,
	documentIDs []uuid.UUID,
) (uuid.UUID, error) {
	return c.enqueue(ctx, LaneBulk, BulkProcessJob{
		ProjectID:   projectID,
		ColumnID:    columnID,
		DocumentIDs: documentIDs,
	})
}

func (c *Client) enqueue(ctx context.Context, lane string, job Job) (uuid.UUID, error) {
	payload, err := Marshal(job)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	policy := c.lanes[lane]

	id, err := c.jobs.Enqueue(ctx, lane, payload, policy.MaxRetries+1)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	c.logger.Debug("job enqueued",
		"job_id", id,
		"lane", lane,
		"kind", job.Kind())

	return id, nil
}

// Lease claims up to limit deliverable jobs from the lane, holding each
// lease for the lane's expiry.
func (c *Client) Lease(ctx context.Context, lane string, limit int) ([]*store.JobRecord, error) {
	policy := c.lanes[lane]
	return c.jobs.Lease(ctx, lane, limit, policy.Expiry)
}

// Complete acknowledges a leased job.
func (c *Client) Complete(ctx context.Context, id uuid.UUID) error {
	return c.jobs.Complete(ctx, id)
}

// Fail records a failed attempt using the lane's retry delay. The returned
// flag reports whether a redelivery was scheduled.
func (c *Client) Fail(ctx context.Context, lane string, id uuid.UUID) (bool, error) {
	policy := c.lanes[lane]
	return c.jobs.Fail(ctx, id, policy.RetryDelay)
}

// Drop marks a job dead without retry. Used when the job references rows
// that no longer exist.
func (c *Client) Drop(ctx context.Context, id uuid.UUID) error {
	return c.jobs.Drop(ctx, id)
}
