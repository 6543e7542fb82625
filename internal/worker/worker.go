// Package worker hosts the long-lived lane workers that lease jobs from
// the durable queue, dispatch them to their handlers, and own every write
// to the run ledger. The worker is the single chokepoint deciding
// retry-versus-terminal for handler failures.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/quillhq/docpipe/internal/queue"
	"github.com/quillhq/docpipe/internal/store"
)

// ErrDropJob signals an integrity problem: the job references rows that no
// longer exist. The worker marks the job dead without retrying and without
// touching the ledger, since there is nothing left to update.
var ErrDropJob = errors.New("job references missing rows")

// Handler processes decoded jobs for one lane.
type Handler interface {
	// Handle executes the job. A nil return acknowledges it; ErrDropJob
	// kills it; any other error counts a failed attempt against the
	// lane's retry policy.
	Handle(ctx context.Context, job queue.Job) error

	// Exhausted is called after the final failed attempt so terminal
	// state can be recorded on whatever the job referenced.
	Exhausted(ctx context.Context, job queue.Job, cause error)
}

// Worker leases jobs from one lane and runs them through its handler with
// the lane's concurrency cap.
type Worker struct {
	client       *queue.Client
	lane         string
	handler      Handler
	pollInterval time.Duration
	logger       *slog.Logger
	wg           sync.WaitGroup
}

// New creates a worker for the given lane.
func New(client *queue.Client, lane string, handler Handler, pollInterval time.Duration, log *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &Worker{
		client:       client,
		lane:         lane,
		handler:      handler,
		pollInterval: pollInterval,
		logger:       log.With(slog.String("component", "worker"), slog.String("lane", lane)),
	}
}

// Run leases and processes jobs until the context is cancelled, then waits
// for in-flight deliveries to settle. Handlers see the cancellation and may
// abort, but the resulting acknowledgements still reach the queue: process
// detaches them from the cancelled context, so shutdown never strands a
// leased job until its lease expires.
func (w *Worker) Run(ctx context.Context) error {
	policy := w.client.Policy(w.lane)

	// Buffered channel as a concurrency semaphore; slots are returned
	// when a job finishes.
	slots := make(chan struct{}, policy.Concurrency)

	w.logger.Info("worker started",
		"concurrency", policy.Concurrency,
		"poll_interval", w.pollInterval.String())

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			w.wg.Wait()
			return nil
		case <-ticker.C:
		}

		free := cap(slots) - len(slots)
		if free == 0 {
			continue
		}

		jobs, err := w.client.Lease(ctx, w.lane, free)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("failed to lease jobs", "error", err)
			continue
		}

		for _, rec := range jobs {
			slots <- struct{}{}
			w.wg.Add(1)
			go func(rec *store.JobRecord) {
				defer w.wg.Done()
				defer func() { <-slots }()
				w.process(ctx, rec)
			}(rec)
		}
	}
}

// process runs a single leased job to an acknowledgement: complete, dead,
// or rescheduled for redelivery. Acknowledgements and exhaustion writes run
// on a context detached from cancellation so a shutdown mid-job still
// records the outcome instead of leaving the lease to expire.
func (w *Worker) process(ctx context.Context, rec *store.JobRecord) {
	ackCtx := context.WithoutCancel(ctx)

	log := w.logger.With(
		slog.String("job_id", rec.ID.String()),
		slog.Int("attempt", rec.Attempts+1))

	job, err := queue.Unmarshal(rec.Payload)
	if err != nil {
		log.Error("dropping undecodable job", "error", err)
		if dropErr := w.client.Drop(ackCtx, rec.ID); dropErr != nil {
			log.Error("failed to drop job", "error", dropErr)
		}
		return
	}

	log = log.With(slog.String("kind", string(job.Kind())))
	log.Debug("processing job")

	err = w.handler.Handle(ctx, job)
	switch {
	case err == nil:
		if ackErr := w.client.Complete(ackCtx, rec.ID); ackErr != nil {
			log.Error("failed to acknowledge job", "error", ackErr)
		}

	case errors.Is(err, ErrDropJob):
		log.Warn("dropping job with missing references", "error", err)
		if dropErr := w.client.Drop(ackCtx, rec.ID); dropErr != nil {
			log.Error("failed to drop job", "error", dropErr)
		}

	default:
		log.Warn("job attempt failed", "error", err)
		retryScheduled, failErr := w.client.Fail(ackCtx, w.lane, rec.ID)
		if failErr != nil {
			log.Error("failed to record job failure", "error", failErr)
			return
		}
		if !retryScheduled {
			log.Error("job retries exhausted", "error", err)
			w.handler.Exhausted(ackCtx, job, err)
		}
	}
}
