package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/queue"
	"github.com/quillhq/docpipe/internal/store"
)

// bulkFanOutWorkers bounds concurrent run creation inside one bulk job.
// The bulk lane itself is serialized, so this is the only parallelism.
const bulkFanOutWorkers = 8

// BulkHandler executes the bulk lane: fanning one (column, document set)
// request out into individual processor runs and queue jobs. Creation is
// idempotent per pair, so a retried bulk job resumes where it left off.
type BulkHandler struct {
	docs   store.DocumentStore
	cols   store.ColumnStore
	runs   store.RunStore
	client *queue.Client
	logger *slog.Logger
}

// NewBulkHandler creates the handler for the bulk lane.
func NewBulkHandler(
	docs store.DocumentStore,
	cols store.ColumnStore,
	runs store.RunStore,
	client *queue.Client,
	log *slog.Logger,
) *BulkHandler {
	return &BulkHandler{
		docs:   docs,
		cols:   cols,
		runs:   runs,
		client: client,
		logger: log.With(slog.String("component", "bulk_handler")),
	}
}

// Handle fans the bulk job out. Documents already holding an in-flight run
// for the column are skipped rather than duplicated.
func (h *BulkHandler) Handle(ctx context.Context, job queue.Job) error {
	bulk, ok := job.(queue.BulkProcessJob)
	if !ok {
		return fmt.Errorf("%w: unexpected job kind %q on bulk lane", ErrDropJob, job.Kind())
	}

	log := h.logger.With(
		slog.String("project_id", bulk.ProjectID.String()),
		slog.String("column_id", bulk.ColumnID.String()))

	col, err := h.cols.GetByID(ctx, bulk.ColumnID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return fmt.Errorf("%w: column %s", ErrDropJob, bulk.ColumnID)
		}
		return fmt.Errorf("failed to load column: %w", err)
	}

	if !col.IsProcessor() {
		return fmt.Errorf("%w: column %q has no processor", ErrDropJob, col.Key)
	}

	targets, err := h.resolveTargets(ctx, bulk, log)
	if err != nil {
		return err
	}

	var enqueued, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkFanOutWorkers)

	for _, doc := range targets {
		g.Go(func() error {
			created, err := h.startRun(gctx, bulk.ProjectID, doc.ID, bulk.ColumnID)
			if err != nil {
				return err
			}
			if created {
				enqueued.Add(1)
			} else {
				skipped.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("bulk fan-out failed: %w", err)
	}

	log.Info("bulk fan-out complete",
		"documents", len(targets),
		"enqueued", enqueued.Load(),
		"skipped_in_flight", skipped.Load())
	return nil
}

// Exhausted logs only; bulk jobs have no ledger row of their own, and the
// per-document runs they did create proceed independently.
func (h *BulkHandler) Exhausted(_ context.Context, job queue.Job, cause error) {
	if bulk, ok := job.(queue.BulkProcessJob); ok {
		h.logger.Error("bulk job abandoned after retries",
			"project_id", bulk.ProjectID,
			"column_id", bulk.ColumnID,
			"error", cause)
	}
}

// resolveTargets loads the documents the bulk job names, or every document
// in the project when none are named. Named documents that vanished or
// belong to another project are skipped with a warning.
func (h *BulkHandler) resolveTargets(ctx context.Context, bulk queue.BulkProcessJob, log *slog.Logger) ([]*domain.Document, error) {
	if len(bulk.DocumentIDs) == 0 {
		docs, err := h.docs.ListByProject(ctx, bulk.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to list project documents: %w", err)
		}
		return docs, nil
	}

	targets := make([]*domain.Document, 0, len(bulk.DocumentIDs))
	for _, id := range bulk.DocumentIDs {
		doc, err := h.docs.GetByID(ctx, id)
		if err != nil {
			if store.IsNotFoundError(err) {
				log.Warn("skipping missing document", "document_id", id)
				continue
			}
			return nil, fmt.Errorf("failed to load document %s: %w", id, err)
		}
		if doc.ProjectID != bulk.ProjectID {
			log.Warn("skipping document from another project", "document_id", id)
			continue
		}
		targets = append(targets, doc)
	}
	return targets, nil
}

// startRun creates a queued run for the pair and enqueues its job. An
// existing in-flight run means the pair is already covered.
func (h *BulkHandler) startRun(ctx context.Context, projectID, documentID, columnID uuid.UUID) (bool, error) {
	run, err := domain.NewProcessorRun(projectID, documentID, columnID)
	if err != nil {
		return false, fmt.Errorf("failed to build run: %w", err)
	}

	created, existing, err := h.runs.CreateIfAbsent(ctx, run)
	if err != nil {
		return false, fmt.Errorf("failed to create run: %w", err)
	}
	if !created {
		h.logger.Debug("run already in flight",
			"document_id", documentID,
			"column_id", columnID,
			"existing_run_id", existing.ID)
		return false, nil
	}

	if _, err := h.client.EnqueueColumnProcessorJob(ctx, projectID, documentID, columnID, run.ID); err != nil {
		return false, fmt.Errorf("failed to enqueue processor job: %w", err)
	}
	return true, nil
}
