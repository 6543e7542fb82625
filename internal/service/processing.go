// Package service holds the orchestration layer between the HTTP API and
// the pipeline's collaborators: triggering runs, bulk fan-out, prompt
// runs, lazy column provisioning, and document ingestion side effects.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/queue"
	"github.com/quillhq/docpipe/internal/store"
)

// ErrNotProcessorColumn rejects triggers aimed at manual columns.
var ErrNotProcessorColumn = fmt.Errorf("column has no processor")

// ProcessingService exposes the trigger surface of the pipeline. All of its
// operations are short synchronous writes; execution happens in the workers.
type ProcessingService struct {
	projects   store.ProjectStore
	docs       store.DocumentStore
	cols       store.ColumnStore
	runs       store.RunStore
	promptRuns store.PromptRunStore
	client     *queue.Client
	stuckAge   time.Duration
	logger     *slog.Logger
}

// NewProcessingService creates the service. stuckAge is the minimum age a
// queued run must reach before the maintenance requeue picks it up.
func NewProcessingService(
	projects store.ProjectStore,
	docs store.DocumentStore,
	cols store.ColumnStore,
	runs store.RunStore,
	promptRuns store.PromptRunStore,
	client *queue.Client,
	stuckAge time.Duration,
	log *slog.Logger,
) *ProcessingService {
	return &ProcessingService{
		projects:   projects,
		docs:       docs,
		cols:       cols,
		runs:       runs,
		promptRuns: promptRuns,
		client:     client,
		stuckAge:   stuckAge,
		logger:     log.With(slog.String("component", "processing_service")),
	}
}

// TriggerRun starts one processor run for a (document, column) pair. It is
// idempotent: when a run for the pair is already queued or running, that
// run is returned with created=false and no new job is enqueued.
func (s *ProcessingService) TriggerRun(ctx context.Context, projectID, documentID, columnID uuid.UUID) (*domain.ProcessorRun, bool, error) {
	col, err := s.cols.GetByID(ctx, columnID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load column: %w", err)
	}
	if col.ProjectID != projectID {
		return nil, false, store.ErrColumnNotFound
	}
	if !col.IsProcessor() {
		return nil, false, fmt.Errorf("%w: %q", ErrNotProcessorColumn, col.Key)
	}

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load document: %w", err)
	}
	if doc.ProjectID != projectID {
		return nil, false, store.ErrDocumentNotFound
	}

	run, err := domain.NewProcessorRun(projectID, documentID, columnID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build run: %w", err)
	}

	created, existing, err := s.runs.CreateIfAbsent(ctx, run)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create run: %w", err)
	}
	if !created {
		s.logger.Debug("run already in flight",
			"document_id", documentID,
			"column_id", columnID,
			"run_id", existing.ID)
		return existing, false, nil
	}

	if _, err := s.client.EnqueueColumnProcessorJob(ctx, projectID, documentID, columnID, run.ID); err != nil {
		return nil, false, fmt.Errorf("failed to enqueue processor job: %w", err)
	}

	s.logger.Info("run triggered",
		"run_id", run.ID,
		"document_id", documentID,
		"column_key", col.Key)
	return run, true, nil
}

// TriggerBulk enqueues a bulk fan-out for the column. documentIDs may be
// empty to target every document in the project. The fan-out itself runs on
// the bulk lane; this returns as soon as the job is durable.
func (s *ProcessingService) TriggerBulk(ctx context.Context, projectID, columnID uuid.UUID, documentIDs []uuid.UUID) (uuid.UUID, error) {
	col, err := s.cols.GetByID(ctx, columnID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to load column: %w", err)
	}
	if col.ProjectID != projectID {
		return uuid.Nil, store.ErrColumnNotFound
	}
	if !col.IsProcessor() {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrNotProcessorColumn, col.Key)
	}

	jobID, err := s.client.EnqueueBulkProcessJob(ctx, projectID, columnID, documentIDs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue bulk job: %w", err)
	}

	s.logger.Info("bulk process triggered",
		"job_id", jobID,
		"column_key", col.Key,
		"explicit_documents", len(documentIDs))
	return jobID, nil
}

// RunPrompt creates a prompt run in the queued state and enqueues its job.
func (s *ProcessingService) RunPrompt(ctx context.Context, projectID uuid.UUID, prompt, model string) (*domain.PromptRun, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	run, err := domain.NewPromptRun(projectID, prompt, model)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt run: %w", err)
	}

	if err := s.promptRuns.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create prompt run: %w", err)
	}

	if _, err := s.client.EnqueuePromptRunJob(ctx, run.ID); err != nil {
		return nil, fmt.Errorf("failed to enqueue prompt run job: %w", err)
	}

	s.logger.Info("prompt run triggered", "prompt_run_id", run.ID)
	return run, nil
}

// RunHistory returns a document's processor runs, newest first.
func (s *ProcessingService) RunHistory(ctx context.Context, documentID uuid.UUID) ([]*domain.ProcessorRun, error) {
	if _, err := s.docs.GetByID(ctx, documentID); err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return s.runs.ListByDocument(ctx, documentID)
}

// RequeueStuck re-enqueues jobs for runs stuck in the queued state longer
// than the configured age, oldest first. Runs whose enqueue once succeeded
// but whose job vanished are the target; re-enqueueing a run whose job
// still exists is harmless because execution replays are tolerated and the
// running and terminal states are never touched. Returns the number of
// runs re-enqueued.
func (s *ProcessingService) RequeueStuck(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.stuckAge)

	stuck, err := s.runs.ListQueuedOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to scan stuck runs: %w", err)
	}

	requeued := 0
	for _, run := range stuck {
		if _, err := s.client.EnqueueColumnProcessorJob(ctx, run.ProjectID, run.DocumentID, run.ColumnID, run.ID); err != nil {
			return requeued, fmt.Errorf("failed to re-enqueue run %s: %w", run.ID, err)
		}
		requeued++
	}

	if requeued > 0 {
		s.logger.Info("requeued stuck runs", "count", requeued, "cutoff", cutoff)
	}
	return requeued, nil
}
