package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/processor"
	"github.com/quillhq/docpipe/internal/queue"
	"github.com/quillhq/docpipe/internal/store"
)

// ProcessHandler executes the process lane: column processor runs and
// free-standing prompt runs. It is the only writer of non-initial ledger
// states.
type ProcessHandler struct {
	projects   store.ProjectStore
	docs       store.DocumentStore
	cols       store.ColumnStore
	runs       store.RunStore
	promptRuns store.PromptRunStore
	registry   *processor.Registry
	generator  processor.TextGenerator
	logger     *slog.Logger
}

// NewProcessHandler creates the handler for the process lane.
func NewProcessHandler(
	projects store.ProjectStore,
	docs store.DocumentStore,
	cols store.ColumnStore,
	runs store.RunStore,
	promptRuns store.PromptRunStore,
	registry *processor.Registry,
	generator processor.TextGenerator,
	log *slog.Logger,
) *ProcessHandler {
	return &ProcessHandler{
		projects:   projects,
		docs:       docs,
		cols:       cols,
		runs:       runs,
		promptRuns: promptRuns,
		registry:   registry,
		generator:  generator,
		logger:     log.With(slog.String("component", "process_handler")),
	}
}

// Handle dispatches on the job union. Unknown kinds are an integrity
// problem and are dropped.
func (h *ProcessHandler) Handle(ctx context.Context, job queue.Job) error {
	switch j := job.(type) {
	case queue.ColumnProcessorJob:
		return h.handleColumnJob(ctx, j)
	case queue.PromptRunJob:
		return h.handlePromptRun(ctx, j)
	default:
		return fmt.Errorf("%w: unexpected job kind %q on process lane", ErrDropJob, job.Kind())
	}
}

// Exhausted records a terminal error on the run after the final failed
// attempt, so no run is left in-flight forever.
func (h *ProcessHandler) Exhausted(ctx context.Context, job queue.Job, cause error) {
	msg := fmt.Sprintf("retries exhausted: %v", cause)

	switch j := job.(type) {
	case queue.ColumnProcessorJob:
		h.finishRun(ctx, j.RunID, domain.RunStatusError, msg, nil)
	case queue.PromptRunJob:
		h.finishPromptRun(ctx, j.PromptRunID, domain.RunStatusError, "", msg)
	}
}

// handleColumnJob drives one processor run through the ledger: claim the
// run, execute the handler, persist the value, record the terminal state.
func (h *ProcessHandler) handleColumnJob(ctx context.Context, job queue.ColumnProcessorJob) error {
	log := h.logger.With(
		slog.String("run_id", job.RunID.String()),
		slog.String("document_id", job.DocumentID.String()),
		slog.String("column_id", job.ColumnID.String()))

	run, err := h.runs.GetByID(ctx, job.RunID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return fmt.Errorf("%w: run %s", ErrDropJob, job.RunID)
		}
		return fmt.Errorf("failed to load run: %w", err)
	}

	if run.Status.Terminal() {
		// Redundant delivery of a finished run; acknowledge and move on.
		log.Debug("skipping terminal run", "status", run.Status)
		return nil
	}

	// Claim the run. Losing the race to a concurrent delivery is fine as
	// long as the run ended up running or terminal.
	err = h.runs.Transition(ctx, job.RunID, domain.RunStatusQueued, domain.RunStatusRunning, "", nil)
	if err != nil && !errors.Is(err, store.ErrStaleTransition) {
		return fmt.Errorf("failed to claim run: %w", err)
	}
	if errors.Is(err, store.ErrStaleTransition) {
		cur, getErr := h.runs.GetByID(ctx, job.RunID)
		if getErr != nil {
			return fmt.Errorf("failed to re-read run after stale claim: %w", getErr)
		}
		if cur.Status.Terminal() {
			log.Debug("run finished by another delivery", "status", cur.Status)
			return nil
		}
		// Already running: a prior attempt failed transiently or its
		// lease expired. Continue; the terminal transition stays guarded.
	}

	doc, err := h.docs.GetByID(ctx, job.DocumentID)
	if err != nil {
		if store.IsNotFoundError(err) {
			h.finishRun(ctx, job.RunID, domain.RunStatusError, "document no longer exists", nil)
			return fmt.Errorf("%w: document %s", ErrDropJob, job.DocumentID)
		}
		return fmt.Errorf("failed to load document: %w", err)
	}

	col, err := h.cols.GetByID(ctx, job.ColumnID)
	if err != nil {
		if store.IsNotFoundError(err) {
			h.finishRun(ctx, job.RunID, domain.RunStatusError, "column no longer exists", nil)
			return fmt.Errorf("%w: column %s", ErrDropJob, job.ColumnID)
		}
		return fmt.Errorf("failed to load column: %w", err)
	}

	if !col.IsProcessor() {
		h.finishRun(ctx, job.RunID, domain.RunStatusError,
			fmt.Sprintf("column %q is not a processor column", col.Key), nil)
		return nil
	}

	project, err := h.projects.GetByID(ctx, job.ProjectID)
	if err != nil {
		if store.IsNotFoundError(err) {
			h.finishRun(ctx, job.RunID, domain.RunStatusError, "project no longer exists", nil)
			return fmt.Errorf("%w: project %s", ErrDropJob, job.ProjectID)
		}
		return fmt.Errorf("failed to load project: %w", err)
	}

	handler, err := h.registry.Get(col.ProcessorType)
	if err != nil {
		h.finishRun(ctx, job.RunID, domain.RunStatusError, err.Error(), nil)
		return nil
	}

	log.Info("executing processor", "processor_type", col.ProcessorType, "column_key", col.Key)

	res := handler.Handle(ctx, processor.Request{
		Project:  project,
		Document: doc,
		Column:   col,
	})

	if res.Failure != nil {
		if res.Failure.Retryable {
			// Leave the run in running; a redelivery resumes it and the
			// exhaustion path records the terminal error.
			return fmt.Errorf("processor failed: %w", res.Failure)
		}
		log.Info("processor rejected input", "error", res.Failure.Err)
		h.finishRun(ctx, job.RunID, domain.RunStatusError, res.Failure.Err.Error(), res.Metadata)
		return nil
	}

	if res.FilePath != "" {
		if err := h.docs.SetFilePath(ctx, doc.ID, res.FilePath); err != nil {
			return fmt.Errorf("failed to record source artifact path: %w", err)
		}
	}

	if err := h.docs.SetValue(ctx, doc.ID, col.Key, res.Value); err != nil {
		return fmt.Errorf("failed to persist processor value: %w", err)
	}

	h.finishRun(ctx, job.RunID, domain.RunStatusSuccess, "", res.Metadata)
	log.Info("processor run succeeded", "column_key", col.Key)
	return nil
}

// handlePromptRun executes a free-standing prompt through the generator,
// recording the result on the prompt run row.
func (h *ProcessHandler) handlePromptRun(ctx context.Context, job queue.PromptRunJob) error {
	log := h.logger.With(slog.String("prompt_run_id", job.PromptRunID.String()))

	run, err := h.promptRuns.GetByID(ctx, job.PromptRunID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return fmt.Errorf("%w: prompt run %s", ErrDropJob, job.PromptRunID)
		}
		return fmt.Errorf("failed to load prompt run: %w", err)
	}

	if run.Status.Terminal() {
		log.Debug("skipping terminal prompt run", "status", run.Status)
		return nil
	}

	err = h.promptRuns.Transition(ctx, run.ID, domain.RunStatusQueued, domain.RunStatusRunning, "", "")
	if err != nil && !errors.Is(err, store.ErrStaleTransition) {
		return fmt.Errorf("failed to claim prompt run: %w", err)
	}
	if errors.Is(err, store.ErrStaleTransition) {
		cur, getErr := h.promptRuns.GetByID(ctx, run.ID)
		if getErr != nil {
			return fmt.Errorf("failed to re-read prompt run after stale claim: %w", getErr)
		}
		if cur.Status.Terminal() {
			return nil
		}
	}

	result, err := h.generator.GenerateText(ctx, run.Model, run.Prompt)
	if err != nil {
		return fmt.Errorf("prompt generation failed: %w", err)
	}

	h.finishPromptRun(ctx, run.ID, domain.RunStatusSuccess, result, "")
	log.Info("prompt run succeeded")
	return nil
}

// finishRun writes a terminal status from running. A stale transition means
// another delivery already finished the run, which is not an error.
func (h *ProcessHandler) finishRun(ctx context.Context, runID uuid.UUID, to domain.RunStatus, errorMsg string, metadata map[string]any) {
	err := h.runs.Transition(ctx, runID, domain.RunStatusRunning, to, errorMsg, metadata)
	if err != nil && !errors.Is(err, store.ErrStaleTransition) {
		h.logger.Error("failed to finish run",
			"run_id", runID,
			"to", to,
			"error", err)
	}
}

func (h *ProcessHandler) finishPromptRun(ctx context.Context, runID uuid.UUID, to domain.RunStatus, result, errorMsg string) {
	err := h.promptRuns.Transition(ctx, runID, domain.RunStatusRunning, to, result, errorMsg)
	if err != nil && !errors.Is(err, store.ErrStaleTransition) {
		h.logger.Error("failed to finish prompt run",
			"prompt_run_id", runID,
			"to", to,
			"error", err)
	}
}
