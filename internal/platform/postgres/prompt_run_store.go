package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/platform/logger"
	"github.com/quillhq/docpipe/internal/store"
)

// PromptRunStore implements store.PromptRunStore using PostgreSQL.
type PromptRunStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPromptRunStore creates a new PostgreSQL implementation of store.PromptRunStore.
func NewPromptRunStore(db store.DBTX, log *slog.Logger) *PromptRunStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if log == nil {
		log = slog.Default()
	}

	return &PromptRunStore{
		db:     db,
		logger: log.With(slog.String("component", "prompt_run_store")),
	}
}

var _ store.PromptRunStore = (*PromptRunStore)(nil)

// Create implements store.PromptRunStore.Create.
func (s *PromptRunStore) Create(ctx context.Context, run *domain.PromptRun) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := run.Validate(); err != nil {
		log.Warn("prompt run validation failed during create",
			slog.String("error", err.Error()),
			slog.String("prompt_run_id", run.ID.String()))
		return err
	}

	query := `
		INSERT INTO prompt_runs (id, project_id, prompt, model, status, result, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '', '', $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.ProjectID,
		run.Prompt,
		run.Model,
		run.Status,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return MapError(err)
	}

	return nil
}

// GetByID implements store.PromptRunStore.GetByID.
func (s *PromptRunStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.PromptRun, error) {
	query := `
		SELECT id, project_id, prompt, model, status, result, error_message, created_at, updated_at
		FROM prompt_runs
		WHERE id = $1
	`

	var (
		run      domain.PromptRun
		result   sql.NullString
		errorMsg sql.NullString
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.ProjectID,
		&run.Prompt,
		&run.Model,
		&run.Status,
		&result,
		&errorMsg,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrPromptRunNotFound
		}
		return nil, MapError(err)
	}

	run.Result = result.String
	run.ErrorMessage = errorMsg.String

	return &run, nil
}

// Transition implements store.PromptRunStore.Transition with the same
// guarded-update semantics as the processor run ledger.
func (s *PromptRunStore) Transition(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.RunStatus,
	result, errorMsg string,
) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidRunTransition, from, to)
	}

	query := `
		UPDATE prompt_runs
		SET status = $3, result = $4, error_message = $5, updated_at = $6
		WHERE id = $1 AND status = $2
	`

	res, err := s.db.ExecContext(ctx, query, id, from, to, result, errorMsg, time.Now().UTC())
	if err != nil {
		return MapError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrStaleTransition
	}

	return nil
}
