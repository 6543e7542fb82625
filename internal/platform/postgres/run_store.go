package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/platform/logger"
	"github.com/quillhq/docpipe/internal/store"
)

// runsInFlightConstraint is the partial unique index guaranteeing at most
// one queued-or-running run per (document, column) pair. CreateIfAbsent
// turns conflicts against it into a lookup of the concurrent winner.
const runsInFlightConstraint = "processor_runs_in_flight_idx"

// RunStore implements store.RunStore using PostgreSQL.
type RunStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewRunStore creates a new PostgreSQL implementation of store.RunStore.
func NewRunStore(db store.DBTX, log *slog.Logger) *RunStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if log == nil {
		log = slog.Default()
	}

	return &RunStore{
		db:     db,
		logger: log.With(slog.String("component", "run_store")),
	}
}

var _ store.RunStore = (*RunStore)(nil)

// CreateIfAbsent implements store.RunStore.CreateIfAbsent.
func (s *RunStore) CreateIfAbsent(
	ctx context.Context,
	run *domain.ProcessorRun,
) (bool, *domain.ProcessorRun, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := run.Validate(); err != nil {
		log.Warn("run validation failed during create",
			slog.String("error", err.Error()),
			slog.String("run_id", run.ID.String()))
		return false, nil, err
	}

	query := `
		INSERT INTO processor_runs (id, project_id, document_id, column_id, status, error_message, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '', '{}', $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.ProjectID,
		run.DocumentID,
		run.ColumnID,
		run.Status,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err == nil {
		return true, run, nil
	}

	if !IsUniqueViolation(err, runsInFlightConstraint) {
		return false, nil, MapError(err)
	}

	existing, err := s.getInFlight(ctx, run.DocumentID, run.ColumnID)
	if err != nil {
		// The winner finished between our insert and the re-read. Retrying
		// is the caller's call; report the race as a duplicate.
		if store.IsNotFoundError(err) {
			return false, nil, store.ErrRunInFlight
		}
		return false, nil, err
	}

	log.Debug("in-flight run already exists, reusing it",
		slog.String("document_id", run.DocumentID.String()),
		slog.String("column_id", run.ColumnID.String()),
		slog.String("existing_run_id", existing.ID.String()))

	return false, existing, nil
}

// GetByID implements store.RunStore.GetByID.
func (s *RunStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ProcessorRun, error) {
	query := selectRuns + ` WHERE id = $1`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrRunNotFound
		}
		return nil, MapError(err)
	}

	return run, nil
}

// Transition implements store.RunStore.Transition. The expected-status
// guard is evaluated inside the UPDATE so concurrent deliveries of the
// same job cannot both advance the run, and no writer can ever leave a
// terminal state.
func (s *RunStore) Transition(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.RunStatus,
	errorMsg string,
	metadata map[string]any,
) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidRunTransition, from, to)
	}

	encoded := []byte("{}")
	if len(metadata) > 0 {
		var err error
		encoded, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal run metadata: %w", err)
		}
	}

	query := `
		UPDATE processor_runs
		SET status = $3, error_message = $4, metadata = metadata || $5::jsonb, updated_at = $6
		WHERE id = $1 AND status = $2
	`

	result, err := s.db.ExecContext(ctx, query, id, from, to, errorMsg, encoded, time.Now().UTC())
	if err != nil {
		return MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrStaleTransition
	}

	return nil
}

// ListByDocument implements store.RunStore.ListByDocument.
func (s *RunStore) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*domain.ProcessorRun, error) {
	query := selectRuns + ` WHERE document_id = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, documentID)
}

// ListQueuedOlderThan implements store.RunStore.ListQueuedOlderThan.
func (s *RunStore) ListQueuedOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.ProcessorRun, error) {
	query := selectRuns + ` WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC`
	return s.list(ctx, query, domain.RunStatusQueued, cutoff)
}

func (s *RunStore) getInFlight(ctx context.Context, documentID, columnID uuid.UUID) (*domain.ProcessorRun, error) {
	query := selectRuns + `
		WHERE document_id = $1 AND column_id = $2 AND status IN ($3, $4)`

	run, err := scanRun(s.db.QueryRowContext(ctx, query,
		documentID, columnID, domain.RunStatusQueued, domain.RunStatusRunning))
	if err != nil {
		return nil, MapError(err)
	}

	return run, nil
}

func (s *RunStore) list(ctx context.Context, query string, args ...any) ([]*domain.ProcessorRun, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*domain.ProcessorRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, MapError(err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return runs, nil
}

const selectRuns = `
	SELECT id, project_id, document_id, column_id, status, error_message, metadata, created_at, updated_at
	FROM processor_runs`

func scanRun(row scanner) (*domain.ProcessorRun, error) {
	var (
		run      domain.ProcessorRun
		errorMsg sql.NullString
		metadata []byte
	)

	err := row.Scan(
		&run.ID,
		&run.ProjectID,
		&run.DocumentID,
		&run.ColumnID,
		&run.Status,
		&errorMsg,
		&metadata,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.ErrorMessage = errorMsg.String

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &run.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run metadata: %w", err)
		}
	}

	return &run, nil
}
