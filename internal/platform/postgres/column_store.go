package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/platform/logger"
	"github.com/quillhq/docpipe/internal/store"
)

// columnsProjectKeyConstraint is the unique constraint on (project_id, key).
// The idempotent provisioner relies on conflicts against it to detect a
// concurrent winner.
const columnsProjectKeyConstraint = "columns_project_id_key_key"

// ColumnStore implements store.ColumnStore using PostgreSQL. The processor
// config variant is stored as JSONB alongside the processor type tag.
type ColumnStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewColumnStore creates a new PostgreSQL implementation of store.ColumnStore.
func NewColumnStore(db store.DBTX, log *slog.Logger) *ColumnStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if log == nil {
		log = slog.Default()
	}

	return &ColumnStore{
		db:     db,
		logger: log.With(slog.String("component", "column_store")),
	}
}

var _ store.ColumnStore = (*ColumnStore)(nil)

// Create implements store.ColumnStore.Create. Validation happens here so a
// malformed processor config can never reach job execution.
func (s *ColumnStore) Create(ctx context.Context, col *domain.Column) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := col.Validate(); err != nil {
		log.Warn("column validation failed during create",
			slog.String("error", err.Error()),
			slog.String("column_id", col.ID.String()))
		return err
	}

	var config []byte
	if col.Config != nil {
		var err error
		config, err = json.Marshal(col.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal column config: %w", err)
		}
	}

	query := `
		INSERT INTO columns (id, project_id, key, name, value_type, mode, processor_type, config, hidden, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		col.ID,
		col.ProjectID,
		col.Key,
		col.Name,
		col.ValueType,
		col.Mode,
		nullString(string(col.ProcessorType)),
		config,
		col.Hidden,
		col.Position,
		col.CreatedAt,
		col.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err, columnsProjectKeyConstraint) {
			return store.ErrColumnKeyExists
		}
		return MapError(err)
	}

	return nil
}

// GetByID implements store.ColumnStore.GetByID.
func (s *ColumnStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Column, error) {
	query := selectColumns + ` WHERE id = $1`

	col, err := scanColumn(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrColumnNotFound
		}
		return nil, MapError(err)
	}

	return col, nil
}

// GetByKey implements store.ColumnStore.GetByKey.
func (s *ColumnStore) GetByKey(ctx context.Context, projectID uuid.UUID, key string) (*domain.Column, error) {
	query := selectColumns + ` WHERE project_id = $1 AND key = $2`

	col, err := scanColumn(s.db.QueryRowContext(ctx, query, projectID, key))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrColumnNotFound
		}
		return nil, MapError(err)
	}

	return col, nil
}

// ListByProject implements store.ColumnStore.ListByProject.
func (s *ColumnStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Column, error) {
	query := selectColumns + ` WHERE project_id = $1 ORDER BY position ASC`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var cols []*domain.Column
	for rows.Next() {
		col, err := scanColumn(rows)
		if err != nil {
			return nil, MapError(err)
		}
		cols = append(cols, col)
	}

	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return cols, nil
}

// NextPosition implements store.ColumnStore.NextPosition.
func (s *ColumnStore) NextPosition(ctx context.Context, projectID uuid.UUID) (int, error) {
	query := `
		SELECT COALESCE(MAX(position), -1) + 1
		FROM columns
		WHERE project_id = $1
	`

	var position int
	if err := s.db.QueryRowContext(ctx, query, projectID).Scan(&position); err != nil {
		return 0, MapError(err)
	}

	return position, nil
}

const selectColumns = `
	SELECT id, project_id, key, name, value_type, mode, processor_type, config, hidden, position, created_at, updated_at
	FROM columns`

func scanColumn(row scanner) (*domain.Column, error) {
	var (
		col           domain.Column
		processorType sql.NullString
		config        []byte
	)

	err := row.Scan(
		&col.ID,
		&col.ProjectID,
		&col.Key,
		&col.Name,
		&col.ValueType,
		&col.Mode,
		&processorType,
		&config,
		&col.Hidden,
		&col.Position,
		&col.CreatedAt,
		&col.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	col.ProcessorType = domain.ProcessorType(processorType.String)

	if len(config) > 0 {
		col.Config = &domain.ProcessorConfig{}
		if err := json.Unmarshal(config, col.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal column config: %w", err)
		}
	}

	return &col, nil
}
