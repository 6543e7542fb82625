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

// DocumentStore implements store.DocumentStore using PostgreSQL.
// The values map is stored as JSONB keyed by column key.
type DocumentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewDocumentStore creates a new PostgreSQL implementation of store.DocumentStore.
func NewDocumentStore(db store.DBTX, log *slog.Logger) *DocumentStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if log == nil {
		log = slog.Default()
	}

	return &DocumentStore{
		db:     db,
		logger: log.With(slog.String("component", "document_store")),
	}
}

var _ store.DocumentStore = (*DocumentStore)(nil)

// Create implements store.DocumentStore.Create.
func (s *DocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := doc.Validate(); err != nil {
		log.Warn("document validation failed during create",
			slog.String("error", err.Error()),
			slog.String("document_id", doc.ID.String()))
		return err
	}

	values, err := json.Marshal(doc.Values)
	if err != nil {
		return fmt.Errorf("failed to marshal document values: %w", err)
	}

	query := `
		INSERT INTO documents (id, project_id, name, source, source_url, file_path, values, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		doc.ID,
		doc.ProjectID,
		doc.Name,
		doc.Source,
		nullString(doc.SourceURL),
		nullString(doc.FilePath),
		values,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return MapError(err)
	}

	return nil
}

// GetByID implements store.DocumentStore.GetByID.
func (s *DocumentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	query := `
		SELECT id, project_id, name, source, source_url, file_path, values, created_at, updated_at
		FROM documents
		WHERE id = $1
	`

	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrDocumentNotFound
		}
		return nil, MapError(err)
	}

	return doc, nil
}

// ListByProject implements store.DocumentStore.ListByProject.
func (s *DocumentStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Document, error) {
	query := `
		SELECT id, project_id, name, source, source_url, file_path, values, created_at, updated_at
		FROM documents
		WHERE project_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, MapError(err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return docs, nil
}

// SetValue implements store.DocumentStore.SetValue. It updates a single
// entry of the JSONB values map without rewriting the rest of the map,
// so concurrent processors writing different columns do not clobber
// each other.
func (s *DocumentStore) SetValue(ctx context.Context, id uuid.UUID, columnKey string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal document value: %w", err)
	}

	query := `
		UPDATE documents
		SET values = jsonb_set(values, ARRAY[$2], $3::jsonb, true), updated_at = $4
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, columnKey, encoded, time.Now().UTC())
	if err != nil {
		return MapError(err)
	}

	return requireRowAffected(result, store.ErrDocumentNotFound)
}

// SetFilePath implements store.DocumentStore.SetFilePath.
func (s *DocumentStore) SetFilePath(ctx context.Context, id uuid.UUID, filePath string) error {
	query := `
		UPDATE documents
		SET file_path = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, filePath, time.Now().UTC())
	if err != nil {
		return MapError(err)
	}

	return requireRowAffected(result, store.ErrDocumentNotFound)
}

// Delete implements store.DocumentStore.Delete. Runs cascade via schema
// foreign keys.
func (s *DocumentStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}

	return requireRowAffected(result, store.ErrDocumentNotFound)
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.Document, error) {
	var (
		doc       domain.Document
		sourceURL sql.NullString
		filePath  sql.NullString
		values    []byte
	)

	err := row.Scan(
		&doc.ID,
		&doc.ProjectID,
		&doc.Name,
		&doc.Source,
		&sourceURL,
		&filePath,
		&values,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.SourceURL = sourceURL.String
	doc.FilePath = filePath.String

	doc.Values = map[string]any{}
	if len(values) > 0 {
		if err := json.Unmarshal(values, &doc.Values); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document values: %w", err)
		}
	}

	return &doc, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRowAffected(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
