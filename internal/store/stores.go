package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/quillhq/docpipe/internal/domain"
)

// ProjectStore defines the interface for persisting projects.
type ProjectStore interface {
	// Create saves a new project.
	Create(ctx context.Context, project *domain.Project) error

	// GetByID retrieves a project by its ID.
	// Returns ErrProjectNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)
}

// DocumentStore defines the interface for persisting documents.
type DocumentStore interface {
	// Create saves a new document.
	Create(ctx context.Context, doc *domain.Document) error

	// GetByID retrieves a document by its ID.
	// Returns ErrDocumentNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error)

	// ListByProject retrieves all documents in a project ordered by creation time.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Document, error)

	// SetValue writes a single entry of the document's values map,
	// keyed by column key, without touching other entries.
	SetValue(ctx context.Context, id uuid.UUID, columnKey string, value any) error

	// SetFilePath records the stored path of the document's source artifact.
	SetFilePath(ctx context.Context, id uuid.UUID, filePath string) error

	// Delete removes the document row. On-disk artifacts are the caller's
	// responsibility; runs cascade in the schema.
	Delete(ctx context.Context, id uuid.UUID) error
}

// ColumnStore defines the interface for persisting columns.
type ColumnStore interface {
	// Create saves a new column.
	// Returns ErrColumnKeyExists when the (project, key) pair is taken.
	Create(ctx context.Context, col *domain.Column) error

	// GetByID retrieves a column by its ID.
	// Returns ErrColumnNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Column, error)

	// GetByKey retrieves a column by project and key.
	// Returns ErrColumnNotFound if it does not exist.
	GetByKey(ctx context.Context, projectID uuid.UUID, key string) (*domain.Column, error)

	// ListByProject retrieves all columns in a project ordered by position.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Column, error)

	// NextPosition returns the next free ordering position in the project.
	NextPosition(ctx context.Context, projectID uuid.UUID) (int, error)
}

// RunStore defines the interface for the processor run ledger.
type RunStore interface {
	// CreateIfAbsent inserts the run unless a queued or running run already
	// exists for the same (document, column) pair. When the insert loses
	// that race it returns created=false together with the existing
	// in-flight run.
	CreateIfAbsent(ctx context.Context, run *domain.ProcessorRun) (created bool, existing *domain.ProcessorRun, err error)

	// GetByID retrieves a run by its ID.
	// Returns ErrRunNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ProcessorRun, error)

	// Transition advances the run from the expected status to the next one,
	// recording an error message and metadata on terminal transitions.
	// Returns ErrStaleTransition when the row is not in the expected status,
	// which callers treat as a lost race with a duplicate delivery.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.RunStatus, errorMsg string, metadata map[string]any) error

	// ListByDocument retrieves run history for a document, newest first.
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*domain.ProcessorRun, error)

	// ListQueuedOlderThan retrieves runs stuck in the queued status since
	// before the cutoff, oldest first. Used by the maintenance requeue.
	ListQueuedOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.ProcessorRun, error)
}

// PromptRunStore defines the interface for persisting prompt runs.
type PromptRunStore interface {
	// Create saves a new prompt run.
	Create(ctx context.Context, run *domain.PromptRun) error

	// GetByID retrieves a prompt run by its ID.
	// Returns ErrPromptRunNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PromptRun, error)

	// Transition advances the prompt run between statuses with the same
	// guard semantics as RunStore.Transition. Result is only stored on the
	// transition to success.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.RunStatus, result, errorMsg string) error
}
