package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/platform/storage"
	"github.com/quillhq/docpipe/internal/store"
)

// IngestService creates and deletes documents together with their side
// effects: source artifacts on disk, lazily provisioned derived columns,
// and the initial processor runs those columns need.
type IngestService struct {
	projects    store.ProjectStore
	docs        store.DocumentStore
	files       storage.FileStore
	provisioner *Provisioner
	processing  *ProcessingService
	logger      *slog.Logger
}

// NewIngestService creates the service.
func NewIngestService(
	projects store.ProjectStore,
	docs store.DocumentStore,
	files storage.FileStore,
	provisioner *Provisioner,
	processing *ProcessingService,
	log *slog.Logger,
) *IngestService {
	return &IngestService{
		projects:    projects,
		docs:        docs,
		files:       files,
		provisioner: provisioner,
		processing:  processing,
		logger:      log.With(slog.String("component", "ingest_service")),
	}
}

// CreateUploadDocument stores the uploaded bytes as the document's source
// artifact and creates the document row. PDF uploads additionally get the
// reserved thumbnail column provisioned and a thumbnail run triggered.
func (s *IngestService) CreateUploadDocument(ctx context.Context, projectID uuid.UUID, name, fileName string, content []byte) (*domain.Document, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	ext := strings.TrimPrefix(filepath.Ext(fileName), ".")
	if ext == "" {
		ext = "bin"
	}

	doc, err := domain.NewUploadDocument(projectID, name, "")
	if err != nil {
		return nil, fmt.Errorf("failed to build document: %w", err)
	}
	doc.FilePath = storage.SourcePath(projectID, doc.ID, ext)

	if err := s.files.WriteFile(doc.FilePath, content); err != nil {
		return nil, fmt.Errorf("failed to store source artifact: %w", err)
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		// Best effort: do not leave an orphaned artifact behind.
		if cleanupErr := s.files.DeleteDir(storage.DocumentDir(projectID, doc.ID)); cleanupErr != nil {
			s.logger.Warn("failed to clean up artifact after create failure",
				"document_id", doc.ID, "error", cleanupErr)
		}
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.logger.Info("document uploaded",
		"document_id", doc.ID,
		"project_id", projectID,
		"file_path", doc.FilePath)

	if doc.IsPDF() {
		s.triggerDerived(ctx, doc, s.provisioner.EnsureThumbnailColumn)
	}

	return doc, nil
}

// CreateURLDocument creates a URL-sourced document. Its content is not
// fetched here: the reserved page-content column is provisioned and a
// fetch run is triggered, so materialization happens on the process lane.
func (s *IngestService) CreateURLDocument(ctx context.Context, projectID uuid.UUID, name, sourceURL string) (*domain.Document, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	doc, err := domain.NewURLDocument(projectID, name, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build document: %w", err)
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.logger.Info("url document created",
		"document_id", doc.ID,
		"project_id", projectID)

	s.triggerDerived(ctx, doc, s.provisioner.EnsurePageContentColumn)

	return doc, nil
}

// DeleteDocument removes the document row and its artifact directory.
func (s *IngestService) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}

	if err := s.docs.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if err := s.files.DeleteDir(storage.DocumentDir(doc.ProjectID, doc.ID)); err != nil {
		// Row is gone; orphaned files are a cleanup problem, not a failure.
		s.logger.Warn("failed to delete document artifacts",
			"document_id", documentID, "error", err)
	}

	s.logger.Info("document deleted", "document_id", documentID)
	return nil
}

// triggerDerived provisions a reserved column and triggers its first run.
// Failures here never fail the ingest; the run can be retriggered later.
func (s *IngestService) triggerDerived(ctx context.Context, doc *domain.Document, ensure func(context.Context, uuid.UUID) (*domain.Column, error)) {
	col, err := ensure(ctx, doc.ProjectID)
	if err != nil {
		s.logger.Error("failed to provision derived column",
			"document_id", doc.ID, "error", err)
		return
	}

	if _, _, err := s.processing.TriggerRun(ctx, doc.ProjectID, doc.ID, col.ID); err != nil {
		s.logger.Error("failed to trigger derived run",
			"document_id", doc.ID,
			"column_key", col.Key,
			"error", err)
	}
}
