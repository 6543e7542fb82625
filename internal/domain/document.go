package domain

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies how a document entered the system.
type SourceType string

// Possible document source types
const (
	SourceTypeUpload SourceType = "upload"
	SourceTypeURL    SourceType = "url"
)

// Common validation errors for Document
var (
	ErrEmptyDocumentID        = errors.New("document ID cannot be empty")
	ErrEmptyDocumentProjectID = errors.New("document project ID cannot be empty")
	ErrInvalidSourceType      = errors.New("invalid document source type")
	ErrMissingSourceURL       = errors.New("URL documents require a source URL")
)

// Document is the unit of processing. Its file artifact is materialized
// asynchronously for URL documents, and its Values map is filled in by
// processor runs keyed by column key.
type Document struct {
	ID        uuid.UUID      `json:"id"`
	ProjectID uuid.UUID      `json:"project_id"`
	Name      string         `json:"name"`
	Source    SourceType     `json:"source"`
	SourceURL string         `json:"source_url,omitempty"`
	FilePath  string         `json:"file_path,omitempty"`
	Values    map[string]any `json:"values"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewUploadDocument creates a Document backed by an uploaded file.
// The file artifact itself is written separately by the ingestion service.
func NewUploadDocument(projectID uuid.UUID, name, filePath string) (*Document, error) {
	doc := &Document{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      name,
		Source:    SourceTypeUpload,
		FilePath:  filePath,
		Values:    map[string]any{},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return doc, nil
}

// NewURLDocument creates a Document sourced from a remote URL.
// Content is fetched later by the URL-to-content processor.
func NewURLDocument(projectID uuid.UUID, name, sourceURL string) (*Document, error) {
	doc := &Document{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      name,
		Source:    SourceTypeURL,
		SourceURL: sourceURL,
		Values:    map[string]any{},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return doc, nil
}

// Validate checks if the Document has valid data.
func (d *Document) Validate() error {
	if d.ID == uuid.Nil {
		return ErrEmptyDocumentID
	}

	if d.ProjectID == uuid.Nil {
		return ErrEmptyDocumentProjectID
	}

	switch d.Source {
	case SourceTypeUpload:
		// file path may be empty until the artifact is materialized
	case SourceTypeURL:
		if d.SourceURL == "" {
			return ErrMissingSourceURL
		}
	default:
		return ErrInvalidSourceType
	}

	return nil
}

// IsPDF reports whether the materialized source artifact is a PDF,
// judged by the stored file extension.
func (d *Document) IsPDF() bool {
	return strings.EqualFold(filepath.Ext(d.FilePath), ".pdf")
}
