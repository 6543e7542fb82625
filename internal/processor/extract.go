package processor

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/platform/storage"
)

// ExtractHandler converts a document's stored source artifact into
// normalized text: HTML is stripped to readable text, plain-text formats
// pass through. A missing artifact is a terminal validation failure.
type ExtractHandler struct {
	files storage.FileStore
}

// NewExtractHandler creates the content-extraction handler.
func NewExtractHandler(files storage.FileStore) *ExtractHandler {
	if files == nil {
		panic("file store cannot be nil")
	}
	return &ExtractHandler{files: files}
}

var _ Handler = (*ExtractHandler)(nil)

// Type implements Handler.
func (h *ExtractHandler) Type() domain.ProcessorType {
	return domain.ProcessorTypeExtract
}

// Handle implements Handler.
func (h *ExtractHandler) Handle(ctx context.Context, req Request) Result {
	doc := req.Document

	if doc.FilePath == "" {
		return ValidationFailure("document %s has no stored source artifact", doc.ID)
	}

	exists, err := h.files.FileExists(doc.FilePath)
	if err != nil {
		return TransientFailure(err)
	}
	if !exists {
		return ValidationFailure("source artifact %q is missing", doc.FilePath)
	}

	data, err := h.files.ReadFile(doc.FilePath)
	if err != nil {
		return TransientFailure(err)
	}

	var text string
	ext := strings.ToLower(filepath.Ext(doc.FilePath))
	switch ext {
	case ".html", ".htm", ".xhtml":
		text = htmlToText(data)
	case ".txt", ".md", ".csv":
		text = strings.TrimSpace(string(data))
	default:
		return ValidationFailure("cannot extract text from %q files", ext)
	}

	if text == "" {
		return ValidationFailure("source artifact %q contains no extractable text", doc.FilePath)
	}

	return Success(text, map[string]any{
		"source_bytes": len(data),
		"text_length":  len(text),
		"source_ext":   ext,
	})
}
