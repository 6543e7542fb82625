package processor

import (
	"context"

	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/fetchguard"
	"github.com/quillhq/docpipe/internal/platform/storage"
)

// Fetcher retrieves validated remote content. Implemented by the fetch
// guard; faked in tests.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetchguard.Content, error)
}

// FetchHandler retrieves a URL document's remote content through the fetch
// guard, materializes it as the document's source artifact, and returns
// the extracted text. Guard rejections (private address, disallowed
// content type, oversized payload, timeout) are terminal validation
// failures; other network errors retry.
type FetchHandler struct {
	fetcher Fetcher
	files   storage.FileStore
}

// NewFetchHandler creates the URL-to-content handler.
func NewFetchHandler(fetcher Fetcher, files storage.FileStore) *FetchHandler {
	if fetcher == nil {
		panic("fetcher cannot be nil")
	}
	if files == nil {
		panic("file store cannot be nil")
	}
	return &FetchHandler{fetcher: fetcher, files: files}
}

var _ Handler = (*FetchHandler)(nil)

// Type implements Handler.
func (h *FetchHandler) Type() domain.ProcessorType {
	return domain.ProcessorTypeFetch
}

// Handle implements Handler.
func (h *FetchHandler) Handle(ctx context.Context, req Request) Result {
	doc := req.Document

	if doc.Source != domain.SourceTypeURL {
		return ValidationFailure("document %s is not URL-sourced", doc.ID)
	}

	content, err := h.fetcher.Fetch(ctx, doc.SourceURL)
	if err != nil {
		if ve, ok := fetchguard.IsValidationError(err); ok {
			return ValidationFailure("fetch blocked: %s", ve.Message)
		}
		return TransientFailure(err)
	}

	ext := "html"
	if content.ContentType == "text/plain" {
		ext = "txt"
	}

	path := storage.SourcePath(doc.ProjectID, doc.ID, ext)
	if err := h.files.WriteFile(path, content.Body); err != nil {
		return TransientFailure(err)
	}

	var text string
	if ext == "html" {
		text = htmlToText(content.Body)
	} else {
		text = string(content.Body)
	}

	result := Success(text, map[string]any{
		"content_type": content.ContentType,
		"bytes":        len(content.Body),
		"final_url":    content.FinalURL,
	})
	result.FilePath = path
	return result
}
