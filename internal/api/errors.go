package api

import (
	"errors"
	"net/http"

	"github.com/quillhq/docpipe/internal/service"
	"github.com/quillhq/docpipe/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes based on
// the error type, so handlers never leak internal error taxonomy.
func MapErrorToStatusCode(err error) int {
	switch {
	case store.IsNotFoundError(err):
		return http.StatusNotFound

	case store.IsDuplicateError(err):
		return http.StatusConflict

	case errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, service.ErrNotProcessorColumn):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing message for the
// error type.
func GetSafeErrorMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrProjectNotFound):
		return "Project not found"
	case errors.Is(err, store.ErrDocumentNotFound):
		return "Document not found"
	case errors.Is(err, store.ErrColumnNotFound):
		return "Column not found"
	case errors.Is(err, store.ErrRunNotFound):
		return "Run not found"
	case errors.Is(err, store.ErrPromptRunNotFound):
		return "Prompt run not found"
	case errors.Is(err, store.ErrColumnKeyExists):
		return "Column key already exists in this project"
	case store.IsDuplicateError(err):
		return "Resource already exists"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"
	case errors.Is(err, service.ErrNotProcessorColumn):
		return "Column has no processor"
	default:
		return "An unexpected error occurred"
	}
}
