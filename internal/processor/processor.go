// Package processor hosts the dispatch table mapping processor types to
// handlers, plus the built-in handlers themselves. Handlers transform a
// (document, column) pair into a value and never touch the run ledger;
// the worker owns all ledger writes. Failures carry an explicit retryable
// flag so the worker can route them to the queue's retry policy or to a
// terminal error.
package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/quillhq/docpipe/internal/domain"
)

// Common processor errors
var (
	ErrUnknownProcessor = errors.New("no handler registered for processor type")
	ErrMissingConfig    = errors.New("processor configuration is missing")
)

// Request carries everything a handler may consult. Handlers read from it;
// persistence of the outcome is the worker's job.
type Request struct {
	Project  *domain.Project
	Document *domain.Document
	Column   *domain.Column
}

// Failure describes why a handler did not produce a value. Validation
// failures (wrong source type, missing prerequisite, disallowed content)
// are not retryable; transient failures (network, provider limits) are.
type Failure struct {
	Err       error
	Retryable bool
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return f.Err.Error()
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Result is a handler's outcome: either a value (plus optional metadata
// and a file path for the worker to persist on the document), or a Failure.
type Result struct {
	Value    any
	Metadata map[string]any

	// FilePath, when non-empty, is a newly materialized source artifact
	// path the worker records on the document.
	FilePath string

	Failure *Failure
}

// Success builds a successful result.
func Success(value any, metadata map[string]any) Result {
	return Result{Value: value, Metadata: metadata}
}

// ValidationFailure builds a terminal, non-retryable failure.
func ValidationFailure(format string, args ...any) Result {
	return Result{Failure: &Failure{Err: fmt.Errorf(format, args...), Retryable: false}}
}

// TransientFailure builds a retryable failure wrapping the underlying error.
func TransientFailure(err error) Result {
	return Result{Failure: &Failure{Err: err, Retryable: true}}
}

// Handler executes one processor type.
type Handler interface {
	// Type returns the processor type this handler serves.
	Type() domain.ProcessorType

	// Handle runs the transformation. It must not mutate the run ledger.
	Handle(ctx context.Context, req Request) Result
}

// Registry is a pure dispatch table from processor type to handler.
// It is assembled once at startup and read-only afterwards.
type Registry struct {
	handlers map[domain.ProcessorType]Handler
}

// NewRegistry builds a registry from the given handlers.
// Panics on duplicate registrations, which are always programming errors.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[domain.ProcessorType]Handler, len(handlers))}

	for _, h := range handlers {
		if _, exists := r.handlers[h.Type()]; exists {
			panic(fmt.Sprintf("duplicate processor handler for type %q", h.Type()))
		}
		r.handlers[h.Type()] = h
	}

	return r
}

// Get returns the handler for a processor type.
func (r *Registry) Get(t domain.ProcessorType) (Handler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcessor, t)
	}
	return h, nil
}

// sourceText pulls a string value for the given column key out of the
// document's values map. Array values are joined with newlines.
func sourceText(doc *domain.Document, key string) (string, bool) {
	raw, ok := doc.Values[key]
	if !ok {
		return "", false
	}

	switch v := raw.(type) {
	case string:
		return v, v != ""
	case []string:
		return joinNonEmpty(v), len(v) > 0
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return joinNonEmpty(parts), len(parts) > 0
	default:
		return "", false
	}
}

// sourceChunks pulls a string-array value for the given column key.
func sourceChunks(doc *domain.Document, key string) ([]string, bool) {
	raw, ok := doc.Values[key]
	if !ok {
		return nil, false
	}

	switch v := raw.(type) {
	case []string:
		return v, len(v) > 0
	case []any:
		chunks := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				chunks = append(chunks, s)
			}
		}
		return chunks, len(chunks) > 0
	case string:
		if v == "" {
			return nil, false
		}
		return []string{v}, true
	default:
		return nil, false
	}
}

func joinNonEmpty(parts []string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p
	}
	return out
}
