package processor

import (
	"context"

	"github.com/quillhq/docpipe/internal/domain"
)

// Embedder produces an embedding vector for a text. Implemented by the
// Gemini platform client.
type Embedder interface {
	EmbedText(ctx context.Context, model, text string) ([]float32, error)
}

// EmbedHandler embeds a source column's text, either as one vector for the
// whole value or one vector per chunk when the config says so. Provider
// errors are transient so the queue's retry policy applies.
type EmbedHandler struct {
	embedder Embedder
}

// NewEmbedHandler creates the embedding handler.
func NewEmbedHandler(embedder Embedder) *EmbedHandler {
	if embedder == nil {
		panic("embedder cannot be nil")
	}
	return &EmbedHandler{embedder: embedder}
}

var _ Handler = (*EmbedHandler)(nil)

// Type implements Handler.
func (h *EmbedHandler) Type() domain.ProcessorType {
	return domain.ProcessorTypeEmbed
}

// Handle implements Handler.
func (h *EmbedHandler) Handle(ctx context.Context, req Request) Result {
	cfg := req.Column.Config.Embed
	if cfg == nil {
		return ValidationFailure("%v for column %s", ErrMissingConfig, req.Column.Key)
	}

	if cfg.PerChunk {
		return h.embedChunks(ctx, req, cfg)
	}

	text, ok := sourceText(req.Document, cfg.SourceColumn)
	if !ok {
		return ValidationFailure("document %s has no usable text in source column %q",
			req.Document.ID, cfg.SourceColumn)
	}

	vector, err := h.embedder.EmbedText(ctx, cfg.Model, text)
	if err != nil {
		return TransientFailure(err)
	}

	return Success(vector, map[string]any{
		"dimensions":   len(vector),
		"input_length": len(text),
	})
}

func (h *EmbedHandler) embedChunks(ctx context.Context, req Request, cfg *domain.EmbedConfig) Result {
	chunks, ok := sourceChunks(req.Document, cfg.SourceColumn)
	if !ok {
		return ValidationFailure("document %s has no chunks in source column %q",
			req.Document.ID, cfg.SourceColumn)
	}

	vectors := make([][]float32, 0, len(chunks))
	for _, chunk := range chunks {
		vector, err := h.embedder.EmbedText(ctx, cfg.Model, chunk)
		if err != nil {
			return TransientFailure(err)
		}
		vectors = append(vectors, vector)
	}

	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}

	return Success(vectors, map[string]any{
		"chunk_count": len(vectors),
		"dimensions":  dims,
	})
}
