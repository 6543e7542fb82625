package processor

import (
	"context"

	"github.com/quillhq/docpipe/internal/domain"
)

// ChunkHandler splits a source column's text into overlapping windows.
// Window size and overlap come from the column's chunk config, which was
// validated at column-creation time (size > overlap >= 0).
type ChunkHandler struct{}

// NewChunkHandler creates the chunking handler.
func NewChunkHandler() *ChunkHandler {
	return &ChunkHandler{}
}

var _ Handler = (*ChunkHandler)(nil)

// Type implements Handler.
func (h *ChunkHandler) Type() domain.ProcessorType {
	return domain.ProcessorTypeChunk
}

// Handle implements Handler.
func (h *ChunkHandler) Handle(ctx context.Context, req Request) Result {
	cfg := req.Column.Config.Chunk
	if cfg == nil {
		return ValidationFailure("%v for column %s", ErrMissingConfig, req.Column.Key)
	}

	text, ok := sourceText(req.Document, cfg.SourceColumn)
	if !ok {
		return ValidationFailure("document %s has no value for source column %q",
			req.Document.ID, cfg.SourceColumn)
	}

	chunks := chunkText(text, cfg.Size, cfg.Overlap)

	return Success(chunks, map[string]any{
		"chunk_count":  len(chunks),
		"chunk_size":   cfg.Size,
		"overlap":      cfg.Overlap,
		"input_length": len(text),
	})
}

// chunkText tiles the input with windows of the given size advancing by
// size-overlap, so consecutive windows share overlap characters and the
// final window always reaches the end of the input.
func chunkText(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	step := size - overlap
	var chunks []string
	for start := 0; ; start += step {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}
		chunks = append(chunks, string(runes[start:end]))
	}
}
