package processor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillhq/docpipe/internal/domain"
)

func TestChunkTextTiling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		textLength int
		size       int
		overlap    int
		wantChunks int
	}{
		{name: "text shorter than window", textLength: 500, size: 1000, overlap: 200, wantChunks: 1},
		{name: "text equal to window", textLength: 1000, size: 1000, overlap: 200, wantChunks: 1},
		{name: "2500 chars with 1000/200 windows", textLength: 2500, size: 1000, overlap: 200, wantChunks: 3},
		{name: "no overlap", textLength: 2500, size: 1000, overlap: 0, wantChunks: 3},
		{name: "one char past the window", textLength: 1001, size: 1000, overlap: 200, wantChunks: 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			text := strings.Repeat("a", tc.textLength)
			chunks := chunkText(text, tc.size, tc.overlap)

			require.Len(t, chunks, tc.wantChunks)

			// All windows except the last have exactly the window size; the
			// last window always reaches the end of the input.
			for i, chunk := range chunks[:len(chunks)-1] {
				assert.Len(t, []rune(chunk), tc.size, "chunk %d", i)
			}
			assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))
		})
	}
}

func TestChunkTextOverlapContent(t *testing.T) {
	t.Parallel()

	// With size 10 and overlap 3, consecutive windows share 3 characters.
	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := chunkText(text, 10, 3)

	require.GreaterOrEqual(t, len(chunks), 2)
	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1][len(chunks[i-1])-3:]
		assert.True(t, strings.HasPrefix(chunks[i], prevTail),
			"chunk %d should start with the previous window's tail", i)
	}
}

func TestChunkTextMultiByteRunes(t *testing.T) {
	t.Parallel()

	// Windows are measured in runes, not bytes.
	text := strings.Repeat("日本語テキスト処理", 10)
	chunks := chunkText(text, 30, 5)

	for i, chunk := range chunks[:len(chunks)-1] {
		assert.Len(t, []rune(chunk), 30, "chunk %d", i)
	}
}

func TestChunkHandler(t *testing.T) {
	t.Parallel()

	h := NewChunkHandler()
	assert.Equal(t, domain.ProcessorTypeChunk, h.Type())

	col := processorColumn(domain.ProcessorTypeChunk, &domain.ProcessorConfig{
		Chunk: &domain.ChunkConfig{SourceColumn: "page_content", Size: 1000, Overlap: 200},
	})

	t.Run("chunks the source column", func(t *testing.T) {
		t.Parallel()

		doc := uploadDoc(map[string]any{"page_content": strings.Repeat("x", 2500)}, "")
		res := h.Handle(context.Background(), Request{Document: doc, Column: col})

		require.Nil(t, res.Failure)
		chunks, ok := res.Value.([]string)
		require.True(t, ok)
		assert.Len(t, chunks, 3)
		assert.Equal(t, 3, res.Metadata["chunk_count"])
	})

	t.Run("missing source column is a validation failure", func(t *testing.T) {
		t.Parallel()

		doc := uploadDoc(nil, "")
		res := h.Handle(context.Background(), Request{Document: doc, Column: col})

		require.NotNil(t, res.Failure)
		assert.False(t, res.Failure.Retryable)
	})
}
