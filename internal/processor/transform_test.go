package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillhq/docpipe/internal/domain"
)

func transformColumn(template string) *domain.Column {
	return processorColumn(domain.ProcessorTypeTransform, &domain.ProcessorConfig{
		Transform: &domain.TransformConfig{PromptTemplate: template},
	})
}

func TestTransformHandler(t *testing.T) {
	t.Parallel()

	t.Run("renders template against document values", func(t *testing.T) {
		t.Parallel()

		gen := &fakeGenerator{}
		h := NewTransformHandler(gen)

		doc := uploadDoc(map[string]any{"page_content": "the content"}, "")
		col := transformColumn(`Summarize {{.DocumentName}}: {{index .Values "page_content"}}`)

		res := h.Handle(context.Background(), Request{Document: doc, Column: col})

		require.Nil(t, res.Failure)
		require.Len(t, gen.prompts, 1)
		assert.Equal(t, "Summarize Test Document: the content", gen.prompts[0])
		assert.Equal(t, "generated: "+gen.prompts[0], res.Value)
	})

	t.Run("unparsable template is a validation failure", func(t *testing.T) {
		t.Parallel()

		h := NewTransformHandler(&fakeGenerator{})
		col := transformColumn(`{{.Unclosed`)

		res := h.Handle(context.Background(), Request{Document: uploadDoc(nil, ""), Column: col})

		require.NotNil(t, res.Failure)
		assert.False(t, res.Failure.Retryable)
	})

	t.Run("template rendering empty is a validation failure", func(t *testing.T) {
		t.Parallel()

		h := NewTransformHandler(&fakeGenerator{})
		col := transformColumn(`{{if .Values.missing}}never{{end}}`)

		res := h.Handle(context.Background(), Request{Document: uploadDoc(nil, ""), Column: col})

		require.NotNil(t, res.Failure)
		assert.False(t, res.Failure.Retryable)
	})

	t.Run("provider error is retryable", func(t *testing.T) {
		t.Parallel()

		h := NewTransformHandler(&fakeGenerator{err: errors.New("model overloaded")})
		col := transformColumn(`Summarize this`)

		res := h.Handle(context.Background(), Request{Document: uploadDoc(nil, ""), Column: col})

		require.NotNil(t, res.Failure)
		assert.True(t, res.Failure.Retryable)
	})
}
