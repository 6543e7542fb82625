package processor

import (
	"context"
	"strings"
	"text/template"

	"github.com/quillhq/docpipe/internal/domain"
)

// TextGenerator produces text from a prompt. Implemented by the Gemini
// platform client.
type TextGenerator interface {
	GenerateText(ctx context.Context, model, prompt string) (string, error)
}

// promptData is the template context for transform prompts.
type promptData struct {
	DocumentName string
	ColumnName   string
	Values       map[string]any
}

// TransformHandler renders the column's prompt template against the
// document's values and sends it to the language model, storing the
// textual result. A template that fails to parse or render is a terminal
// validation failure; provider errors are transient.
type TransformHandler struct {
	generator TextGenerator
}

// NewTransformHandler creates the LLM-transform handler.
func NewTransformHandler(generator TextGenerator) *TransformHandler {
	if generator == nil {
		panic("generator cannot be nil")
	}
	return &TransformHandler{generator: generator}
}

var _ Handler = (*TransformHandler)(nil)

// Type implements Handler.
func (h *TransformHandler) Type() domain.ProcessorType {
	return domain.ProcessorTypeTransform
}

// Handle implements Handler.
func (h *TransformHandler) Handle(ctx context.Context, req Request) Result {
	cfg := req.Column.Config.Transform
	if cfg == nil {
		return ValidationFailure("%v for column %s", ErrMissingConfig, req.Column.Key)
	}

	tmpl, err := template.New("prompt").Parse(cfg.PromptTemplate)
	if err != nil {
		return ValidationFailure("invalid prompt template for column %s: %v", req.Column.Key, err)
	}

	var prompt strings.Builder
	err = tmpl.Execute(&prompt, promptData{
		DocumentName: req.Document.Name,
		ColumnName:   req.Column.Name,
		Values:       req.Document.Values,
	})
	if err != nil {
		return ValidationFailure("prompt template for column %s failed to render: %v", req.Column.Key, err)
	}

	rendered := strings.TrimSpace(prompt.String())
	if rendered == "" {
		return ValidationFailure("prompt template for column %s rendered empty", req.Column.Key)
	}

	text, err := h.generator.GenerateText(ctx, cfg.Model, rendered)
	if err != nil {
		return TransientFailure(err)
	}

	return Success(text, map[string]any{
		"prompt_length":   len(rendered),
		"response_length": len(text),
	})
}
