package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewManualColumn(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()

	col, err := NewManualColumn(projectID, "title", "Title", ValueTypeText, 0)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if col.Mode != ColumnModeManual {
		t.Errorf("Expected manual mode, got %s", col.Mode)
	}
	if col.IsProcessor() {
		t.Error("Manual column must not report as processor")
	}

	if _, err := NewManualColumn(projectID, "", "Title", ValueTypeText, 0); err != ErrEmptyColumnKey {
		t.Errorf("Expected %v, got %v", ErrEmptyColumnKey, err)
	}
	if _, err := NewManualColumn(projectID, "title", "Title", ValueType("blob"), 0); err != ErrInvalidValueType {
		t.Errorf("Expected %v, got %v", ErrInvalidValueType, err)
	}
}

func TestNewProcessorColumnConfigVariants(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()

	tests := []struct {
		name          string
		processorType ProcessorType
		valueType     ValueType
		config        *ProcessorConfig
		wantErr       error
	}{
		{
			name:          "chunk config valid",
			processorType: ProcessorTypeChunk,
			valueType:     ValueTypeTextArray,
			config:        &ProcessorConfig{Chunk: &ChunkConfig{SourceColumn: "page_content", Size: 1000, Overlap: 200}},
		},
		{
			name:          "embed config valid",
			processorType: ProcessorTypeEmbed,
			valueType:     ValueTypeNumberArray,
			config:        &ProcessorConfig{Embed: &EmbedConfig{SourceColumn: "chunks", PerChunk: true}},
		},
		{
			name:          "transform config valid",
			processorType: ProcessorTypeTransform,
			valueType:     ValueTypeText,
			config:        &ProcessorConfig{Transform: &TransformConfig{PromptTemplate: "Summarize {{.DocumentName}}"}},
		},
		{
			name:          "nil config rejected",
			processorType: ProcessorTypeExtract,
			valueType:     ValueTypeText,
			config:        nil,
			wantErr:       ErrConfigTypeMismatch,
		},
		{
			name:          "variant mismatch rejected",
			processorType: ProcessorTypeChunk,
			valueType:     ValueTypeTextArray,
			config:        &ProcessorConfig{Embed: &EmbedConfig{SourceColumn: "x"}},
			wantErr:       ErrConfigTypeMismatch,
		},
		{
			name:          "two variants rejected",
			processorType: ProcessorTypeChunk,
			valueType:     ValueTypeTextArray,
			config: &ProcessorConfig{
				Chunk: &ChunkConfig{SourceColumn: "x", Size: 100, Overlap: 10},
				Fetch: &FetchConfig{},
			},
			wantErr: ErrConfigTypeMismatch,
		},
		{
			name:          "chunk overlap must be smaller than size",
			processorType: ProcessorTypeChunk,
			valueType:     ValueTypeTextArray,
			config:        &ProcessorConfig{Chunk: &ChunkConfig{SourceColumn: "x", Size: 100, Overlap: 100}},
			wantErr:       ErrInvalidChunkConfig,
		},
		{
			name:          "chunk source column required",
			processorType: ProcessorTypeChunk,
			valueType:     ValueTypeTextArray,
			config:        &ProcessorConfig{Chunk: &ChunkConfig{Size: 100, Overlap: 10}},
			wantErr:       ErrMissingSourceColumn,
		},
		{
			name:          "transform prompt required",
			processorType: ProcessorTypeTransform,
			valueType:     ValueTypeText,
			config:        &ProcessorConfig{Transform: &TransformConfig{}},
			wantErr:       ErrMissingPromptTemplate,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewProcessorColumn(projectID, "col", "Col", tc.valueType, tc.processorType, tc.config, 0)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected error %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestColumnValidateModeRules(t *testing.T) {
	t.Parallel()

	col := &Column{
		ID:        uuid.New(),
		ProjectID: uuid.New(),
		Key:       "summary",
		Name:      "Summary",
		ValueType: ValueTypeText,
		Mode:      ColumnModeManual,
		Config:    &ProcessorConfig{Extract: &ExtractConfig{}},
	}
	if err := col.Validate(); err != ErrManualColumnProcessor {
		t.Errorf("Expected %v, got %v", ErrManualColumnProcessor, err)
	}

	col.Config = nil
	col.Mode = ColumnModeProcessor
	if err := col.Validate(); err != ErrMissingProcessorType {
		t.Errorf("Expected %v, got %v", ErrMissingProcessorType, err)
	}
}
