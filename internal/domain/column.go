package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ValueType describes the shape of the values a column holds.
type ValueType string

// Possible column value types
const (
	ValueTypeText        ValueType = "text"
	ValueTypeNumber      ValueType = "number"
	ValueTypeTextArray   ValueType = "text_array"
	ValueTypeNumberArray ValueType = "number_array"
)

// ColumnMode distinguishes user-entered columns from processor-derived ones.
type ColumnMode string

// Possible column modes
const (
	ColumnModeManual    ColumnMode = "manual"
	ColumnModeProcessor ColumnMode = "processor"
)

// ProcessorType identifies one of the fixed, built-in processors.
type ProcessorType string

// The closed set of processor types. Adding one requires a handler
// registration and a config variant; there is no user-defined code path.
const (
	ProcessorTypeExtract   ProcessorType = "extract"
	ProcessorTypeChunk     ProcessorType = "chunk"
	ProcessorTypeEmbed     ProcessorType = "embed"
	ProcessorTypeTransform ProcessorType = "transform"
	ProcessorTypeFetch     ProcessorType = "fetch"
	ProcessorTypeThumbnail ProcessorType = "thumbnail"
)

// Reserved column keys for system-provisioned derived columns.
const (
	ColumnKeyThumbnail   = "thumbnail"
	ColumnKeyPageContent = "page_content"
)

// Common validation errors for Column
var (
	ErrEmptyColumnID         = errors.New("column ID cannot be empty")
	ErrEmptyColumnProjectID  = errors.New("column project ID cannot be empty")
	ErrEmptyColumnKey        = errors.New("column key cannot be empty")
	ErrInvalidValueType      = errors.New("invalid column value type")
	ErrInvalidColumnMode     = errors.New("invalid column mode")
	ErrInvalidProcessorType  = errors.New("invalid processor type")
	ErrManualColumnProcessor = errors.New("manual columns cannot carry processor configuration")
	ErrMissingProcessorType  = errors.New("processor columns require a processor type")
	ErrInvalidChunkConfig    = errors.New("invalid chunk configuration")
	ErrMissingSourceColumn   = errors.New("processor configuration requires a source column key")
	ErrMissingPromptTemplate = errors.New("transform configuration requires a prompt template")
	ErrConfigTypeMismatch    = errors.New("processor configuration does not match processor type")
)

// ChunkConfig configures the chunking processor.
type ChunkConfig struct {
	SourceColumn string `json:"source_column"`
	Size         int    `json:"size"`
	Overlap      int    `json:"overlap"`
}

// EmbedConfig configures the embedding processor. When PerChunk is set the
// source value is expected to be a text array and each element is embedded
// separately; otherwise the whole value is embedded as one string.
type EmbedConfig struct {
	SourceColumn string `json:"source_column"`
	Model        string `json:"model,omitempty"`
	PerChunk     bool   `json:"per_chunk,omitempty"`
}

// TransformConfig configures the LLM-transform processor. PromptTemplate is
// a text/template rendered against the document's values and column context.
type TransformConfig struct {
	PromptTemplate string `json:"prompt_template"`
	Model          string `json:"model,omitempty"`
}

// ExtractConfig configures the content-extraction processor.
type ExtractConfig struct{}

// FetchConfig configures the URL-to-content processor.
type FetchConfig struct{}

// ThumbnailConfig configures the PDF thumbnail processor.
type ThumbnailConfig struct{}

// ProcessorConfig is a tagged variant payload: exactly the field matching the
// column's processor type is set. It is validated at column-creation time so
// job execution never sees a malformed config.
type ProcessorConfig struct {
	Extract   *ExtractConfig   `json:"extract,omitempty"`
	Chunk     *ChunkConfig     `json:"chunk,omitempty"`
	Embed     *EmbedConfig     `json:"embed,omitempty"`
	Transform *TransformConfig `json:"transform,omitempty"`
	Fetch     *FetchConfig     `json:"fetch,omitempty"`
	Thumbnail *ThumbnailConfig `json:"thumbnail,omitempty"`
}

// Validate checks that the variant matching processorType is set, that no
// other variant is set, and that the variant's own fields are coherent.
func (c *ProcessorConfig) Validate(processorType ProcessorType) error {
	if c == nil {
		return ErrConfigTypeMismatch
	}

	if n := c.variantCount(); n != 1 {
		return fmt.Errorf("%w: expected exactly one variant, got %d", ErrConfigTypeMismatch, n)
	}

	switch processorType {
	case ProcessorTypeExtract:
		if c.Extract == nil {
			return ErrConfigTypeMismatch
		}
	case ProcessorTypeChunk:
		if c.Chunk == nil {
			return ErrConfigTypeMismatch
		}
		if c.Chunk.SourceColumn == "" {
			return ErrMissingSourceColumn
		}
		if c.Chunk.Size <= 0 || c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
			return fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunkConfig, c.Chunk.Size, c.Chunk.Overlap)
		}
	case ProcessorTypeEmbed:
		if c.Embed == nil {
			return ErrConfigTypeMismatch
		}
		if c.Embed.SourceColumn == "" {
			return ErrMissingSourceColumn
		}
	case ProcessorTypeTransform:
		if c.Transform == nil {
			return ErrConfigTypeMismatch
		}
		if c.Transform.PromptTemplate == "" {
			return ErrMissingPromptTemplate
		}
	case ProcessorTypeFetch:
		if c.Fetch == nil {
			return ErrConfigTypeMismatch
		}
	case ProcessorTypeThumbnail:
		if c.Thumbnail == nil {
			return ErrConfigTypeMismatch
		}
	default:
		return ErrInvalidProcessorType
	}

	return nil
}

func (c *ProcessorConfig) variantCount() int {
	n := 0
	if c.Extract != nil {
		n++
	}
	if c.Chunk != nil {
		n++
	}
	if c.Embed != nil {
		n++
	}
	if c.Transform != nil {
		n++
	}
	if c.Fetch != nil {
		n++
	}
	if c.Thumbnail != nil {
		n++
	}
	return n
}

// Column is the configuration for one processing capability within a project.
// The key is stable and unique within the project; jobs and document values
// reference columns by key, not display name.
type Column struct {
	ID            uuid.UUID        `json:"id"`
	ProjectID     uuid.UUID        `json:"project_id"`
	Key           string           `json:"key"`
	Name          string           `json:"name"`
	ValueType     ValueType        `json:"value_type"`
	Mode          ColumnMode       `json:"mode"`
	ProcessorType ProcessorType    `json:"processor_type,omitempty"`
	Config        *ProcessorConfig `json:"config,omitempty"`
	Hidden        bool             `json:"hidden"`
	Position      int              `json:"position"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// NewManualColumn creates a user-editable column whose values bypass the
// pipeline entirely.
func NewManualColumn(projectID uuid.UUID, key, name string, valueType ValueType, position int) (*Column, error) {
	col := &Column{
		ID:        uuid.New(),
		ProjectID: projectID,
		Key:       key,
		Name:      name,
		ValueType: valueType,
		Mode:      ColumnModeManual,
		Position:  position,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := col.Validate(); err != nil {
		return nil, err
	}

	return col, nil
}

// NewProcessorColumn creates a column whose values are produced by the named
// processor. The config variant is validated here, at creation time.
func NewProcessorColumn(
	projectID uuid.UUID,
	key, name string,
	valueType ValueType,
	processorType ProcessorType,
	config *ProcessorConfig,
	position int,
) (*Column, error) {
	col := &Column{
		ID:            uuid.New(),
		ProjectID:     projectID,
		Key:           key,
		Name:          name,
		ValueType:     valueType,
		Mode:          ColumnModeProcessor,
		ProcessorType: processorType,
		Config:        config,
		Position:      position,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	if err := col.Validate(); err != nil {
		return nil, err
	}

	return col, nil
}

// Validate checks if the Column has valid data.
func (c *Column) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyColumnID
	}

	if c.ProjectID == uuid.Nil {
		return ErrEmptyColumnProjectID
	}

	if c.Key == "" {
		return ErrEmptyColumnKey
	}

	if !isValidValueType(c.ValueType) {
		return ErrInvalidValueType
	}

	switch c.Mode {
	case ColumnModeManual:
		if c.ProcessorType != "" || c.Config != nil {
			return ErrManualColumnProcessor
		}
	case ColumnModeProcessor:
		if c.ProcessorType == "" {
			return ErrMissingProcessorType
		}
		if !isValidProcessorType(c.ProcessorType) {
			return ErrInvalidProcessorType
		}
		if err := c.Config.Validate(c.ProcessorType); err != nil {
			return err
		}
	default:
		return ErrInvalidColumnMode
	}

	return nil
}

// IsProcessor reports whether the column may be referenced by a ProcessorRun.
func (c *Column) IsProcessor() bool {
	return c.Mode == ColumnModeProcessor
}

func isValidValueType(t ValueType) bool {
	switch t {
	case ValueTypeText, ValueTypeNumber, ValueTypeTextArray, ValueTypeNumberArray:
		return true
	default:
		return false
	}
}

func isValidProcessorType(t ProcessorType) bool {
	switch t {
	case ProcessorTypeExtract, ProcessorTypeChunk, ProcessorTypeEmbed,
		ProcessorTypeTransform, ProcessorTypeFetch, ProcessorTypeThumbnail:
		return true
	default:
		return false
	}
}
