package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for PromptRun
var (
	ErrEmptyPromptRunID        = errors.New("prompt run ID cannot be empty")
	ErrEmptyPromptRunProjectID = errors.New("prompt run project ID cannot be empty")
	ErrEmptyPrompt             = errors.New("prompt text cannot be empty")
)

// PromptRun is a free-standing LLM prompt execution scoped to a project.
// It reuses the run status machine but is not tied to a (document, column)
// pair; the result is stored on the run itself.
type PromptRun struct {
	ID           uuid.UUID `json:"id"`
	ProjectID    uuid.UUID `json:"project_id"`
	Prompt       string    `json:"prompt"`
	Model        string    `json:"model,omitempty"`
	Status       RunStatus `json:"status"`
	Result       string    `json:"result,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewPromptRun creates a prompt run in the queued state.
func NewPromptRun(projectID uuid.UUID, prompt, model string) (*PromptRun, error) {
	run := &PromptRun{
		ID:        uuid.New(),
		ProjectID: projectID,
		Prompt:    prompt,
		Model:     model,
		Status:    RunStatusQueued,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := run.Validate(); err != nil {
		return nil, err
	}

	return run, nil
}

// Validate checks if the PromptRun has valid data.
func (r *PromptRun) Validate() error {
	if r.ID == uuid.Nil {
		return ErrEmptyPromptRunID
	}

	if r.ProjectID == uuid.Nil {
		return ErrEmptyPromptRunProjectID
	}

	if r.Prompt == "" {
		return ErrEmptyPrompt
	}

	if !isValidRunStatus(r.Status) {
		return ErrInvalidRunStatus
	}

	return nil
}
