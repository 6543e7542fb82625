package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the state of a processor run.
type RunStatus string

// Possible run status values. The machine only moves forward:
// queued -> running -> success|error.
const (
	RunStatusQueued  RunStatus = "queued"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// Common validation errors for ProcessorRun
var (
	ErrEmptyRunID           = errors.New("run ID cannot be empty")
	ErrEmptyRunProjectID    = errors.New("run project ID cannot be empty")
	ErrEmptyRunDocumentID   = errors.New("run document ID cannot be empty")
	ErrEmptyRunColumnID     = errors.New("run column ID cannot be empty")
	ErrInvalidRunStatus     = errors.New("invalid run status")
	ErrInvalidRunTransition = errors.New("invalid run status transition")
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusError
}

// CanTransitionTo reports whether the state machine permits moving from s
// to next. Terminal states admit nothing; queued only advances to running;
// running only advances to a terminal state.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunStatusQueued:
		return next == RunStatusRunning
	case RunStatusRunning:
		return next == RunStatusSuccess || next == RunStatusError
	default:
		return false
	}
}

// ProcessorRun records one attempt to apply a column's processor to a
// document. At most one run per (document, column) pair may be in-flight
// (queued or running) at a time; the store enforces this with a partial
// unique index.
type ProcessorRun struct {
	ID           uuid.UUID      `json:"id"`
	ProjectID    uuid.UUID      `json:"project_id"`
	DocumentID   uuid.UUID      `json:"document_id"`
	ColumnID     uuid.UUID      `json:"column_id"`
	Status       RunStatus      `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewProcessorRun creates a run in the initial queued state. Creation is the
// only writer allowed to set queued; all later transitions go through the
// worker via the run store's guarded updates.
func NewProcessorRun(projectID, documentID, columnID uuid.UUID) (*ProcessorRun, error) {
	run := &ProcessorRun{
		ID:         uuid.New(),
		ProjectID:  projectID,
		DocumentID: documentID,
		ColumnID:   columnID,
		Status:     RunStatusQueued,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	if err := run.Validate(); err != nil {
		return nil, err
	}

	return run, nil
}

// Validate checks if the ProcessorRun has valid data.
func (r *ProcessorRun) Validate() error {
	if r.ID == uuid.Nil {
		return ErrEmptyRunID
	}

	if r.ProjectID == uuid.Nil {
		return ErrEmptyRunProjectID
	}

	if r.DocumentID == uuid.Nil {
		return ErrEmptyRunDocumentID
	}

	if r.ColumnID == uuid.Nil {
		return ErrEmptyRunColumnID
	}

	if !isValidRunStatus(r.Status) {
		return ErrInvalidRunStatus
	}

	return nil
}

func isValidRunStatus(s RunStatus) bool {
	switch s {
	case RunStatusQueued, RunStatusRunning, RunStatusSuccess, RunStatusError:
		return true
	default:
		return false
	}
}
