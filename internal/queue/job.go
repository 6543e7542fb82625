package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// JobKind tags the serialized job payload. The set is closed; the workers
// dispatch over it exhaustively and treat unknown kinds as programming
// errors rather than silently skipping them.
type JobKind string

// The closed set of job kinds.
const (
	JobKindColumnProcessor JobKind = "column_processor"
	JobKindPromptRun       JobKind = "prompt_run"
	JobKindBulkProcess     JobKind = "bulk_process"
)

// Common job encoding errors
var (
	ErrUnknownJobKind = errors.New("unknown job kind")
	ErrMalformedJob   = errors.New("malformed job payload")
)

// Job is the closed union of queue payloads.
type Job interface {
	Kind() JobKind
}

// ColumnProcessorJob requests one processor execution against a
// (document, column) pair. It always references an already-created
// ProcessorRun in the queued state; the queue never fabricates ledger rows.
type ColumnProcessorJob struct {
	ProjectID  uuid.UUID
	DocumentID uuid.UUID
	ColumnID   uuid.UUID
	RunID      uuid.UUID
}

// Kind implements Job.
func (ColumnProcessorJob) Kind() JobKind { return JobKindColumnProcessor }

// PromptRunJob requests execution of a free-standing prompt run.
type PromptRunJob struct {
	PromptRunID uuid.UUID
}

// Kind implements Job.
func (PromptRunJob) Kind() JobKind { return JobKindPromptRun }

// BulkProcessJob triggers the bulk orchestrator for a column across a
// project. When DocumentIDs is empty every document in the project is
// targeted.
type BulkProcessJob struct {
	ProjectID   uuid.UUID
	ColumnID    uuid.UUID
	DocumentIDs []uuid.UUID
}

// Kind implements Job.
func (BulkProcessJob) Kind() JobKind { return JobKindBulkProcess }

// envelope is the wire form of a job. Field names are part of the queue's
// storage contract and must stay stable across releases.
type envelope struct {
	Type        JobKind     `json:"type"`
	ProjectID   uuid.UUID   `json:"projectId,omitempty"`
	DocumentID  uuid.UUID   `json:"documentId,omitempty"`
	ColumnID    uuid.UUID   `json:"columnId,omitempty"`
	RunID       uuid.UUID   `json:"runId,omitempty"`
	PromptRunID uuid.UUID   `json:"promptRunId,omitempty"`
	DocumentIDs []uuid.UUID `json:"documentIds,omitempty"`
}

// Marshal serializes a job for storage in the queue.
func Marshal(job Job) ([]byte, error) {
	var env envelope

	switch j := job.(type) {
	case ColumnProcessorJob:
		env = envelope{
			Type:       JobKindColumnProcessor,
			ProjectID:  j.ProjectID,
			DocumentID: j.DocumentID,
			ColumnID:   j.ColumnID,
			RunID:      j.RunID,
		}
	case PromptRunJob:
		env = envelope{
			Type:        JobKindPromptRun,
			PromptRunID: j.PromptRunID,
		}
	case BulkProcessJob:
		env = envelope{
			Type:        JobKindBulkProcess,
			ProjectID:   j.ProjectID,
			ColumnID:    j.ColumnID,
			DocumentIDs: j.DocumentIDs,
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownJobKind, job)
	}

	return json.Marshal(env)
}

// Unmarshal decodes a stored payload back into its concrete job type.
func Unmarshal(data []byte) (Job, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}

	switch env.Type {
	case JobKindColumnProcessor:
		job := ColumnProcessorJob{
			ProjectID:  env.ProjectID,
			DocumentID: env.DocumentID,
			ColumnID:   env.ColumnID,
			RunID:      env.RunID,
		}
		if job.RunID == uuid.Nil {
			return nil, fmt.Errorf("%w: column processor job without run ID", ErrMalformedJob)
		}
		return job, nil
	case JobKindPromptRun:
		if env.PromptRunID == uuid.Nil {
			return nil, fmt.Errorf("%w: prompt run job without prompt run ID", ErrMalformedJob)
		}
		return PromptRunJob{PromptRunID: env.PromptRunID}, nil
	case JobKindBulkProcess:
		if env.ProjectID == uuid.Nil || env.ColumnID == uuid.Nil {
			return nil, fmt.Errorf("%w: bulk process job without project or column ID", ErrMalformedJob)
		}
		return BulkProcessJob{
			ProjectID:   env.ProjectID,
			ColumnID:    env.ColumnID,
			DocumentIDs: env.DocumentIDs,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobKind, env.Type)
	}
}
