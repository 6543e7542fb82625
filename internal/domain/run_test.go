package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewProcessorRun(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()
	documentID := uuid.New()
	columnID := uuid.New()

	run, err := NewProcessorRun(projectID, documentID, columnID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if run.ID == uuid.Nil {
		t.Error("Expected non-nil run ID")
	}

	if run.Status != RunStatusQueued {
		t.Errorf("Expected initial status queued, got %s", run.Status)
	}

	if run.CreatedAt.IsZero() {
		t.Error("Expected non-zero CreatedAt time")
	}

	// Missing identifiers are rejected
	if _, err := NewProcessorRun(uuid.Nil, documentID, columnID); err != ErrEmptyRunProjectID {
		t.Errorf("Expected %v, got %v", ErrEmptyRunProjectID, err)
	}
	if _, err := NewProcessorRun(projectID, uuid.Nil, columnID); err != ErrEmptyRunDocumentID {
		t.Errorf("Expected %v, got %v", ErrEmptyRunDocumentID, err)
	}
	if _, err := NewProcessorRun(projectID, documentID, uuid.Nil); err != ErrEmptyRunColumnID {
		t.Errorf("Expected %v, got %v", ErrEmptyRunColumnID, err)
	}
}

func TestRunStatusCanTransitionTo(t *testing.T) {
	t.Parallel()

	allowed := map[RunStatus]map[RunStatus]bool{
		RunStatusQueued:  {RunStatusRunning: true},
		RunStatusRunning: {RunStatusSuccess: true, RunStatusError: true},
		RunStatusSuccess: {},
		RunStatusError:   {},
	}

	statuses := []RunStatus{RunStatusQueued, RunStatusRunning, RunStatusSuccess, RunStatusError}
	for _, from := range statuses {
		for _, to := range statuses {
			got := from.CanTransitionTo(to)
			want := allowed[from][to]
			if got != want {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestRunStatusTerminal(t *testing.T) {
	t.Parallel()

	if RunStatusQueued.Terminal() || RunStatusRunning.Terminal() {
		t.Error("queued and running must not be terminal")
	}
	if !RunStatusSuccess.Terminal() || !RunStatusError.Terminal() {
		t.Error("success and error must be terminal")
	}
}
