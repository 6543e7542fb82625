package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillhq/docpipe/internal/config"
	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/queue"
	"github.com/quillhq/docpipe/internal/store"
	"github.com/quillhq/docpipe/internal/testutils"
)

type processingFixture struct {
	projects   *testutils.FakeProjectStore
	docs       *testutils.FakeDocumentStore
	cols       *testutils.FakeColumnStore
	runs       *testutils.FakeRunStore
	promptRuns *testutils.FakePromptRunStore
	jobs       *testutils.FakeJobStore

	svc *ProcessingService

	project *domain.Project
	doc     *domain.Document
	col     *domain.Column
}

func newProcessingFixture(t *testing.T) *processingFixture {
	t.Helper()

	project, err := domain.NewProject("Trigger Project")
	require.NoError(t, err)

	doc, err := domain.NewUploadDocument(project.ID, "Doc", "p/d/source.txt")
	require.NoError(t, err)

	col, err := domain.NewProcessorColumn(project.ID, "extracted", "Extracted",
		domain.ValueTypeText, domain.ProcessorTypeExtract,
		&domain.ProcessorConfig{Extract: &domain.ExtractConfig{}}, 0)
	require.NoError(t, err)

	f := &processingFixture{
		projects:   testutils.NewFakeProjectStore(project),
		docs:       testutils.NewFakeDocumentStore(doc),
		cols:       testutils.NewFakeColumnStore(col),
		runs:       testutils.NewFakeRunStore(),
		promptRuns: testutils.NewFakePromptRunStore(),
		jobs:       testutils.NewFakeJobStore(),
		project:    project,
		doc:        doc,
		col:        col,
	}

	client := queue.NewClient(f.jobs, config.QueueConfig{
		ProcessConcurrency: 2,
		ProcessMaxRetries:  2,
		BulkMaxRetries:     1,
	}, testutils.Logger())

	f.svc = NewProcessingService(f.projects, f.docs, f.cols, f.runs, f.promptRuns,
		client, time.Minute, testutils.Logger())

	return f
}

func TestTriggerRunCreatesRunAndJob(t *testing.T) {
	t.Parallel()

	f := newProcessingFixture(t)

	run, created, err := f.svc.TriggerRun(context.Background(), f.project.ID, f.doc.ID, f.col.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.RunStatusQueued, run.Status)

	assert.Equal(t, 1, f.runs.Len())
	assert.Equal(t, 1, f.jobs.CountByLane(queue.LaneProcess))
}

func TestTriggerRunIsIdempotentWhileInFlight(t *testing.T) {
	t.Parallel()

	f := newProcessingFixture(t)

	first, created, err := f.svc.TriggerRun(context.Background(), f.project.ID, f.doc.ID, f.col.ID)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := f.svc.TriggerRun(context.Background(), f.project.ID, f.doc.ID, f.col.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// The duplicate trigger enqueued nothing.
	assert.Equal(t, 1, f.jobs.CountByLane(queue.LaneProcess))
}

func TestTriggerRunConcurrentDuplicatesYieldOneRun(t *testing.T) {
	t.Parallel()

	f := newProcessingFixture(t)

	// Racing triggers for the same (document, column) pair must collapse
	// into one run and one enqueued job; the losers get the winner's run.
	const racers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		wins       int
		observedID = make(map[uuid.UUID]struct{})
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			run, created, err := f.svc.TriggerRun(context.Background(), f.project.ID, f.doc.ID, f.col.ID)
			assert.NoError(t, err)
			if err != nil {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			if created {
				wins++
			}
			observedID[run.ID] = struct{}{}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one trigger should create the run")
	assert.Len(t, observedID, 1, "every trigger should observe the same run")
	assert.Equal(t, 1, f.runs.Len())
	assert.Equal(t, 1, f.jobs.CountByLane(queue.LaneProcess))
}

func TestTriggerRunAfterTerminalCreatesFresh(t *testing.T) {
	t.Parallel()

	f := newProcessingFixture(t)

	first, _, err := f.svc.TriggerRun(context.Background(), f.project.ID, f.doc.ID, f.col.ID)
	require.NoError(t, err)

	require.NoError(t, f.runs.Transition(context.Background(), first.ID,
		domain.RunStatusQueued, domain.RunStatusRunning, "", nil))
	require.NoError(t, f.runs.Transition(context.Background(), first.ID,
		domain.RunStatusRunning, domain.RunStatusSuccess, "", nil))

	second, created, err := f.svc.TriggerRun(context.Background(), f.project.ID, f.doc.ID, f.col.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, f.jobs.CountByLane(queue.LaneProcess))
}

func TestTriggerRunRejections(t *testing.T) {
	t.Parallel()

	t.Run("column in another project", func(t *testing.T) {
		t.Parallel()

		f := newProcessingFixture(t)
		_, _, err := f.svc.TriggerRun(context.Background(), uuid.New(), f.doc.ID, f.col.ID)
		assert.ErrorIs(t, err, store.ErrColumnNotFound)
	})

	t.Run("manual column", func(t *testing.T) {
		t.Parallel()

		f := newProcessingFixture(t)
		manual, err := domain.NewManualColumn(f.project.ID, "notes", "Notes", domain.ValueTypeText, 1)
		require.NoError(t, err)
		require.NoError(t, f.cols.Create(context.Background(), manual))

		_, _, err = f.svc.TriggerRun(context.Background(), f.project.ID, f.doc.ID, manual.ID)
		assert.ErrorIs(t, err, ErrNotProcessorColumn)
	})

	t.Run("missing document", func(t *testing.T) {
		t.Parallel()

		f := newProcessingFixture(t)
		_, _, err := f.svc.TriggerRun(context.Background(), f.project.ID, uuid.New(), f.col.ID)
		assert.ErrorIs(t, err, store.ErrDocumentNotFound)
	})

	t.Run("rejected triggers enqueue nothing", func(t *testing.T) {
		t.Parallel()

		f := newProcessingFixture(t)
		_, _, err := f.svc.TriggerRun(context.Background(), f.project.ID, uuid.New(), f.col.ID)
		require.Error(t, err)
		assert.Equal(t, 0, f.jobs.CountByLane(queue.LaneProcess))
		assert.Equal(t, 0, f.runs.Len())
	})
}

func TestTriggerBulkEnqueuesBulkLane(t *testing.T) {
	t.Parallel()

	f := newProcessingFixture(t)

	jobID, err := f.svc.TriggerBulk(context.Background(), f.project.ID, f.col.ID, nil)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, jobID)

	// Fan-out is deferred to the bulk lane; no runs exist yet.
	assert.Equal(t, 1, f.jobs.CountByLane(queue.LaneBulk))
	assert.Equal(t, 0, f.runs.Len())
}

func TestTriggerBulkRejectsManualColumn(t *testing.T) {
	t.Parallel()

	f := newProcessingFixture(t)
	manual, err := domain.NewManualColumn(f.project.ID, "notes", "Notes", domain.ValueTypeText, 1)
	require.NoError(t, err)
	require.NoError(t, f.cols.Create(context.Background(), manual))

	_, err = f.svc.TriggerBulk(context.Background(), f.project.ID, manual.ID, nil)
	assert.ErrorIs(t, err, ErrNotProcessorColumn)
	assert.Equal(t, 0, f.jobs.CountByLane(queue.LaneBulk))
}

func TestRunPrompt(t *testing.T) {
	t.Parallel()

	f := newProcessingFixture(t)

	run, err := f.svc.RunPrompt(context.Background(), f.project.ID, "Summarize the corpus", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusQueued, run.Status)

	stored, err := f.promptRuns.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "Summarize the corpus", stored.Prompt)
	assert.Equal(t, 1, f.jobs.CountByLane(queue.LaneProcess))
}

func TestRunPromptRequiresProject(t *testing.T) {
	t.Parallel()

	f := newProcessingFixture(t)

	_, err := f.svc.RunPrompt(context.Background(), uuid.New(), "Summarize", "")
	assert.ErrorIs(t, err, store.ErrProjectNotFound)
	assert.Equal(t, 0, f.jobs.CountByLane(queue.LaneProcess))
}

func TestRunHistory(t *testing.T) {
	t.Parallel()

	f := newProcessingFixture(t)

	run, _, err := f.svc.TriggerRun(context.Background(), f.project.ID, f.doc.ID, f.col.ID)
	require.NoError(t, err)

	history, err := f.svc.RunHistory(context.Background(), f.doc.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, run.ID, history[0].ID)

	_, err = f.svc.RunHistory(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrDocumentNotFound)
}

func TestRequeueStuckTargetsOldQueuedRuns(t *testing.T) {
	t.Parallel()

	f := newProcessingFixture(t)

	addRun := func(age time.Duration, status domain.RunStatus) *domain.ProcessorRun {
		doc, err := domain.NewUploadDocument(f.project.ID, "Doc", "p/d/source.txt")
		require.NoError(t, err)
		require.NoError(t, f.docs.Create(context.Background(), doc))

		run, err := domain.NewProcessorRun(f.project.ID, doc.ID, f.col.ID)
		require.NoError(t, err)
		run.Status = status
		run.CreatedAt = time.Now().UTC().Add(-age)
		f.runs.Add(run)
		return run
	}

	stale := addRun(2*time.Minute, domain.RunStatusQueued)
	addRun(time.Second, domain.RunStatusQueued)
	addRun(2*time.Minute, domain.RunStatusRunning)

	requeued, err := f.svc.RequeueStuck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	assert.Equal(t, 1, f.jobs.CountByLane(queue.LaneProcess))

	// The stale run itself is untouched; only its job is replaced.
	assert.Equal(t, domain.RunStatusQueued, f.runs.Get(stale.ID).Status)
}
