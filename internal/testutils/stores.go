package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/store"
)

// FakeRunStore is an in-memory RunStore honoring the guarded transition
// and in-flight uniqueness semantics of the Postgres implementation.
type FakeRunStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*domain.ProcessorRun
}

// NewFakeRunStore creates an empty FakeRunStore.
func NewFakeRunStore() *FakeRunStore {
	return &FakeRunStore{runs: map[uuid.UUID]*domain.ProcessorRun{}}
}

var _ store.RunStore = (*FakeRunStore)(nil)

// Add seeds a run, bypassing the in-flight check.
func (s *FakeRunStore) Add(run *domain.ProcessorRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
}

// Get returns a copy of the stored run, or nil.
func (s *FakeRunStore) Get(id uuid.UUID) *domain.ProcessorRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		cp := *run
		return &cp
	}
	return nil
}

// Len reports the number of stored runs.
func (s *FakeRunStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// CreateIfAbsent implements store.RunStore.
func (s *FakeRunStore) CreateIfAbsent(_ context.Context, run *domain.ProcessorRun) (bool, *domain.ProcessorRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.runs {
		if existing.DocumentID == run.DocumentID &&
			existing.ColumnID == run.ColumnID &&
			!existing.Status.Terminal() {
			cp := *existing
			return false, &cp, nil
		}
	}

	cp := *run
	s.runs[run.ID] = &cp
	return true, nil, nil
}

// GetByID implements store.RunStore.
func (s *FakeRunStore) GetByID(_ context.Context, id uuid.UUID) (*domain.ProcessorRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

// Transition implements store.RunStore.
func (s *FakeRunStore) Transition(_ context.Context, id uuid.UUID, from, to domain.RunStatus, errorMsg string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return store.ErrRunNotFound
	}
	if run.Status != from {
		return store.ErrStaleTransition
	}

	run.Status = to
	run.ErrorMessage = errorMsg
	if metadata != nil {
		if run.Metadata == nil {
			run.Metadata = map[string]any{}
		}
		for k, v := range metadata {
			run.Metadata[k] = v
		}
	}
	run.UpdatedAt = time.Now().UTC()
	return nil
}

// ListByDocument implements store.RunStore.
func (s *FakeRunStore) ListByDocument(_ context.Context, documentID uuid.UUID) ([]*domain.ProcessorRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.ProcessorRun
	for _, run := range s.runs {
		if run.DocumentID == documentID {
			cp := *run
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ListQueuedOlderThan implements store.RunStore.
func (s *FakeRunStore) ListQueuedOlderThan(_ context.Context, cutoff time.Time) ([]*domain.ProcessorRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.ProcessorRun
	for _, run := range s.runs {
		if run.Status == domain.RunStatusQueued && run.CreatedAt.Before(cutoff) {
			cp := *run
			out = append(out, &cp)
		}
	}
	return out, nil
}

// FakeDocumentStore is an in-memory DocumentStore.
type FakeDocumentStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*domain.Document
}

// NewFakeDocumentStore creates a FakeDocumentStore seeded with documents.
func NewFakeDocumentStore(docs ...*domain.Document) *FakeDocumentStore {
	s := &FakeDocumentStore{docs: map[uuid.UUID]*domain.Document{}}
	for _, doc := range docs {
		cp := *doc
		s.docs[doc.ID] = &cp
	}
	return s
}

var _ store.DocumentStore = (*FakeDocumentStore)(nil)

// Create implements store.DocumentStore.
func (s *FakeDocumentStore) Create(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

// GetByID implements store.DocumentStore.
func (s *FakeDocumentStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, store.ErrDocumentNotFound
	}
	cp := *doc
	return &cp, nil
}

// ListByProject implements store.DocumentStore.
func (s *FakeDocumentStore) ListByProject(_ context.Context, projectID uuid.UUID) ([]*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Document
	for _, doc := range s.docs {
		if doc.ProjectID == projectID {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}

// SetValue implements store.DocumentStore.
func (s *FakeDocumentStore) SetValue(_ context.Context, id uuid.UUID, columnKey string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return store.ErrDocumentNotFound
	}
	if doc.Values == nil {
		doc.Values = map[string]any{}
	}
	doc.Values[columnKey] = value
	return nil
}

// SetFilePath implements store.DocumentStore.
func (s *FakeDocumentStore) SetFilePath(_ context.Context, id uuid.UUID, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return store.ErrDocumentNotFound
	}
	doc.FilePath = filePath
	return nil
}

// Delete implements store.DocumentStore.
func (s *FakeDocumentStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return store.ErrDocumentNotFound
	}
	delete(s.docs, id)
	return nil
}

// FakeColumnStore is an in-memory ColumnStore enforcing key uniqueness
// per project.
type FakeColumnStore struct {
	mu   sync.Mutex
	cols map[uuid.UUID]*domain.Column

	// CreateHook runs inside Create before the insert, letting tests
	// inject a racing writer.
	CreateHook func()
}

// NewFakeColumnStore creates a FakeColumnStore seeded with columns.
func NewFakeColumnStore(cols ...*domain.Column) *FakeColumnStore {
	s := &FakeColumnStore{cols: map[uuid.UUID]*domain.Column{}}
	for _, col := range cols {
		cp := *col
		s.cols[col.ID] = &cp
	}
	return s
}

var _ store.ColumnStore = (*FakeColumnStore)(nil)

// Create implements store.ColumnStore.
func (s *FakeColumnStore) Create(_ context.Context, col *domain.Column) error {
	if s.CreateHook != nil {
		s.CreateHook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.cols {
		if existing.ProjectID == col.ProjectID && existing.Key == col.Key {
			return store.ErrColumnKeyExists
		}
	}
	cp := *col
	s.cols[col.ID] = &cp
	return nil
}

// GetByID implements store.ColumnStore.
func (s *FakeColumnStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.cols[id]
	if !ok {
		return nil, store.ErrColumnNotFound
	}
	cp := *col
	return &cp, nil
}

// GetByKey implements store.ColumnStore.
func (s *FakeColumnStore) GetByKey(_ context.Context, projectID uuid.UUID, key string) (*domain.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, col := range s.cols {
		if col.ProjectID == projectID && col.Key == key {
			cp := *col
			return &cp, nil
		}
	}
	return nil, store.ErrColumnNotFound
}

// ListByProject implements store.ColumnStore.
func (s *FakeColumnStore) ListByProject(_ context.Context, projectID uuid.UUID) ([]*domain.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Column
	for _, col := range s.cols {
		if col.ProjectID == projectID {
			cp := *col
			out = append(out, &cp)
		}
	}
	return out, nil
}

// NextPosition implements store.ColumnStore.
func (s *FakeColumnStore) NextPosition(_ context.Context, projectID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := 0
	for _, col := range s.cols {
		if col.ProjectID == projectID && col.Position >= next {
			next = col.Position + 1
		}
	}
	return next, nil
}

// FakeProjectStore is an in-memory ProjectStore.
type FakeProjectStore struct {
	mu       sync.Mutex
	projects map[uuid.UUID]*domain.Project
}

// NewFakeProjectStore creates a FakeProjectStore seeded with projects.
func NewFakeProjectStore(projects ...*domain.Project) *FakeProjectStore {
	s := &FakeProjectStore{projects: map[uuid.UUID]*domain.Project{}}
	for _, p := range projects {
		cp := *p
		s.projects[p.ID] = &cp
	}
	return s
}

var _ store.ProjectStore = (*FakeProjectStore)(nil)

// Create implements store.ProjectStore.
func (s *FakeProjectStore) Create(_ context.Context, project *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *project
	s.projects[project.ID] = &cp
	return nil
}

// GetByID implements store.ProjectStore.
func (s *FakeProjectStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, store.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

// FakePromptRunStore is an in-memory PromptRunStore.
type FakePromptRunStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*domain.PromptRun
}

// NewFakePromptRunStore creates an empty FakePromptRunStore.
func NewFakePromptRunStore() *FakePromptRunStore {
	return &FakePromptRunStore{runs: map[uuid.UUID]*domain.PromptRun{}}
}

var _ store.PromptRunStore = (*FakePromptRunStore)(nil)

// Create implements store.PromptRunStore.
func (s *FakePromptRunStore) Create(_ context.Context, run *domain.PromptRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

// GetByID implements store.PromptRunStore.
func (s *FakePromptRunStore) GetByID(_ context.Context, id uuid.UUID) (*domain.PromptRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, store.ErrPromptRunNotFound
	}
	cp := *run
	return &cp, nil
}

// Transition implements store.PromptRunStore.
func (s *FakePromptRunStore) Transition(_ context.Context, id uuid.UUID, from, to domain.RunStatus, result, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return store.ErrPromptRunNotFound
	}
	if run.Status != from {
		return store.ErrStaleTransition
	}

	run.Status = to
	if to == domain.RunStatusSuccess {
		run.Result = result
	}
	run.ErrorMessage = errorMsg
	run.UpdatedAt = time.Now().UTC()
	return nil
}

// FakeJobStore is an in-memory JobStore covering the queue client's
// enqueue and acknowledgement surface.
type FakeJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*store.JobRecord
}

// NewFakeJobStore creates an empty FakeJobStore.
func NewFakeJobStore() *FakeJobStore {
	return &FakeJobStore{jobs: map[uuid.UUID]*store.JobRecord{}}
}

var _ store.JobStore = (*FakeJobStore)(nil)

// Enqueue implements store.JobStore.
func (s *FakeJobStore) Enqueue(_ context.Context, lane string, payload []byte, maxAttempts int) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	s.jobs[id] = &store.JobRecord{
		ID:          id,
		Lane:        lane,
		Payload:     payload,
		Status:      store.JobStatusAvailable,
		MaxAttempts: maxAttempts,
		AvailableAt: time.Now().UTC(),
		CreatedAt:   time.Now().UTC(),
	}
	return id, nil
}

// Lease implements store.JobStore. Unlike the Postgres store it ignores
// backoff timestamps so tests need not wait.
func (s *FakeJobStore) Lease(_ context.Context, lane string, limit int, expiry time.Duration) ([]*store.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*store.JobRecord
	for _, rec := range s.jobs {
		if len(out) >= limit {
			break
		}
		if rec.Lane == lane && rec.Status == store.JobStatusAvailable {
			rec.Status = store.JobStatusLeased
			until := time.Now().UTC().Add(expiry)
			rec.LeasedUntil = &until
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Complete implements store.JobStore.
func (s *FakeJobStore) Complete(_ context.Context, id uuid.UUID) error {
	return s.setStatus(id, store.JobStatusDone)
}

// Fail implements store.JobStore.
func (s *FakeJobStore) Fail(_ context.Context, id uuid.UUID, retryDelay time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return false, store.ErrJobNotFound
	}

	rec.Attempts++
	if rec.Attempts >= rec.MaxAttempts {
		rec.Status = store.JobStatusDead
		return false, nil
	}
	rec.Status = store.JobStatusAvailable
	rec.AvailableAt = time.Now().UTC().Add(retryDelay)
	return true, nil
}

// Drop implements store.JobStore.
func (s *FakeJobStore) Drop(_ context.Context, id uuid.UUID) error {
	return s.setStatus(id, store.JobStatusDead)
}

func (s *FakeJobStore) setStatus(id uuid.UUID, status store.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	rec.Status = status
	return nil
}

// Status reports the stored status of a job.
func (s *FakeJobStore) Status(id uuid.UUID) store.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.jobs[id]; ok {
		return rec.Status
	}
	return ""
}

// CountByLane reports how many jobs have been enqueued on a lane.
func (s *FakeJobStore) CountByLane(lane string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.jobs {
		if rec.Lane == lane {
			n++
		}
	}
	return n
}
