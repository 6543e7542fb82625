package processor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/fetchguard"
)

// fakeFileStore is an in-memory storage.FileStore.
type fakeFileStore struct {
	files    map[string][]byte
	readErr  error
	writeErr error
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{files: map[string][]byte{}}
}

func (f *fakeFileStore) WriteFile(path string, data []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.files[path] = data
	return nil
}

func (f *fakeFileStore) ReadFile(path string) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("no file at %q", path)
	}
	return data, nil
}

func (f *fakeFileStore) FileExists(path string) (bool, error) {
	_, ok := f.files[path]
	return ok, nil
}

func (f *fakeFileStore) DeleteDir(path string) error {
	for p := range f.files {
		if len(p) >= len(path) && p[:len(path)] == path {
			delete(f.files, p)
		}
	}
	return nil
}

// fakeEmbedder returns a fixed-size vector derived from the input length.
type fakeEmbedder struct {
	err   error
	calls []string
}

func (f *fakeEmbedder) EmbedText(_ context.Context, _ string, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, text)
	return []float32{float32(len(text)), 1, 2}, nil
}

// fakeGenerator echoes the prompt back with a marker.
type fakeGenerator struct {
	err     error
	prompts []string
}

func (f *fakeGenerator) GenerateText(_ context.Context, _ string, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.prompts = append(f.prompts, prompt)
	return "generated: " + prompt, nil
}

// fakeFetcher serves canned content or errors.
type fakeFetcher struct {
	content *fetchguard.Content
	err     error
}

func (f *fakeFetcher) Fetch(context.Context, string) (*fetchguard.Content, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.content, nil
}

func uploadDoc(values map[string]any, filePath string) *domain.Document {
	if values == nil {
		values = map[string]any{}
	}
	return &domain.Document{
		ID:        uuid.New(),
		ProjectID: uuid.New(),
		Name:      "Test Document",
		Source:    domain.SourceTypeUpload,
		FilePath:  filePath,
		Values:    values,
	}
}

func processorColumn(t domain.ProcessorType, cfg *domain.ProcessorConfig) *domain.Column {
	return &domain.Column{
		ID:            uuid.New(),
		ProjectID:     uuid.New(),
		Key:           "derived",
		Name:          "Derived",
		ValueType:     domain.ValueTypeText,
		Mode:          domain.ColumnModeProcessor,
		ProcessorType: t,
		Config:        cfg,
	}
}
