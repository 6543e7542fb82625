package testutils

import (
	"fmt"
	"strings"
	"sync"

	"github.com/quillhq/docpipe/internal/platform/storage"
)

// FakeFileStore is an in-memory FileStore keyed by relative path.
type FakeFileStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewFakeFileStore creates an empty FakeFileStore.
func NewFakeFileStore() *FakeFileStore {
	return &FakeFileStore{files: map[string][]byte{}}
}

var _ storage.FileStore = (*FakeFileStore)(nil)

// WriteFile implements storage.FileStore.
func (s *FakeFileStore) WriteFile(path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.files[path] = cp
	return nil
}

// ReadFile implements storage.FileStore.
func (s *FakeFileStore) ReadFile(path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("artifact %q not found", path)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// FileExists implements storage.FileStore.
func (s *FakeFileStore) FileExists(path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[path]
	return ok, nil
}

// DeleteDir implements storage.FileStore.
func (s *FakeFileStore) DeleteDir(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(path, "/") + "/"
	for p := range s.files {
		if strings.HasPrefix(p, prefix) {
			delete(s.files, p)
		}
	}
	return nil
}

// Len reports the number of stored artifacts.
func (s *FakeFileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}
