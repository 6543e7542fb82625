// Package storage provides the file artifact collaborator consumed by the
// pipeline. Paths follow the convention {project}/{document}/source.{ext}
// and {project}/{document}/thumbnail.png; the pipeline treats the store as
// a black box of byte operations.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStore is the byte-level artifact interface consumed by processors
// and the ingestion service.
type FileStore interface {
	// WriteFile stores bytes at the given relative path, creating parent
	// directories as needed.
	WriteFile(path string, data []byte) error

	// ReadFile returns the bytes stored at the given relative path.
	ReadFile(path string) ([]byte, error)

	// FileExists reports whether a file exists at the given relative path.
	FileExists(path string) (bool, error)

	// DeleteDir removes a directory tree rooted at the given relative path.
	DeleteDir(path string) error
}

// SourcePath returns the conventional artifact path for a document's
// source file with the given extension (without leading dot).
func SourcePath(projectID, documentID uuid.UUID, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	return filepath.Join(projectID.String(), documentID.String(), "source."+ext)
}

// ThumbnailPath returns the conventional artifact path for a document's
// thumbnail image.
func ThumbnailPath(projectID, documentID uuid.UUID) string {
	return filepath.Join(projectID.String(), documentID.String(), "thumbnail.png")
}

// DocumentDir returns the directory holding all of a document's artifacts.
func DocumentDir(projectID, documentID uuid.UUID) string {
	return filepath.Join(projectID.String(), documentID.String())
}

// LocalFileStore implements FileStore on the local filesystem under a
// fixed root directory. Relative paths are confined to the root.
type LocalFileStore struct {
	root string
}

// NewLocalFileStore creates a LocalFileStore rooted at the given directory,
// creating it if necessary.
func NewLocalFileStore(root string) (*LocalFileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root cannot be empty")
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	return &LocalFileStore{root: root}, nil
}

var _ FileStore = (*LocalFileStore)(nil)

// WriteFile implements FileStore.WriteFile.
func (s *LocalFileStore) WriteFile(path string, data []byte) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	return nil
}

// ReadFile implements FileStore.ReadFile.
func (s *LocalFileStore) ReadFile(path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	return data, nil
}

// FileExists implements FileStore.FileExists.
func (s *LocalFileStore) FileExists(path string) (bool, error) {
	full, err := s.resolve(path)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat artifact: %w", err)
}

// DeleteDir implements FileStore.DeleteDir.
func (s *LocalFileStore) DeleteDir(path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("failed to delete artifact directory: %w", err)
	}

	return nil
}

// resolve joins the relative path under the root and rejects escapes.
func (s *LocalFileStore) resolve(path string) (string, error) {
	full := filepath.Join(s.root, path)

	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes storage root", path)
	}

	return full, nil
}
