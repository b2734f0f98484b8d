package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BlobStore persists photo bytes under a name. The attachment manager is
// the only caller.
type BlobStore interface {
	Store(name string, src io.Reader) error
	Delete(name string) error
	Path(name string) string
}

type diskStore struct {
	baseDir string
}

// NewDiskStore creates a BlobStore backed by a directory on disk
func NewDiskStore(baseDir string) (BlobStore, error) {
	if err := os.MkdirAll(baseDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory %s: %w", baseDir, err)
	}
	return &diskStore{baseDir: baseDir}, nil
}

// Store writes the blob to disk. A partially written file is removed on
// failure so a failed store leaves nothing behind.
func (s *diskStore) Store(name string, src io.Reader) error {
	path := filepath.Join(s.baseDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file on server: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return fmt.Errorf("failed to save file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close file on server: %w", err)
	}
	return nil
}

// Delete removes a stored blob
func (s *diskStore) Delete(name string) error {
	if err := os.Remove(filepath.Join(s.baseDir, name)); err != nil {
		return fmt.Errorf("failed to remove stored file: %w", err)
	}
	return nil
}

// Path returns the on-disk location of a stored blob, for serving it back
func (s *diskStore) Path(name string) string {
	return filepath.Join(s.baseDir, name)
}
