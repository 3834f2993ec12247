// Package local keeps evidence blobs on the local disk.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"service_hours_backend/storage"
)

const prefix = "evidence/"

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type Store struct {
	dir string
}

var _ storage.EvidenceStore = (*Store)(nil)

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, prefix), 0o755); err != nil {
		return nil, fmt.Errorf("error creating evidence directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Put(_ context.Context, data []byte, contentType string) (string, error) {
	ref := prefix + uuid.NewString() + extensions[contentType]
	if err := os.WriteFile(filepath.Join(s.dir, ref), data, 0o644); err != nil {
		return "", fmt.Errorf("error writing evidence: %w", err)
	}
	return ref, nil
}

func (s *Store) Delete(_ context.Context, ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error deleting evidence %s: %w", ref, err)
	}
	return nil
}

// path resolves ref inside the evidence directory. References that escape
// it, or that were not issued by this store, are rejected.
func (s *Store) path(ref string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean(ref))
	if !strings.HasPrefix(clean, prefix) || strings.Contains(clean, "..") {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidReference, ref)
	}
	return filepath.Join(s.dir, clean), nil
}
