package kvstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FS stores each key as one JSON file under a base directory. Writes go
// through a temp file and rename so readers never see a torn value.
type FS struct {
	dir string
}

// NewFS creates the base directory if needed and returns a file store.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	return &FS{dir: dir}, nil
}

// Path returns the file backing a key.
func (s *FS) Path(key string) string {
	return filepath.Join(s.dir, encodeKey(key)+".json")
}

func (s *FS) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

func (s *FS) Set(ctx context.Context, key string, value []byte) error {
	path := s.Path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("committing %s: %w", key, err)
	}
	return nil
}

func (s *FS) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.Path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// encodeKey maps the colon-separated key scheme onto a filesystem-safe
// file name.
func encodeKey(key string) string {
	return strings.ReplaceAll(key, ":", "__")
}
