// Package artifact reads and writes the files a run produces.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var ErrNotFound = errors.New("artifact not found")

// Store resolves relative paths under a root directory. Absolute paths are
// used as given.
type Store struct {
	root string
}

func New(root string) *Store {
	if root == "" {
		root = "."
	}
	return &Store{root: root}
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.root, path)
}

// Read returns the file contents, or an error wrapping ErrNotFound.
func (s *Store) Read(path string) (string, error) {
	data, err := os.ReadFile(s.Resolve(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read %s: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// Write replaces the file contents, creating parent directories.
func (s *Store) Write(path, content string) error {
	full := s.Resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
