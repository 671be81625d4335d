// Package filestore provides a small key-value blob store backed by a
// directory of files. Card and session persistence go through it so the rest
// of the code never touches the filesystem directly.
package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Read for keys with no entry.
var ErrNotFound = errors.New("filestore: not found")

// Store maps opaque keys to byte blobs. Keys may contain path separators;
// parent directories are created on demand.
type Store interface {
	Read(key string) ([]byte, error)
	// Write publishes the blob atomically: readers either see the previous
	// value or the full new one, never a partial write.
	Write(key string, data []byte) error
	Delete(key string) error
	// List returns the keys directly under the given prefix (non-recursive).
	List(prefix string) ([]string, error)
}

type DirStore struct {
	root string
}

func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: mkdir %s: %w", root, err)
	}
	return &DirStore{root: root}, nil
}

func (s *DirStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *DirStore) Read(key string) ([]byte, error) {
	b, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("filestore: read %s: %w", key, err)
	}
	return b, nil
}

// Write stages the blob in a temp file next to the target and renames it into
// place, so a concurrent Read never observes a partial value. Concurrent
// writers race with last-writer-wins semantics.
func (s *DirStore) Write(key string, data []byte) error {
	target := s.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("filestore: mkdir for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("filestore: temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestore: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: publish %s: %w", key, err)
	}
	return nil
}

func (s *DirStore) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("filestore: delete %s: %w", key, err)
	}
	return nil
}

func (s *DirStore) List(prefix string) ([]string, error) {
	dir := filepath.Join(s.root, filepath.FromSlash(prefix))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("filestore: list %s: %w", prefix, err)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) > 0 && name[0] == '.' {
			continue
		}
		if prefix == "" {
			keys = append(keys, name)
		} else {
			keys = append(keys, prefix+"/"+name)
		}
	}
	return keys, nil
}
