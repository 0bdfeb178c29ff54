// Package file provides a filesystem implementation of the snapshot store.
//
// Each collection lives in its own JSON file under a base directory. Writes
// go through a temporary file followed by an atomic rename, so a crash
// mid-write leaves the previous snapshot intact.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store implements storage.SnapshotStore on the local filesystem.
type Store struct {
	// dir is the base directory holding one file per collection.
	dir string

	// mu serializes writes so two saves of the same collection cannot
	// interleave their temp-file dance.
	mu sync.Mutex
}

// Config contains configuration for creating a file snapshot store.
type Config struct {
	// Dir is the directory that holds the collection files.
	// Created if it does not exist.
	Dir string
}

// NewStore creates a file-backed snapshot store rooted at cfg.Dir.
func NewStore(cfg *Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("file store: directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: create directory: %w", err)
	}
	return &Store{dir: cfg.Dir}, nil
}

// Load reads the snapshot file for a collection.
// A missing file is not an error; it returns (nil, nil).
func (s *Store) Load(ctx context.Context, collection string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(collection))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: load %s: %w", collection, err)
	}
	return data, nil
}

// Save atomically replaces the snapshot file for a collection.
func (s *Store) Save(ctx context.Context, collection string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, collection+".*.tmp")
	if err != nil {
		return fmt.Errorf("file store: save %s: %w", collection, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("file store: save %s: %w", collection, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("file store: save %s: %w", collection, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("file store: save %s: %w", collection, err)
	}

	if err := os.Rename(tmpName, s.path(collection)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("file store: save %s: %w", collection, err)
	}
	return nil
}

// Close is a no-op for the file backend.
func (s *Store) Close() error {
	return nil
}

func (s *Store) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}
