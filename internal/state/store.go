// Package state provides the persistence layer for chatbridge: a
// key-value store of named JSON blobs on durable storage. The history
// store and the prompt manager persist their snapshots through it, one
// key per logical record (chat_history, prompt_state,
// archived_history_<conversation>).
//
// Two backends exist: a plain file store (one JSON file per key under
// the data directory) and a SQLite store. Persistence failures are never
// fatal to callers — a failed load is treated as absent state.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is the interface both backends implement. Values are marshalled
// to and from JSON; LoadState reports ok=false when the key is absent.
type Store interface {
	// SaveState marshals v and persists it under key.
	SaveState(key string, v any) error

	// LoadState reads the blob for key into v. Returns (false, nil)
	// when no blob exists.
	LoadState(key string, v any) (bool, error)

	// DeleteState removes the blob for key. Deleting a missing key is
	// not an error.
	DeleteState(key string) error

	// Keys returns all stored keys with the given prefix.
	Keys(prefix string) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// FileStore persists each key as <dir>/<key>.json, mirroring the
// original data-directory layout. Writes go through a temp file and
// rename so a crash mid-write never leaves a truncated blob.
type FileStore struct {
	dir string
}

// NewFileStore creates the data directory if needed and returns a store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// SaveState writes v as indented JSON under key.
func (s *FileStore) SaveState(key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// LoadState reads the blob for key into v.
func (s *FileStore) LoadState(key string, v any) (bool, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// DeleteState removes the blob for key.
func (s *FileStore) DeleteState(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Keys returns all stored keys with the given prefix.
func (s *FileStore) Keys(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list state dir: %w", err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		key := strings.TrimSuffix(name, ".json")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error { return nil }
