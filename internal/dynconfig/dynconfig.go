// Package dynconfig provides a small persisted key-value store for runtime
// state that must survive restarts, such as the ACL reconciliation
// completion marker. Values are JSON so callers can store structured state.
package dynconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned by Load when the key has never been stored.
var ErrNotFound = errors.New("config key not found")

// Store persists dynamic configuration values by key.
type Store interface {
	// Load returns the value for key, or ErrNotFound.
	Load(key string) (json.RawMessage, error)

	// Store persists value under key, overwriting any previous value.
	Store(key string, value any) error
}

// FileStore is a filesystem-backed Store. Each key is one JSON file in the
// root directory. Writes are atomic (temp file + rename).
type FileStore struct {
	mu   sync.Mutex
	root string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config store directory: %w", err)
	}
	return &FileStore{root: dir}, nil
}

// Load returns the value for key, or ErrNotFound.
func (s *FileStore) Load(key string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read config key %q: %w", key, err)
	}
	return json.RawMessage(data), nil
}

// Store persists value under key, overwriting any previous value.
func (s *FileStore) Store(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal config value for %q: %w", key, err)
	}

	path := s.keyPath(key)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config key %q: %w", key, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to persist config key %q: %w", key, err)
	}
	return nil
}

// keyPath maps a key to its file path. Path separators in keys are
// flattened so a key can never escape the store root.
func (s *FileStore) keyPath(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(s.root, safe+".json")
}
