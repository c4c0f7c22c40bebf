// Package store persists the step baseline across restarts.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// BaselineKey is the key the baseline is stored under.
const BaselineKey = "key_previous_steps"

// ErrMissingKey is returned when the state file exists but has no baseline.
var ErrMissingKey = errors.New("baseline key missing")

// state is the on-disk document. Unknown keys are preserved across saves.
type state map[string]any

// FileStore keeps the baseline in a small YAML document.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the file at path. The file is
// created on the first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// LoadBaseline returns the stored baseline. A missing file yields (0, nil).
func (s *FileStore) LoadBaseline() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return 0, err
	}
	if doc == nil {
		return 0, nil
	}

	raw, ok := doc[BaselineKey]
	if !ok {
		return 0, ErrMissingKey
	}
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("baseline has type %T, want number", raw)
	}
}

// SaveBaseline writes the baseline atomically via a temp file and rename.
func (s *FileStore) SaveBaseline(steps float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil || doc == nil {
		// An unreadable file is replaced rather than blocking the reset.
		doc = state{}
	}
	doc[BaselineKey] = steps

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".step-state-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

func (s *FileStore) read() (state, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var doc state
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if doc == nil {
		// Empty file.
		return state{}, nil
	}
	return doc, nil
}
