// Package watermark persists the per-category high-water timestamps used to
// filter already-announced activity.
package watermark

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store holds one watermark per activity category, backed by a single JSON
// document that is rewritten wholesale on every advance. Writes go through a
// temp file and rename so a partial write never corrupts the stored state.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
	epochs map[string]time.Time
	marks  map[string]time.Time
}

// NewStore creates a watermark store backed by the file at path. epochs maps
// each known key to its sentinel value, returned by Get until the key has
// been advanced at least once. A missing file is created with the sentinels.
func NewStore(path string, epochs map[string]time.Time, logger *zap.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger,
		epochs: make(map[string]time.Time, len(epochs)),
		marks:  make(map[string]time.Time),
	}
	for k, v := range epochs {
		s.epochs[k] = v.UTC()
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Info("watermark file did not exist, creating", zap.String("path", path))
		if err := s.persist(); err != nil {
			return nil, fmt.Errorf("failed to create watermark file: %w", err)
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark file: %w", err)
	}

	if err := json.Unmarshal(data, &s.marks); err != nil {
		return nil, fmt.Errorf("failed to parse watermark file: %w", err)
	}
	return s, nil
}

// Get returns the current watermark for key, or the key's epoch sentinel if
// it has never been advanced.
func (s *Store) Get(key string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(key)
}

func (s *Store) get(key string) time.Time {
	if t, ok := s.marks[key]; ok {
		return t
	}
	return s.epochs[key]
}

// IsEpoch reports whether the watermark for key is still at its sentinel,
// meaning nothing has been processed yet and announcements are suppressed.
func (s *Store) IsEpoch(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(key).Equal(s.epochs[key])
}

// Advance moves the watermark for key forward to t and persists the store.
// A value at or behind the current watermark is ignored, so the stored
// watermark never regresses. The in-memory value advances even when the
// persist fails; the error is returned for logging and the next successful
// cycle's write compensates.
func (s *Store) Advance(key string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t = t.UTC()
	if !t.After(s.get(key)) {
		return nil
	}
	s.marks[key] = t

	if err := s.persist(); err != nil {
		return fmt.Errorf("failed to persist watermark %s: %w", key, err)
	}
	return nil
}

// persist rewrites the whole document atomically. Caller holds s.mu.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.marks, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal watermarks: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".watermarks-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace watermark file: %w", err)
	}
	return nil
}
