// Package store persists the selection and time range between runs.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"tztimeline/internal/config"
	"tztimeline/internal/model"
)

// Snapshot is the persisted state. TimeRange is nil when none was saved.
type Snapshot struct {
	TimeRange *model.TimeRange  `yaml:"time_range,omitempty"`
	Selection model.SelectionSet `yaml:"selection"`
	SavedAt   time.Time          `yaml:"saved_at"`
}

// Store reads and writes a Snapshot as YAML at a fixed path.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store backed by path. An empty path disables persistence:
// Load finds nothing and Save is a no-op.
func New(path string) *Store {
	return &Store{path: path}
}

// Path is the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. found is false when nothing was saved yet.
func (s *Store) Load() (snap Snapshot, found bool, err error) {
	if s.path == "" {
		return Snapshot{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("state %s: %w", s.path, err)
	}
	if snap.TimeRange != nil {
		snap.TimeRange.Start = snap.TimeRange.Start.UTC()
		snap.TimeRange.End = snap.TimeRange.End.UTC()
	}
	return snap, true, nil
}

// Save writes snap atomically, stamping SavedAt.
func (s *Store) Save(snap Snapshot) error {
	if s.path == "" {
		return nil
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return config.WriteFileAtomic(s.path, data)
}
