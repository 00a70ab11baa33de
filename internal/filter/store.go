package filter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wegman-software/airspace-go/internal/logger"
)

// Store persists filter preferences
type Store interface {
	Load(ctx context.Context) (Preferences, error)
	Save(ctx context.Context, prefs Preferences) error
}

// FileStore keeps preferences in a YAML file
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the preferences file; a missing file yields the defaults
func (s *FileStore) Load(ctx context.Context) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Get().Debug("No preferences file, using defaults", zap.String("path", s.path))
			return DefaultPreferences(), nil
		}
		return Preferences{}, fmt.Errorf("failed to read preferences: %w", err)
	}

	prefs := DefaultPreferences()
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return Preferences{}, fmt.Errorf("failed to parse preferences %s: %w", s.path, err)
	}
	if prefs.Display == nil {
		prefs.Display = map[string]bool{}
	}
	if err := prefs.Validate(); err != nil {
		return Preferences{}, fmt.Errorf("invalid preferences %s: %w", s.path, err)
	}
	return prefs, nil
}

// Save writes the preferences atomically (temp file + rename)
func (s *FileStore) Save(ctx context.Context, prefs Preferences) error {
	if err := prefs.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create preferences directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace preferences: %w", err)
	}
	return nil
}

// MemoryStore keeps preferences in memory
type MemoryStore struct {
	mu    sync.RWMutex
	prefs Preferences
}

// NewMemoryStore creates a store seeded with prefs
func NewMemoryStore(prefs Preferences) *MemoryStore {
	return &MemoryStore{prefs: prefs.Clone()}
}

// Load returns a copy of the stored preferences
func (s *MemoryStore) Load(ctx context.Context) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.Clone(), nil
}

// Save replaces the stored preferences
func (s *MemoryStore) Save(ctx context.Context, prefs Preferences) error {
	if err := prefs.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.prefs = prefs.Clone()
	s.mu.Unlock()
	return nil
}
