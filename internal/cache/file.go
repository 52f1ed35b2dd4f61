package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/UnknownOlympus/magma/internal/models"
)

// DefaultFilePath is the cache file used when none is configured.
const DefaultFilePath = "geo_cache.json"

// FileStore keeps the whole cache in memory and rewrites a JSON file on every Put.
// The file maps each key to {"timestamp": <unix seconds>, "data": [...]}.
type FileStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
	log     *slog.Logger
	now     func() time.Time
}

// OpenFile loads the cache file. A missing or corrupt file is treated as an empty cache.
func OpenFile(path string, log *slog.Logger) *FileStore {
	if path == "" {
		path = DefaultFilePath
	}

	store := &FileStore{path: path, entries: map[string]Entry{}, log: log, now: time.Now}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debug("Cache file not found, starting empty", "path", path)
	case err != nil:
		log.Warn("Failed to read cache file, starting empty", "path", path, "error", err)
	default:
		if err = json.Unmarshal(raw, &store.entries); err != nil {
			log.Warn("Cache file is corrupt, starting empty", "path", path, "error", err)
			store.entries = map[string]Entry{}
		}
		// A "null" document decodes without error into a nil map.
		if store.entries == nil {
			store.entries = map[string]Entry{}
		}
	}

	return store
}

// Get returns the entry stored under key or ErrMiss.
func (s *FileStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrMiss
	}

	return &entry, nil
}

// Put replaces the entry for key and persists the cache.
// The in-memory entry is kept even when writing the file fails.
func (s *FileStore) Put(_ context.Context, key string, dataset models.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = Entry{Timestamp: s.now(), Data: dataset}

	return s.flush()
}

// Close is a no-op; every Put is already persisted.
func (s *FileStore) Close() error {
	return nil
}

// flush writes to a temporary file and renames it over the cache file.
func (s *FileStore) flush() error {
	raw, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache file: %w", err)
	}

	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	return nil
}
