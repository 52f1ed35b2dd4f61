// Package cache persists geology lookups keyed by a caller supplied location string.
//
// Entries carry the time they were written and never expire. A Put for an existing key
// replaces the previous entry entirely, timestamp included.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/UnknownOlympus/magma/internal/models"
)

// ErrMiss is returned by Get when the key has no entry.
var ErrMiss = errors.New("cache miss")

// Store is implemented by every cache backend.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, dataset models.Dataset) error
	Close() error
}

// Entry is a cached dataset with the time it was stored.
type Entry struct {
	Timestamp time.Time
	Data      models.Dataset
}

// entryJSON is the persisted form: {"timestamp": <unix seconds>, "data": [...]}.
type entryJSON struct {
	Timestamp float64        `json:"timestamp"`
	Data      models.Dataset `json:"data"`
}

// MarshalJSON encodes the timestamp as fractional unix seconds.
func (e Entry) MarshalJSON() ([]byte, error) {
	data := e.Data
	if data == nil {
		data = models.Dataset{}
	}

	return json.Marshal(entryJSON{
		Timestamp: float64(e.Timestamp.UnixMicro()) / 1e6,
		Data:      data,
	})
}

// UnmarshalJSON decodes the persisted form.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	sec, frac := math.Modf(raw.Timestamp)
	e.Timestamp = time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond))
	e.Data = raw.Data
	if e.Data == nil {
		e.Data = models.Dataset{}
	}

	return nil
}

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendValkey   = "valkey"
	BackendNone     = "none"
)

// Config selects and configures a backend.
type Config struct {
	Backend     string // file, postgres, valkey or none
	FilePath    string // JSON file for the file backend
	PostgresDSN string // connection string for the postgres backend
	ValkeyAddr  string // host:port for the valkey backend
}

// Open creates the configured store. BackendNone returns a nil Store, which disables caching.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return OpenFile(cfg.FilePath, log), nil
	case BackendPostgres:
		dtb, err := NewDatabase(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(dtb, log)
		if err = store.Migrate(ctx); err != nil {
			dtb.Close()
			return nil, err
		}
		return store, nil
	case BackendValkey:
		return NewValkeyStore(cfg.ValkeyAddr)
	case BackendNone:
		return nil, nil //nolint:nilnil // caching disabled
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}
