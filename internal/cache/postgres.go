package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/UnknownOlympus/magma/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Database is the subset of *pgxpool.Pool used by PostgresStore.
type Database interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore keeps cache entries in the geo_cache table.
type PostgresStore struct {
	db  Database
	log *slog.Logger
	now func() time.Time
}

// NewDatabase opens a connection pool and verifies it with a ping.
func NewDatabase(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// NewPostgresStore creates a new instance of PostgresStore with the provided Database.
func NewPostgresStore(db Database, log *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log, now: time.Now}
}

// Migrate creates the cache table when it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS geo_cache (
			location_key TEXT PRIMARY KEY,
			fetched_at TIMESTAMPTZ NOT NULL,
			data JSONB NOT NULL
		);
	`

	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create geo_cache table: %w", err)
	}

	return nil
}

// Get retrieves the entry stored under key. It returns ErrMiss when there is no row.
func (s *PostgresStore) Get(ctx context.Context, key string) (*Entry, error) {
	query := `
		SELECT fetched_at, data
		FROM geo_cache
		WHERE location_key = $1;
	`

	var (
		fetchedAt time.Time
		raw       []byte
	)
	err := s.db.QueryRow(ctx, query, key).Scan(&fetchedAt, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}

	dataset := models.Dataset{}
	if err = json.Unmarshal(raw, &dataset); err != nil {
		s.log.WarnContext(ctx, "Cached dataset is corrupt, treating as miss", "key", key, "error", err)
		return nil, ErrMiss
	}

	return &Entry{Timestamp: fetchedAt, Data: dataset}, nil
}

// Put inserts or fully replaces the entry for key.
func (s *PostgresStore) Put(ctx context.Context, key string, dataset models.Dataset) error {
	query := `
		INSERT INTO geo_cache (location_key, fetched_at, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (location_key) DO UPDATE
		SET
			fetched_at = EXCLUDED.fetched_at,
			data = EXCLUDED.data;
	`

	if dataset == nil {
		dataset = models.Dataset{}
	}
	raw, err := json.Marshal(dataset)
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}

	if _, err = s.db.Exec(ctx, query, key, s.now().UTC(), raw); err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}

	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
