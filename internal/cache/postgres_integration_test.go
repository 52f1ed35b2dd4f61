//go:build integration

package cache_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/UnknownOlympus/magma/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresStore_Integration(t *testing.T) {
	ctx := t.Context()

	ctr, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("magma"),
		postgres.WithUsername("magma"),
		postgres.WithPassword("magma"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := cache.Open(ctx, cache.Config{Backend: cache.BackendPostgres, PostgresDSN: dsn}, slog.Default())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(ctx, "k")
	require.ErrorIs(t, err, cache.ErrMiss)

	require.NoError(t, store.Put(ctx, "k", sampleDataset("first")))
	require.NoError(t, store.Put(ctx, "k", sampleDataset("second")))

	entry, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, sampleDataset("second"), entry.Data)
	assert.WithinDuration(t, time.Now(), entry.Timestamp, time.Minute)
}
