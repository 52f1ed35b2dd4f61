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
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestValkeyStore_Integration(t *testing.T) {
	ctx := t.Context()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "valkey/valkey:8-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	addr, err := ctr.PortEndpoint(ctx, "6379/tcp", "")
	require.NoError(t, err)

	store, err := cache.Open(ctx, cache.Config{Backend: cache.BackendValkey, ValkeyAddr: addr}, slog.Default())
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.(*cache.ValkeyStore).Ping(ctx))

	_, err = store.Get(ctx, "40.0,-75.0")
	require.ErrorIs(t, err, cache.ErrMiss)

	require.NoError(t, store.Put(ctx, "40.0,-75.0", sampleDataset("first")))
	require.NoError(t, store.Put(ctx, "40.0,-75.0", sampleDataset("second")))

	entry, err := store.Get(ctx, "40.0,-75.0")
	require.NoError(t, err)
	assert.Equal(t, sampleDataset("second"), entry.Data)
	assert.WithinDuration(t, time.Now(), entry.Timestamp, time.Minute)
}
