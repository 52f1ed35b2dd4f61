package service_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/UnknownOlympus/magma/internal/cache"
	"github.com/UnknownOlympus/magma/internal/geocoding"
	"github.com/UnknownOlympus/magma/internal/metrics"
	"github.com/UnknownOlympus/magma/internal/models"
	"github.com/UnknownOlympus/magma/internal/service"
	"github.com/UnknownOlympus/magma/test/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type deps struct {
	provider *mocks.Provider
	fetcher  *mocks.Fetcher
	store    *mocks.Store
	metrics  *metrics.Metrics
}

func newService(t *testing.T, withStore bool) (*service.GeologyService, deps) {
	t.Helper()

	d := deps{
		provider: mocks.NewProvider(t),
		fetcher:  mocks.NewFetcher(t),
		metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
	}
	var store cache.Store
	if withStore {
		d.store = mocks.NewStore(t)
		store = d.store
	}

	return service.NewGeologyService(slog.Default(), d.provider, "nominatim", d.fetcher, store, d.metrics), d
}

func TestGeologyService_Lookup(t *testing.T) {
	ctx := context.Background()
	coord := models.Coordinate{Latitude: 40, Longitude: -75}
	name := "Shale Unit A"
	dataset := models.Dataset{{Name: &name, Lithology: "shale"}}

	t.Run("cache hit skips the remote service", func(t *testing.T) {
		svc, d := newService(t, true)

		d.store.On("Get", ctx, "40.0,-75.0").
			Return(&cache.Entry{Timestamp: time.Unix(1685620800, 0), Data: dataset}, nil).Once()

		got := svc.Lookup(ctx, coord)

		assert.Equal(t, dataset, got)
		d.fetcher.AssertNotCalled(t, "FetchDataset", mock.Anything, mock.Anything)
		assert.InDelta(t, 1.0, testutil.ToFloat64(d.metrics.CacheLookups.WithLabelValues("hit")), 0)
	})

	t.Run("miss fetches and stores", func(t *testing.T) {
		svc, d := newService(t, true)

		d.store.On("Get", ctx, "40.0,-75.0").Return(nil, cache.ErrMiss).Once()
		d.fetcher.On("FetchDataset", ctx, coord).Return(dataset, nil).Once()
		d.store.On("Put", ctx, "40.0,-75.0", dataset).Return(nil).Once()

		got := svc.Lookup(ctx, coord)

		assert.Equal(t, dataset, got)
		assert.InDelta(t, 1.0, testutil.ToFloat64(d.metrics.CacheLookups.WithLabelValues("miss")), 0)
		assert.InDelta(t, 1.0, testutil.ToFloat64(d.metrics.GeologyRequests.WithLabelValues("success")), 0)
	})

	t.Run("empty result is cached", func(t *testing.T) {
		svc, d := newService(t, true)

		d.store.On("Get", ctx, "40.0,-75.0").Return(nil, cache.ErrMiss).Once()
		d.fetcher.On("FetchDataset", ctx, coord).Return(models.Dataset{}, nil).Once()
		d.store.On("Put", ctx, "40.0,-75.0", models.Dataset{}).Return(nil).Once()

		assert.Empty(t, svc.Lookup(ctx, coord))
	})

	t.Run("failed fetch is not cached", func(t *testing.T) {
		svc, d := newService(t, true)

		d.store.On("Get", ctx, "40.0,-75.0").Return(nil, cache.ErrMiss).Once()
		d.fetcher.On("FetchDataset", ctx, coord).Return(nil, assert.AnError).Once()

		got := svc.Lookup(ctx, coord)

		assert.NotNil(t, got)
		assert.Empty(t, got)
		d.store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
		assert.InDelta(t, 1.0, testutil.ToFloat64(d.metrics.GeologyRequests.WithLabelValues("failure")), 0)
	})

	t.Run("cache errors do not fail the lookup", func(t *testing.T) {
		svc, d := newService(t, true)

		d.store.On("Get", ctx, "40.0,-75.0").Return(nil, assert.AnError).Once()
		d.fetcher.On("FetchDataset", ctx, coord).Return(dataset, nil).Once()
		d.store.On("Put", ctx, "40.0,-75.0", dataset).Return(assert.AnError).Once()

		got := svc.Lookup(ctx, coord)

		assert.Equal(t, dataset, got)
		assert.InDelta(t, 1.0, testutil.ToFloat64(d.metrics.CacheLookups.WithLabelValues("error")), 0)
	})

	t.Run("without a store every lookup fetches", func(t *testing.T) {
		svc, d := newService(t, false)

		d.fetcher.On("FetchDataset", ctx, coord).Return(dataset, nil).Twice()

		assert.Equal(t, dataset, svc.Lookup(ctx, coord))
		assert.Equal(t, dataset, svc.Lookup(ctx, coord))
	})
}

func TestGeologyService_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		svc, d := newService(t, false)
		want := &models.Coordinate{Latitude: 51.5074, Longitude: -0.1278}

		d.provider.On("Geocode", ctx, "London").Return(want, nil).Once()

		got, err := svc.Resolve(ctx, "London")

		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.InDelta(t, 1.0, testutil.ToFloat64(d.metrics.GeocodeRequests.WithLabelValues("nominatim", "found")), 0)
	})

	t.Run("not found", func(t *testing.T) {
		svc, d := newService(t, false)

		d.provider.On("Geocode", ctx, "Atlantis").Return(nil, geocoding.ErrNotFound).Once()

		got, err := svc.Resolve(ctx, "Atlantis")

		require.ErrorIs(t, err, geocoding.ErrNotFound)
		assert.Nil(t, got)
		assert.InDelta(t, 1.0, testutil.ToFloat64(d.metrics.GeocodeRequests.WithLabelValues("nominatim", "not_found")), 0)
	})

	t.Run("lookup failure", func(t *testing.T) {
		svc, d := newService(t, false)

		d.provider.On("Geocode", ctx, "London").Return(nil, geocoding.ErrLookupFailed).Once()

		_, err := svc.Resolve(ctx, "London")

		require.ErrorIs(t, err, geocoding.ErrLookupFailed)
		assert.InDelta(t, 1.0, testutil.ToFloat64(d.metrics.GeocodeRequests.WithLabelValues("nominatim", "failure")), 0)
	})
}
