package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/UnknownOlympus/magma/internal/cache"
	"github.com/UnknownOlympus/magma/internal/geocoding"
	"github.com/UnknownOlympus/magma/internal/metrics"
	"github.com/UnknownOlympus/magma/internal/models"
)

// Fetcher retrieves the geology dataset for a coordinate, reporting failures.
type Fetcher interface {
	FetchDataset(ctx context.Context, coord models.Coordinate) (models.Dataset, error)
}

// GeologyService provides the data half of the pipeline: place resolution through a
// geocoding provider and cache-through geology lookups.
type GeologyService struct {
	log          *slog.Logger       // Logger for logging service activities
	provider     geocoding.Provider // Geocoding provider for place names
	providerName string             // Name of the provider for metrics labeling
	fetcher      Fetcher            // Geology data service client
	store        cache.Store        // Result cache, may be nil
	metrics      *metrics.Metrics   // Metrics for tracking service performance
}

// NewGeologyService creates a new instance of GeologyService.
// A nil store disables caching.
func NewGeologyService(
	log *slog.Logger,
	provider geocoding.Provider,
	providerName string,
	fetcher Fetcher,
	store cache.Store,
	metrics *metrics.Metrics,
) *GeologyService {
	return &GeologyService{
		log:          log,
		provider:     provider,
		providerName: providerName,
		fetcher:      fetcher,
		store:        store,
		metrics:      metrics,
	}
}

// Resolve turns a place name into a coordinate. geocoding.ErrNotFound means no match;
// any other error is a lookup failure that callers report as "not found" to end users.
func (gs *GeologyService) Resolve(ctx context.Context, place string) (*models.Coordinate, error) {
	startTime := time.Now()
	coords, err := gs.provider.Geocode(ctx, place)
	gs.metrics.RequestSeconds.WithLabelValues("geocode").Observe(time.Since(startTime).Seconds())

	switch {
	case err == nil:
		gs.metrics.GeocodeRequests.WithLabelValues(gs.providerName, "found").Inc()
	case errors.Is(err, geocoding.ErrNotFound):
		gs.metrics.GeocodeRequests.WithLabelValues(gs.providerName, "not_found").Inc()
		gs.log.InfoContext(ctx, "Place not found", "place", place)
	default:
		gs.metrics.GeocodeRequests.WithLabelValues(gs.providerName, "failure").Inc()
		gs.log.ErrorContext(ctx, "Failed to geocode", "place", place, "error", err)
	}

	return coords, err
}

// Lookup returns the dataset for a coordinate, consulting the cache first.
// It never fails: a failed fetch yields an empty dataset, which is not cached so that
// the next request retries the remote service.
func (gs *GeologyService) Lookup(ctx context.Context, coord models.Coordinate) models.Dataset {
	key := coord.Key()

	if gs.store != nil {
		entry, err := gs.store.Get(ctx, key)
		switch {
		case err == nil:
			gs.metrics.CacheLookups.WithLabelValues("hit").Inc()
			gs.log.DebugContext(ctx, "Cache hit", "key", key, "cached_at", entry.Timestamp)
			return entry.Data
		case errors.Is(err, cache.ErrMiss):
			gs.metrics.CacheLookups.WithLabelValues("miss").Inc()
		default:
			gs.metrics.CacheLookups.WithLabelValues("error").Inc()
			gs.log.WarnContext(ctx, "Cache read failed", "key", key, "error", err)
		}
	}

	startTime := time.Now()
	dataset, err := gs.fetcher.FetchDataset(ctx, coord)
	gs.metrics.RequestSeconds.WithLabelValues("geology").Observe(time.Since(startTime).Seconds())
	if err != nil {
		gs.metrics.GeologyRequests.WithLabelValues("failure").Inc()
		gs.log.WarnContext(ctx, "Geology fetch failed, using empty dataset", "key", key, "error", err)
		return models.Dataset{}
	}
	gs.metrics.GeologyRequests.WithLabelValues("success").Inc()

	if gs.store != nil {
		if err = gs.store.Put(ctx, key, dataset); err != nil {
			gs.log.ErrorContext(ctx, "Failed to store dataset in cache", "key", key, "error", err)
		}
	}

	return dataset
}
