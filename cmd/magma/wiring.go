package main

import (
	"context"
	"fmt"

	"github.com/UnknownOlympus/magma/internal/cache"
	"github.com/UnknownOlympus/magma/internal/geocoding"
	"github.com/UnknownOlympus/magma/internal/geology"
	"github.com/UnknownOlympus/magma/internal/inference"
	"github.com/UnknownOlympus/magma/internal/llamacpp"
	"github.com/UnknownOlympus/magma/internal/metrics"
	"github.com/UnknownOlympus/magma/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// newRegistry returns a registry with the runtime collectors and the application metrics.
func newRegistry() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return reg, metrics.NewMetrics(reg)
}

// newGeologyService assembles the data half of the pipeline. The returned store may be nil
// and must be closed by the caller otherwise.
func newGeologyService(ctx context.Context, appMetrics *metrics.Metrics) (*service.GeologyService, cache.Store, error) {
	provider, err := geocoding.NewProvider(geocoding.ProviderConfig{
		Type:      geocoding.ProviderType(cfg.Geocoder.Provider),
		APIKey:    cfg.Geocoder.APIKey,
		BaseURL:   cfg.Geocoder.URL,
		UserAgent: cfg.Geocoder.UserAgent,
		Timeout:   cfg.Timeout,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create geocoding provider: %w", err)
	}

	store, err := cache.Open(ctx, cache.Config{
		Backend:     cfg.Cache.Backend,
		FilePath:    cfg.Cache.File,
		PostgresDSN: cfg.Database.DSN(),
		ValkeyAddr:  cfg.Cache.ValkeyAddr,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open result cache: %w", err)
	}

	fetcher := geology.NewClient(cfg.Geology.URL, cfg.Timeout, logger)
	svc := service.NewGeologyService(logger, provider, cfg.Geocoder.Provider, fetcher, store, appMetrics)

	logger.InfoContext(ctx, "Geology service initialized",
		"provider", cfg.Geocoder.Provider, "cache", cfg.Cache.Backend)

	return svc, store, nil
}

// loadModel creates the single model session of the process.
func loadModel(ctx context.Context) (*inference.Session, error) {
	backend := llamacpp.NewBackend(llamacpp.Config{
		Endpoint: cfg.Model.Endpoint,
		Binary:   cfg.Model.ServerBin,
		Threads:  cfg.Model.Threads,
		Logger:   logger,
	})

	return inference.Load(ctx, cfg.Model.Path, backend, inference.LoadOptions{
		Device:      inference.Device(cfg.Model.Device),
		ContextSize: cfg.Model.ContextSize,
		MaxLength:   cfg.Model.MaxLength,
		Seed:        cfg.Model.Seed,
		Logger:      logger,
	})
}
