package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors of the geology and narrative pipeline.
type Metrics struct {
	GeocodeRequests   *prometheus.CounterVec
	GeologyRequests   *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec
	RequestSeconds    *prometheus.HistogramVec
	GenerationSeconds prometheus.Histogram
	GeneratedTokens   prometheus.Histogram
	Narratives        *prometheus.CounterVec
	ActiveGenerations prometheus.Gauge
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		GeocodeRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "magma_geocode_requests_total",
			Help: "Total number of place lookups by outcome.",
		}, []string{"provider", "status"}),
		GeologyRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "magma_geology_requests_total",
			Help: "Total number of geology data service requests by outcome.",
		}, []string{"status"}),
		CacheLookups: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "magma_cache_lookups_total",
			Help: "Total number of result cache lookups by outcome.",
		}, []string{"result"}),
		RequestSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "magma_remote_request_duration_seconds",
			Help:    "Duration of requests to remote data services.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		GenerationSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "magma_generation_duration_seconds",
			Help:    "Duration of narrative generation including tokenization and decoding.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		GeneratedTokens: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "magma_generated_tokens",
			Help:    "Number of new tokens produced per narrative.",
			Buckets: prometheus.ExponentialBuckets(8, 2, 8),
		}),
		Narratives: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "magma_narratives_total",
			Help: "Total number of narratives by outcome (generated or fallback).",
		}, []string{"outcome"}),
		ActiveGenerations: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "magma_active_generations",
			Help: "Number of generations currently running against the model session.",
		}),
	}
}
