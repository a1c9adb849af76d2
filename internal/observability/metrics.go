package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// risk resolution service.
type Metrics struct {
	// Resolution metrics.
	Resolutions     *prometheus.CounterVec // labels: source={primary,secondary,cache,synthetic}
	ResolveDuration prometheus.Histogram
	StageAttempts   *prometheus.CounterVec // labels: stage, outcome={success,failure}

	// Geocache metrics.
	CacheLookups   *prometheus.CounterVec // labels: result={hit,miss,expired,corrupt}
	CacheEvictions prometheus.Counter
	CacheEntries   prometheus.Gauge

	// Outbound fetch metrics.
	FetchAttempts  *prometheus.CounterVec // labels: operation, outcome={success,retryable_error,terminal_error}
	FetchExhausted *prometheus.CounterVec // labels: operation

	// Location metrics.
	LocationResolutions  *prometheus.CounterVec // labels: source, or "unavailable" when no tier produced one
	LocationTierFailures *prometheus.CounterVec // labels: tier={last_known,live_fix,cached_manual}

	// Publisher metrics.
	ObservationsPublished *prometheus.CounterVec // labels: outcome={success,error}
	PublisherEnabled      prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wildfire_risk",
			Name:      "resolutions_total",
			Help:      "Completed risk resolutions by the stage that produced the answer.",
		}, []string{"source"}),
		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wildfire_risk",
			Name:      "resolve_duration_seconds",
			Help:      "Wall time of a complete risk resolution across all stages.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8},
		}),
		StageAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wildfire_risk",
			Name:      "stage_attempts_total",
			Help:      "Resolution stage attempts by stage and outcome.",
		}, []string{"stage", "outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wildfire_risk",
			Name:      "cache_lookups_total",
			Help:      "Geocache lookups by result.",
		}, []string{"result"}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wildfire_risk",
			Name:      "cache_evictions_total",
			Help:      "Entries evicted from the geocache to stay under capacity.",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wildfire_risk",
			Name:      "cache_entries",
			Help:      "Entries currently tracked by the geocache access index.",
		}),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wildfire_risk",
			Name:      "fetch_attempts_total",
			Help:      "Outbound fetch attempts by operation and outcome.",
		}, []string{"operation", "outcome"}),
		FetchExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wildfire_risk",
			Name:      "fetch_exhausted_total",
			Help:      "Fetches that ran out of retries without succeeding.",
		}, []string{"operation"}),
		LocationResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wildfire_risk",
			Name:      "location_resolutions_total",
			Help:      "Location resolutions by the tier that produced the position.",
		}, []string{"source"}),
		LocationTierFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wildfire_risk",
			Name:      "location_tier_failures_total",
			Help:      "Location tiers that were attempted but produced no position.",
		}, []string{"tier"}),
		ObservationsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wildfire_risk",
			Name:      "observations_published_total",
			Help:      "Resolved observations published to Kafka by outcome.",
		}, []string{"outcome"}),
		PublisherEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wildfire_risk",
			Name:      "publisher_enabled",
			Help:      "1 when the Kafka observation publisher is enabled, 0 otherwise.",
		}),
	}

	prometheus.MustRegister(
		m.Resolutions,
		m.ResolveDuration,
		m.StageAttempts,
		m.CacheLookups,
		m.CacheEvictions,
		m.CacheEntries,
		m.FetchAttempts,
		m.FetchExhausted,
		m.LocationResolutions,
		m.LocationTierFailures,
		m.ObservationsPublished,
		m.PublisherEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		Resolutions:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "wildfire_risk", Name: "resolutions_total"}, []string{"source"}),
		ResolveDuration:       prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "wildfire_risk", Name: "resolve_duration_seconds"}),
		StageAttempts:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "wildfire_risk", Name: "stage_attempts_total"}, []string{"stage", "outcome"}),
		CacheLookups:          prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "wildfire_risk", Name: "cache_lookups_total"}, []string{"result"}),
		CacheEvictions:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "wildfire_risk", Name: "cache_evictions_total"}),
		CacheEntries:          prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "wildfire_risk", Name: "cache_entries"}),
		FetchAttempts:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "wildfire_risk", Name: "fetch_attempts_total"}, []string{"operation", "outcome"}),
		FetchExhausted:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "wildfire_risk", Name: "fetch_exhausted_total"}, []string{"operation"}),
		LocationResolutions:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "wildfire_risk", Name: "location_resolutions_total"}, []string{"source"}),
		LocationTierFailures:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "wildfire_risk", Name: "location_tier_failures_total"}, []string{"tier"}),
		ObservationsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "wildfire_risk", Name: "observations_published_total"}, []string{"outcome"}),
		PublisherEnabled:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "wildfire_risk", Name: "publisher_enabled"}),
	}
}
