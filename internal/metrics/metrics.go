// Package metrics provides Prometheus metrics for idbroker components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var registerOnce sync.Once

const (
	// Namespace is the Prometheus namespace for all idbroker metrics.
	Namespace = "idbroker"

	// Subsystem constants for metric organization.
	SubsystemAPI       = "api"
	SubsystemDiscovery = "discovery"
	SubsystemSources   = "sources"
	SubsystemRefresh   = "jwks_refresh"
)

// Label constants for consistent labeling across metrics.
const (
	LabelEndpoint     = "endpoint"
	LabelMethod       = "method"
	LabelStatus       = "status"
	LabelOutcome      = "outcome"
	LabelProviderType = "provider_type"
	LabelResult       = "result"
)

var (
	// API Metrics

	// APIRequestsTotal counts the total number of API requests.
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAPI,
			Name:      "requests_total",
			Help:      "Total number of API requests",
		},
		[]string{LabelEndpoint, LabelMethod, LabelStatus},
	)

	// APIRequestDuration tracks the duration of API requests.
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelEndpoint, LabelMethod},
	)

	// APIRequestSize tracks the size of API request bodies.
	APIRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAPI,
			Name:      "request_size_bytes",
			Help:      "Size of API request bodies in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6), // 100B to 10MB
		},
		[]string{LabelEndpoint, LabelMethod},
	)

	// APIResponseSize tracks the size of API response bodies.
	APIResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAPI,
			Name:      "response_size_bytes",
			Help:      "Size of API response bodies in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6), // 100B to 10MB
		},
		[]string{LabelEndpoint, LabelMethod},
	)

	// Discovery Metrics

	// DiscoveryFetchesTotal counts remote well-known and JWKS fetches.
	DiscoveryFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemDiscovery,
			Name:      "fetches_total",
			Help:      "Total number of remote discovery document fetches",
		},
		[]string{LabelOutcome},
	)

	// DiscoveryFetchDuration tracks the duration of remote fetches.
	DiscoveryFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemDiscovery,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of remote discovery document fetches in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelOutcome},
	)

	// Source Metrics

	// SourceValidationsTotal counts source configuration validations.
	SourceValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSources,
			Name:      "validations_total",
			Help:      "Total number of OAuth source configuration validations",
		},
		[]string{LabelProviderType, LabelResult},
	)

	// Refresh Metrics

	// JWKSRefreshRunsTotal counts refresh runs.
	JWKSRefreshRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemRefresh,
			Name:      "runs_total",
			Help:      "Total number of JWKS refresh runs",
		},
		[]string{LabelStatus},
	)

	// JWKSRefreshSourcesTotal counts per-source refresh results.
	JWKSRefreshSourcesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemRefresh,
			Name:      "sources_total",
			Help:      "Total number of sources processed by JWKS refresh",
		},
		[]string{LabelResult},
	)

	// JWKSRefreshDuration tracks the duration of a full refresh run.
	JWKSRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemRefresh,
			Name:      "duration_seconds",
			Help:      "Duration of JWKS refresh runs in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// JWKSRefreshLastSuccess is the unix time of the last completed run.
	JWKSRefreshLastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemRefresh,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last completed JWKS refresh run",
		},
	)

	// allMetrics contains all metrics for registration.
	allMetrics = []prometheus.Collector{
		// API
		APIRequestsTotal,
		APIRequestDuration,
		APIRequestSize,
		APIResponseSize,
		// Discovery
		DiscoveryFetchesTotal,
		DiscoveryFetchDuration,
		// Sources
		SourceValidationsTotal,
		// Refresh
		JWKSRefreshRunsTotal,
		JWKSRefreshSourcesTotal,
		JWKSRefreshDuration,
		JWKSRefreshLastSuccess,
	}
)

// Register registers all idbroker metrics with the default Prometheus registry.
// It is safe to call multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		for _, m := range allMetrics {
			prometheus.MustRegister(m)
		}
	})
}

// RegisterWith registers all idbroker metrics with the given registry.
func RegisterWith(reg prometheus.Registerer) {
	for _, m := range allMetrics {
		reg.MustRegister(m)
	}
}

// NewRegistry creates a new Prometheus registry with all idbroker metrics
// and standard Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	RegisterWith(reg)

	return reg
}
