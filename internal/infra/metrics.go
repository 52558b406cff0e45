package infra

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup kinds.
const (
	CacheKindInfo = "info"
	CacheKindRate = "rate"
)

// Metrics holds the conversion counters. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups     *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
	conversions      *prometheus.CounterVec
	resolveDuration  *prometheus.HistogramVec
}

// NewMetrics registers all collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_cache_lookups_total",
				Help: "Cache lookups by provider, kind and outcome (hit, miss)",
			},
			[]string{"provider", "kind", "outcome"},
		),
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_upstream_requests_total",
				Help: "Upstream API calls by provider, endpoint and outcome",
			},
			[]string{"provider", "endpoint", "outcome"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_fallbacks_total",
				Help: "Pair-not-found fallbacks by stage (provider, intermediary)",
			},
			[]string{"stage"},
		),
		conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_conversions_total",
				Help: "Resolved conversions by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		resolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exchange_resolve_duration_seconds",
				Help:    "Time spent resolving a conversion",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		m.cacheLookups,
		m.upstreamRequests,
		m.fallbacks,
		m.conversions,
		m.resolveDuration,
	)
	return m
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(provider, kind string, hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.WithLabelValues(provider, kind, outcome).Inc()
}

// RecordUpstream records one upstream call.
func (m *Metrics) RecordUpstream(provider, endpoint, outcome string) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(provider, endpoint, outcome).Inc()
}

// RecordFallback records a pair-not-found fallback step.
func (m *Metrics) RecordFallback(stage string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(stage).Inc()
}

// RecordConversion records a finished resolve call.
func (m *Metrics) RecordConversion(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(provider, outcome).Inc()
	m.resolveDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry (for tests and extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
