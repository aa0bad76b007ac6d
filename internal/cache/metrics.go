package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Invalidation scopes reported by Metrics.
const (
	scopeTable = "table"
	scopeAll   = "all"
)

// Metrics holds Prometheus collectors for one engine. Each Metrics owns its
// registry, so several engines in one process never collide. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Hits          prometheus.Counter
	Misses        prometheus.Counter
	Sets          prometheus.Counter
	Evictions     prometheus.Counter
	Invalidations *prometheus.CounterVec
	Entries       prometheus.Gauge
}

// NewMetrics creates collectors under the given namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses, expired entries included",
		}),
		Sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "sets_total",
			Help:      "Total number of entries stored",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of entries evicted for capacity",
		}),
		Invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Total number of invalidation calls",
		}, []string{"scope"}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Number of stored entries after the last mutation",
		}),
	}

	registry.MustRegister(m.Hits, m.Misses, m.Sets, m.Evictions, m.Invalidations, m.Entries)
	return m
}

// Registry returns the registry holding this engine's collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) hit() {
	if m != nil {
		m.Hits.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.Misses.Inc()
	}
}

func (m *Metrics) set() {
	if m != nil {
		m.Sets.Inc()
	}
}

func (m *Metrics) evicted(n int) {
	if m != nil {
		m.Evictions.Add(float64(n))
	}
}

func (m *Metrics) invalidated(scope string) {
	if m != nil {
		m.Invalidations.WithLabelValues(scope).Inc()
	}
}

func (m *Metrics) entries(n int) {
	if m != nil {
		m.Entries.Set(float64(n))
	}
}
