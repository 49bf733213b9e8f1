// Package observability provides Prometheus instrumentation for the toolkit
// components. A single *Metrics value satisfies the hook interfaces declared
// by the cache, batcher and monitor packages.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "perfkit"

// Metrics holds the toolkit collectors.
type Metrics struct {
	cacheLookups   *prometheus.CounterVec
	cacheEvictions prometheus.Counter
	fetchDuration  *prometheus.HistogramVec
	flushSize      prometheus.Histogram
	flushPanics    prometheus.Counter
	spanDuration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Request cache lookups by result (hit, miss).",
		}, []string{"result"}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries evicted by the FIFO capacity bound.",
		}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream fetch latency on cache misses.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		flushSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batcher",
			Name:      "flush_size",
			Help:      "Number of actions executed per flush.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),
		flushPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batcher",
			Name:      "flush_panics_total",
			Help:      "Flushes aborted by a panicking action.",
		}),
		spanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "span_duration_seconds",
			Help:      "Durations of completed monitor spans.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.cacheLookups,
		m.cacheEvictions,
		m.fetchDuration,
		m.flushSize,
		m.flushPanics,
		m.spanDuration,
	)
	return m
}

// CacheHit records a lookup served from the cache.
func (m *Metrics) CacheHit() { m.cacheLookups.WithLabelValues("hit").Inc() }

// CacheMiss records a lookup that went to the network.
func (m *Metrics) CacheMiss() { m.cacheLookups.WithLabelValues("miss").Inc() }

// CacheEvicted records n FIFO evictions.
func (m *Metrics) CacheEvicted(n int) { m.cacheEvictions.Add(float64(n)) }

// FetchDone records an upstream fetch. err == nil counts as "ok".
func (m *Metrics) FetchDone(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.fetchDuration.WithLabelValues(status).Observe(d.Seconds())
}

// Flushed records a completed flush of n actions.
func (m *Metrics) Flushed(n int) { m.flushSize.Observe(float64(n)) }

// FlushPanicked records a flush aborted by a panic.
func (m *Metrics) FlushPanicked(any) { m.flushPanics.Inc() }

// SpanEnded records a finished monitor span.
func (m *Metrics) SpanEnded(name string, d time.Duration) {
	m.spanDuration.WithLabelValues(name).Observe(d.Seconds())
}
