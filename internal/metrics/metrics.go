// Package metrics exposes Prometheus instrumentation for the context
// orchestration pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global     *Metrics
	globalOnce sync.Once
)

// Metrics holds all Prometheus collectors for the orchestrator.
type Metrics struct {
	ContextRequestsTotal  *prometheus.CounterVec
	ContextRequestLatency *prometheus.HistogramVec

	SourceFetchTotal    *prometheus.CounterVec
	SourceFetchErrors   *prometheus.CounterVec
	SourceFetchDuration *prometheus.HistogramVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheSize        prometheus.Gauge

	VectorSearchTotal    prometheus.Counter
	VectorSearchDuration prometheus.Histogram
	VectorSearchErrors   prometheus.Counter

	FusionGroupsTotal     prometheus.Counter
	FusionConflictsTotal  prometheus.Counter
	FusionChunksRetained  prometheus.Histogram
	PrivacyViolationsTotal *prometheus.CounterVec
}

// New creates and registers Prometheus collectors for the orchestrator.
//
// Uses sync.Once so repeated calls within a process return the same
// collector set, avoiding "duplicate metrics collector registration" panics.
//
// Metrics:
//   - ragify_context_requests_total{outcome} - get_context calls by outcome
//   - ragify_context_request_duration_seconds{outcome} - get_context latency
//   - ragify_source_fetch_total{source} - chunks fetched per source
//   - ragify_source_fetch_errors_total{source,kind} - per-source fetch failures
//   - ragify_source_fetch_duration_seconds{source} - per-source fetch latency
//   - ragify_cache_hits_total / ragify_cache_misses_total - cache performance
//   - ragify_cache_size - current cache entry count
//   - ragify_vector_search_total / _errors_total / _duration_seconds - vector fallback
//   - ragify_fusion_groups_total - semantic groups formed during fusion
//   - ragify_fusion_conflicts_total - groups that required conflict resolution
//   - ragify_fusion_chunks_retained - chunks surviving fusion, per request
//   - ragify_privacy_violations_total{target_level} - denied access attempts
func New() *Metrics {
	globalOnce.Do(func() {
		global = &Metrics{
			ContextRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragify_context_requests_total",
					Help: "Total get_context calls, labeled by outcome (success, not_found, privacy_violation, closed).",
				},
				[]string{"outcome"},
			),
			ContextRequestLatency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ragify_context_request_duration_seconds",
					Help:    "End-to-end get_context latency in seconds.",
					Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
				},
				[]string{"outcome"},
			),

			SourceFetchTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragify_source_fetch_total",
					Help: "Total chunks returned per data source.",
				},
				[]string{"source"},
			),
			SourceFetchErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragify_source_fetch_errors_total",
					Help: "Total data source fetch failures, labeled by source and error kind.",
				},
				[]string{"source", "kind"},
			),
			SourceFetchDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ragify_source_fetch_duration_seconds",
					Help:    "Per-source fetch duration in seconds.",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
				},
				[]string{"source"},
			),

			CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ragify_cache_hits_total",
				Help: "Total context cache hits.",
			}),
			CacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ragify_cache_misses_total",
				Help: "Total context cache misses.",
			}),
			CacheSize: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "ragify_cache_size",
				Help: "Current number of entries held in the context cache.",
			}),

			VectorSearchTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ragify_vector_search_total",
				Help: "Total vector index searches performed as a fallback retrieval path.",
			}),
			VectorSearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "ragify_vector_search_duration_seconds",
				Help:    "Vector index search latency in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			}),
			VectorSearchErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ragify_vector_search_errors_total",
				Help: "Total vector index search failures.",
			}),

			FusionGroupsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ragify_fusion_groups_total",
				Help: "Total semantic groups formed across fusion runs.",
			}),
			FusionConflictsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ragify_fusion_conflicts_total",
				Help: "Total semantic groups with more than one chunk, requiring conflict resolution.",
			}),
			FusionChunksRetained: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "ragify_fusion_chunks_retained",
				Help:    "Number of chunks retained after fusion, per get_context call.",
				Buckets: prometheus.LinearBuckets(0, 2, 11),
			}),
			PrivacyViolationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragify_privacy_violations_total",
					Help: "Total privacy gate denials, labeled by requested target level.",
				},
				[]string{"target_level"},
			),
		}
	})

	return global
}

// RecordContextRequest records a completed get_context call.
func (m *Metrics) RecordContextRequest(outcome string, durationSeconds float64) {
	m.ContextRequestsTotal.WithLabelValues(outcome).Inc()
	m.ContextRequestLatency.WithLabelValues(outcome).Observe(durationSeconds)
}

// RecordSourceFetch records a successful per-source fetch.
func (m *Metrics) RecordSourceFetch(source string, chunkCount int, durationSeconds float64) {
	m.SourceFetchTotal.WithLabelValues(source).Add(float64(chunkCount))
	m.SourceFetchDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordSourceError records a per-source fetch failure.
func (m *Metrics) RecordSourceError(source, kind string) {
	m.SourceFetchErrors.WithLabelValues(source, kind).Inc()
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit() {
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMissesTotal.Inc()
}

// SetCacheSize updates the current cache size gauge.
func (m *Metrics) SetCacheSize(size int) {
	m.CacheSize.Set(float64(size))
}

// RecordVectorSearch records a vector index search outcome.
func (m *Metrics) RecordVectorSearch(durationSeconds float64, err error) {
	m.VectorSearchTotal.Inc()
	m.VectorSearchDuration.Observe(durationSeconds)
	if err != nil {
		m.VectorSearchErrors.Inc()
	}
}

// RecordFusion records the outcome of one Fuse call.
func (m *Metrics) RecordFusion(groupCount, conflictCount, retainedCount int) {
	m.FusionGroupsTotal.Add(float64(groupCount))
	m.FusionConflictsTotal.Add(float64(conflictCount))
	m.FusionChunksRetained.Observe(float64(retainedCount))
}

// RecordPrivacyViolation records a denied access attempt.
func (m *Metrics) RecordPrivacyViolation(targetLevel string) {
	m.PrivacyViolationsTotal.WithLabelValues(targetLevel).Inc()
}
