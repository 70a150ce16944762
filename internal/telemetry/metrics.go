package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "legalwise"

// Metrics collects retrieval metrics on a private registry and keeps a
// QueryLog of recent retrievals. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry
	log      *QueryLog

	retrievalsTotal   *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec
	retrievalResults  *prometheus.HistogramVec
	stageDuration     *prometheus.HistogramVec
	sparseRebuilds    *prometheus.CounterVec
	sparseRebuildTime prometheus.Histogram
	storeChunks       prometheus.Gauge
}

// NewMetrics creates and registers the retrieval metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	retrievalsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total retrievals by mode and status.",
		},
		[]string{"mode", "status"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval duration in seconds by mode.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"mode"},
	)
	retrievalResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "results",
			Help:      "Number of results returned by mode.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 40, 100},
		},
		[]string{"mode"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "stage_duration_seconds",
			Help:      "Duration of hybrid pipeline stages.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	sparseRebuilds := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sparse",
			Name:      "rebuilds_total",
			Help:      "Sparse index rebuilds by backend.",
		},
		[]string{"backend"},
	)
	sparseRebuildTime := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sparse",
			Name:      "rebuild_duration_seconds",
			Help:      "Sparse index rebuild duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	storeChunks := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "chunks",
			Help:      "Chunk count observed by the last retrieval.",
		},
	)

	registry.MustRegister(retrievalsTotal, retrievalDuration, retrievalResults,
		stageDuration, sparseRebuilds, sparseRebuildTime, storeChunks)

	return &Metrics{
		registry:          registry,
		log:               NewQueryLog(DefaultQueryLogConfig()),
		retrievalsTotal:   retrievalsTotal,
		retrievalDuration: retrievalDuration,
		retrievalResults:  retrievalResults,
		stageDuration:     stageDuration,
		sparseRebuilds:    sparseRebuilds,
		sparseRebuildTime: sparseRebuildTime,
		storeChunks:       storeChunks,
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRetrieval records one retrieval.
func (m *Metrics) ObserveRetrieval(event RetrievalEvent) {
	if m == nil {
		return
	}

	status := "success"
	mode := event.Mode
	if event.Failed() {
		status = "error"
		if mode == "" {
			mode = "unknown"
		}
	}

	m.retrievalsTotal.WithLabelValues(mode, status).Inc()
	m.retrievalDuration.WithLabelValues(mode).Observe(event.Latency.Seconds())
	if !event.Failed() {
		m.retrievalResults.WithLabelValues(mode).Observe(float64(event.ResultCount))
	}
	m.log.Record(event)
}

// ObserveStage records the duration of a pipeline stage (dense, sparse,
// fusion, rerank).
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveSparseRebuild records a sparse index rebuild.
func (m *Metrics) ObserveSparseRebuild(backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.sparseRebuilds.WithLabelValues(backend).Inc()
	m.sparseRebuildTime.Observe(d.Seconds())
}

// SetStoreSize records the live chunk count.
func (m *Metrics) SetStoreSize(n int) {
	if m == nil {
		return
	}
	m.storeChunks.Set(float64(n))
}

// Snapshot returns the query log snapshot.
func (m *Metrics) Snapshot() QueryLogSnapshot {
	if m == nil {
		return QueryLogSnapshot{}
	}
	return m.log.Snapshot()
}
