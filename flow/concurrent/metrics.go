package concurrent

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the concurrent platform.
//
// Metrics exposed (all namespaced with "flowlaws_engine_"):
//
//  1. inflight_batches (gauge): batches being processed right now.
//  2. queue_depth (gauge): batches waiting in the frontier.
//  3. batch_latency_ms (histogram): per-batch processing time.
//     Labels: node, status (success/error).
//  4. items_total (counter): items consumed per operator.
//     Labels: node.
//  5. retries_total (counter): retried writes, merges and lookups.
//     Labels: node, reason.
//
// The node label is the operator ID within its job (e.g. "n2:flatMap"), so
// its cardinality is bounded by the job shapes under test.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	p, err := concurrent.New(concurrent.WithMetrics(concurrent.NewMetrics(registry)))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	inflight     prometheus.Gauge
	queueDepth   prometheus.Gauge
	batchLatency *prometheus.HistogramVec
	items        *prometheus.CounterVec
	retries      *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics creates and registers the engine metrics with registry
// (prometheus.DefaultRegisterer if nil).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		enabled: true,
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowlaws",
			Subsystem: "engine",
			Name:      "inflight_batches",
			Help:      "Number of batches being processed by workers",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowlaws",
			Subsystem: "engine",
			Name:      "queue_depth",
			Help:      "Number of batches waiting in the frontier",
		}),
		batchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowlaws",
			Subsystem: "engine",
			Name:      "batch_latency_ms",
			Help:      "Batch processing duration in milliseconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000},
		}, []string{"node", "status"}),
		items: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowlaws",
			Subsystem: "engine",
			Name:      "items_total",
			Help:      "Items consumed per operator",
		}, []string{"node"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowlaws",
			Subsystem: "engine",
			Name:      "retries_total",
			Help:      "Retried sink writes, store merges and service lookups",
		}, []string{"node", "reason"}),
	}
}

func (m *Metrics) on() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// RecordBatch observes one processed batch of n items.
func (m *Metrics) RecordBatch(node string, n int, latency time.Duration, status string) {
	if !m.on() {
		return
	}
	m.batchLatency.WithLabelValues(node, status).Observe(float64(latency.Microseconds()) / 1000)
	m.items.WithLabelValues(node).Add(float64(n))
}

// IncrementRetries counts one retry of an operation on node.
func (m *Metrics) IncrementRetries(node, reason string) {
	if !m.on() {
		return
	}
	m.retries.WithLabelValues(node, reason).Inc()
}

// UpdateQueueDepth sets the frontier length.
func (m *Metrics) UpdateQueueDepth(depth int) {
	if !m.on() {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// AddInflight adjusts the in-flight batch gauge by delta.
func (m *Metrics) AddInflight(delta int) {
	if !m.on() {
		return
	}
	m.inflight.Add(float64(delta))
}

// Disable stops recording.
func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable resumes recording after Disable.
func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}
