package laws

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dshills/flowlaws/laws/shapes"
)

// Trial outcomes used as the outcome label.
const (
	OutcomePass = "pass"
	OutcomeFail = "fail"
)

// Metrics collects Prometheus metrics for the harness.
//
// Metrics exposed (all namespaced with "flowlaws_"):
//
//  1. trials_total (counter): finished trials.
//     Labels: shape, platform, outcome (pass/fail).
//  2. trial_duration_ms (histogram): wall time per trial.
//     Labels: shape.
//  3. keys_checked_total (counter): reference keys compared against stores.
//     Labels: shape.
//  4. mismatches_total (counter): trials whose output disagreed with the
//     reference, by error code. Engine and setup failures are not counted.
//     Labels: shape, code.
type Metrics struct {
	trials      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	keysChecked *prometheus.CounterVec
	mismatches  *prometheus.CounterVec
}

// NewMetrics creates and registers the harness metrics with registry
// (prometheus.DefaultRegisterer if nil).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		trials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowlaws",
			Name:      "trials_total",
			Help:      "Finished trials by outcome",
		}, []string{"shape", "platform", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowlaws",
			Name:      "trial_duration_ms",
			Help:      "Trial duration in milliseconds",
			Buckets:   []float64{0.5, 1, 5, 10, 50, 100, 500, 1000, 5000},
		}, []string{"shape"}),
		keysChecked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowlaws",
			Name:      "keys_checked_total",
			Help:      "Reference keys compared against the store",
		}, []string{"shape"}),
		mismatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowlaws",
			Name:      "mismatches_total",
			Help:      "Failed trials by error code",
		}, []string{"shape", "code"}),
	}
}

// RecordTrial records one finished trial.
func (m *Metrics) RecordTrial(shape shapes.Shape, platform, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.trials.WithLabelValues(string(shape), platform, outcome).Inc()
	m.duration.WithLabelValues(string(shape)).Observe(float64(d.Microseconds()) / 1000)
}

// AddKeysChecked adds n compared keys.
func (m *Metrics) AddKeysChecked(shape shapes.Shape, n int) {
	if m == nil || n == 0 {
		return
	}
	m.keysChecked.WithLabelValues(string(shape)).Add(float64(n))
}

// IncrementMismatch counts one trial that disagreed with the reference.
func (m *Metrics) IncrementMismatch(shape shapes.Shape, code string) {
	if m == nil {
		return
	}
	m.mismatches.WithLabelValues(string(shape), code).Inc()
}
