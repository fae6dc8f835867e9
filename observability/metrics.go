package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type operationMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
	height    prometheus.Gauge
}

var (
	operationMetricsOnce sync.Once
	operationRegistry    *operationMetrics
)

// Operations returns the lazily-initialised registry recording escrow
// operations executed by the host.
func Operations() *operationMetrics {
	operationMetricsOnce.Do(func() {
		operationRegistry = &operationMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "host",
				Name:      "operations_total",
				Help:      "Total escrow operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "host",
				Name:      "errors_total",
				Help:      "Total failed escrow operations segmented by operation and error kind.",
			}, []string{"op", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "escrow",
				Subsystem: "host",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for escrow operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "host",
				Name:      "throttles_total",
				Help:      "Count of operations rejected by the per-caller quota.",
			}, []string{"op"}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "escrow",
				Subsystem: "host",
				Name:      "height",
				Help:      "Logical clock height after the last committed operation.",
			}),
		}
		prometheus.MustRegister(
			operationRegistry.requests,
			operationRegistry.errors,
			operationRegistry.latency,
			operationRegistry.throttles,
			operationRegistry.height,
		)
	})
	return operationRegistry
}

// Observe records the outcome of an operation. kind is empty on success and
// the error kind tag otherwise.
func (m *operationMetrics) Observe(op, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if kind != "" {
		outcome = "error"
		m.errors.WithLabelValues(op, kind).Inc()
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for op.
func (m *operationMetrics) RecordThrottle(op string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.throttles.WithLabelValues(op).Inc()
}

// SetHeight publishes the committed clock height.
func (m *operationMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}
