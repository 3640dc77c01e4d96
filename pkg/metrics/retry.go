// Package metrics exposes Prometheus instrumentation for the sync engine,
// grounded on the teacher's pkg/metrics package: one struct per concern,
// promauto-registered vectors, nil-receiver methods so metrics are always
// optional for callers that construct components without a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RetryMetrics tracks resync.WithRetry attempts, labeled by
// operation ("pull", "push"), outcome, and classified error type.
type RetryMetrics struct {
	AttemptsTotal      *prometheus.CounterVec
	BackoffSeconds     *prometheus.HistogramVec
	FinalAttemptsTotal *prometheus.HistogramVec
}

// NewRetryMetrics registers and returns retry metrics under namespace.
func NewRetryMetrics(namespace string) *RetryMetrics {
	return &RetryMetrics{
		AttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "attempts_total",
				Help:      "Total retry attempts by operation, outcome, and error type.",
			},
			[]string{"operation", "outcome", "error_type"},
		),
		BackoffSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "backoff_seconds",
				Help:      "Backoff delay waited before a retry attempt.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		),
		FinalAttemptsTotal: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "final_attempts_total",
				Help:      "Number of attempts made until final success or failure.",
				Buckets:   []float64{1, 2, 3, 4, 5, 10},
			},
			[]string{"operation", "outcome"},
		),
	}
}

func (m *RetryMetrics) RecordAttempt(operation, outcome, errorType string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(operation, outcome, errorType).Inc()
}

func (m *RetryMetrics) RecordBackoff(operation string, delaySeconds float64) {
	if m == nil {
		return
	}
	m.BackoffSeconds.WithLabelValues(operation).Observe(delaySeconds)
}

func (m *RetryMetrics) RecordFinalAttempt(operation, outcome string, attempts int) {
	if m == nil {
		return
	}
	m.FinalAttemptsTotal.WithLabelValues(operation, outcome).Observe(float64(attempts))
}
