package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics tracks orchestrator-level counters: half-sync outcomes and
// durations, conflict counts, and the pending-change queue size, mirroring the teacher's
// EventBus ConnectionsActive/EventsTotal gauges in internal/realtime/metrics.go.
type SyncMetrics struct {
	SyncTotal           *prometheus.CounterVec
	SyncDurationSeconds *prometheus.HistogramVec
	ConflictsTotal      *prometheus.CounterVec
	PendingChanges      prometheus.Gauge
}

// NewSyncMetrics registers and returns orchestrator metrics under namespace.
func NewSyncMetrics(namespace string) *SyncMetrics {
	return &SyncMetrics{
		SyncTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "total",
				Help:      "Completed half-syncs by type (pull|push) and outcome (completed|failed).",
			},
			[]string{"type", "outcome"},
		),
		SyncDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "duration_seconds",
				Help:      "Wall-clock duration of a half-sync.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		ConflictsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "conflicts_total",
				Help:      "Conflicts detected and routed to the resolver, by outcome.",
			},
			[]string{"outcome"},
		),
		PendingChanges: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "pending_changes",
				Help:      "Current size of the pending-change queue.",
			},
		),
	}
}

func (m *SyncMetrics) RecordSync(syncType, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SyncTotal.WithLabelValues(syncType, outcome).Inc()
	m.SyncDurationSeconds.WithLabelValues(syncType).Observe(durationSeconds)
}

func (m *SyncMetrics) RecordConflict(outcome string) {
	if m == nil {
		return
	}
	m.ConflictsTotal.WithLabelValues(outcome).Inc()
}

func (m *SyncMetrics) SetPendingChanges(n int) {
	if m == nil {
		return
	}
	m.PendingChanges.Set(float64(n))
}
