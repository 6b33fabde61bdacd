// Package metrics exposes Prometheus counters for the timeline engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors recorded by the store and sync manager.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Saves            *prometheus.CounterVec
	Loads            *prometheus.CounterVec
	Deletes          prometheus.Counter
	CleanupRemoved   prometheus.Counter
	Conflicts        *prometheus.CounterVec
	Resolutions      *prometheus.CounterVec
	StorageBytes     prometheus.Gauge
	PendingConflicts prometheus.Gauge
}

// New registers the collectors with reg. A nil reg uses a private registry,
// which keeps tests independent of the global default.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		Saves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timeline_saves_total",
			Help: "Timeline save attempts by result",
		}, []string{"result"}),
		Loads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timeline_loads_total",
			Help: "Timeline loads by the source that answered",
		}, []string{"source"}),
		Deletes: factory.NewCounter(prometheus.CounterOpts{
			Name: "timeline_deletes_total",
			Help: "Timeline documents deleted",
		}),
		CleanupRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "timeline_cleanup_removed_total",
			Help: "Entries evicted by cleanup",
		}),
		Conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timeline_conflicts_total",
			Help: "Conflicts detected by kind",
		}, []string{"kind"}),
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timeline_conflict_resolutions_total",
			Help: "Conflict resolutions by strategy and result",
		}, []string{"strategy", "result"}),
		StorageBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "timeline_storage_bytes",
			Help: "Estimated bytes used in the backing store",
		}),
		PendingConflicts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "timeline_pending_conflicts",
			Help: "Conflicts queued for later or manual resolution",
		}),
	}
}

func (m *Metrics) RecordSave(result string) {
	if m == nil || m.Saves == nil {
		return
	}
	m.Saves.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordLoad(source string) {
	if m == nil || m.Loads == nil {
		return
	}
	m.Loads.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordDelete() {
	if m == nil || m.Deletes == nil {
		return
	}
	m.Deletes.Inc()
}

func (m *Metrics) RecordCleanup(removed int) {
	if m == nil || m.CleanupRemoved == nil {
		return
	}
	m.CleanupRemoved.Add(float64(removed))
}

func (m *Metrics) RecordConflict(kind string) {
	if m == nil || m.Conflicts == nil {
		return
	}
	m.Conflicts.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordResolution(strategy, result string) {
	if m == nil || m.Resolutions == nil {
		return
	}
	m.Resolutions.WithLabelValues(strategy, result).Inc()
}

func (m *Metrics) SetStorageBytes(n int64) {
	if m == nil || m.StorageBytes == nil {
		return
	}
	m.StorageBytes.Set(float64(n))
}

func (m *Metrics) SetPending(n int) {
	if m == nil || m.PendingConflicts == nil {
		return
	}
	m.PendingConflicts.Set(float64(n))
}
