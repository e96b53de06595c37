// Package metrics holds the prometheus counters of the cache layer.
//
// All methods are safe on a nil *Metrics so components can run without a
// registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatcache"

// Metrics groups every counter exported by the cache.
type Metrics struct {
	upserts        *prometheus.CounterVec
	deletes        *prometheus.CounterVec
	evaluations    *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	sends          *prometheus.CounterVec
	downloads      *prometheus.CounterVec
	flushes        *prometheus.CounterVec
	statsRefreshes *prometheus.CounterVec
}

// New creates the counters and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "upserts_total",
			Help: "Rows upserted, by entity kind.",
		}, []string{"kind"}),
		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "deletes_total",
			Help: "Rows deleted, by entity kind.",
		}, []string{"kind"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "query", Name: "evaluations_total",
			Help: "Observable query evaluations, by entity kind.",
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "query", Name: "notifications_total",
			Help: "Snapshots delivered to subscribers, by entity kind.",
		}, []string{"kind"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lifecycle", Name: "sends_total",
			Help: "Outbound sends, by outcome.",
		}, []string{"outcome"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lifecycle", Name: "downloads_total",
			Help: "Media downloads, by outcome.",
		}, []string{"outcome"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "flushes_total",
			Help: "Durable flushes of the write scheduler, by outcome.",
		}, []string{"outcome"}),
		statsRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reconcile", Name: "stats_refreshes_total",
			Help: "Conversation aggregate refreshes, by aggregate and outcome.",
		}, []string{"aggregate", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.upserts, m.deletes, m.evaluations, m.notifications,
			m.sends, m.downloads, m.flushes, m.statsRefreshes,
		)
	}
	return m
}

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCached    = "cached"
	OutcomeCancelled = "cancelled"
)

func (m *Metrics) Upserted(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.upserts.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) Deleted(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.deletes.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) Evaluated(kind string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(kind).Inc()
}

func (m *Metrics) Notified(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.notifications.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) Sent(outcome string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Downloaded(outcome string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Flushed(outcome string) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StatsRefreshed(aggregate, outcome string) {
	if m == nil {
		return
	}
	m.statsRefreshes.WithLabelValues(aggregate, outcome).Inc()
}
