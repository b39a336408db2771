package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the inbox counters. A nil *Metrics is valid and records nothing,
// so controllers built in tests do not need a registry.
type Metrics struct {
	listFetches    *prometheus.CounterVec
	contentFetches *prometheus.CounterVec
	mutations      *prometheus.CounterVec
	realtime       *prometheus.CounterVec
	sessions       prometheus.Gauge
}

// New creates the inbox metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		listFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldinbox",
			Name:      "list_fetches_total",
			Help:      "Communication list fetches by outcome.",
		}, []string{"outcome"}),
		contentFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldinbox",
			Name:      "content_fetches_total",
			Help:      "Selected item content loads by kind and source.",
		}, []string{"kind", "source"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldinbox",
			Name:      "mutations_total",
			Help:      "User mutations by action and outcome.",
		}, []string{"action", "outcome"}),
		realtime: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldinbox",
			Name:      "realtime_events_total",
			Help:      "Realtime channel events by outcome.",
		}, []string{"outcome"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fieldinbox",
			Name:      "active_sessions",
			Help:      "Open inbox websocket sessions.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.listFetches, m.contentFetches, m.mutations, m.realtime, m.sessions)
	}

	return m
}

// ListFetch records a list fetch outcome (success, error, dropped, skipped, stale).
func (m *Metrics) ListFetch(outcome string) {
	if m == nil {
		return
	}
	m.listFetches.WithLabelValues(outcome).Inc()
}

// ContentFetch records where selected content came from (cache, inline, remote, error, stale).
func (m *Metrics) ContentFetch(kind, source string) {
	if m == nil {
		return
	}
	m.contentFetches.WithLabelValues(kind, source).Inc()
}

// Mutation records a mutation outcome (success, reverted, error).
func (m *Metrics) Mutation(action, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(action, outcome).Inc()
}

// Realtime records a realtime event outcome (merged, duplicate, filtered, error, stale).
func (m *Metrics) Realtime(outcome string) {
	if m == nil {
		return
	}
	m.realtime.WithLabelValues(outcome).Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}
