// Package metrics exposes case lifecycle counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
)

// Registry holds the service's collectors on a private registry.
type Registry struct {
	reg *prometheus.Registry

	Transitions   *prometheus.CounterVec
	AuditHandOffs *prometheus.CounterVec
	Broadcasts    *prometheus.CounterVec
	Deliveries    prometheus.Counter
	PeersDropped  prometheus.Counter
}

// New registers every collector.
func New() *Registry {
	r := prometheus.NewRegistry()
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "counterdesk_case_transitions_total",
		Help: "Committed case status changes.",
	}, []string{"kind", "from", "to"})
	audit := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "counterdesk_audit_handoffs_total",
		Help: "Audit ledger hand-offs by outcome.",
	}, []string{"kind", "ok"})
	broadcasts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "counterdesk_broadcast_events_total",
		Help: "Case events published to realtime rooms.",
	}, []string{"event"})
	deliveries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "counterdesk_broadcast_deliveries_total",
		Help: "Case event frames queued to subscribers.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "counterdesk_broadcast_peers_dropped_total",
		Help: "Realtime subscribers disconnected.",
	})

	r.MustRegister(transitions, audit, broadcasts, deliveries, dropped)
	return &Registry{
		reg:           r,
		Transitions:   transitions,
		AuditHandOffs: audit,
		Broadcasts:    broadcasts,
		Deliveries:    deliveries,
		PeersDropped:  dropped,
	}
}

var _ domain.Recorder = (*Registry)(nil)

// CaseTransition counts one committed status change.
func (r *Registry) CaseTransition(kind domain.Kind, from domain.Status, to domain.Status) {
	r.Transitions.WithLabelValues(string(kind), string(from), string(to)).Inc()
}

// AuditHandOff counts one ledger submission.
func (r *Registry) AuditHandOff(kind domain.Kind, ok bool) {
	r.AuditHandOffs.WithLabelValues(string(kind), strconv.FormatBool(ok)).Inc()
}

// EventPublished counts one published event and its deliveries.
func (r *Registry) EventPublished(event string, subscribers int) {
	r.Broadcasts.WithLabelValues(event).Inc()
	r.Deliveries.Add(float64(subscribers))
}

// PeerDropped counts one disconnected subscriber.
func (r *Registry) PeerDropped() {
	r.PeersDropped.Inc()
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
