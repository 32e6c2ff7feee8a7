package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the relay's Prometheus instruments. Event counters are
// labelled by domain ("chat" or "friend").
type Metrics struct {
	ConnectionsTotal  *prometheus.CounterVec
	ActiveConnections *prometheus.GaugeVec
	EventsPublished   *prometheus.CounterVec
	EventsDelivered   *prometheus.CounterVec
	EventsDropped     *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
}

// New creates the metric set and registers it with reg. Tests pass their
// own registry so parallel packages do not collide on the default one.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kutter_connections_total",
			Help: "Total websocket connections handled",
		}, []string{"domain"}),
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kutter_active_connections",
			Help: "Currently registered sessions",
		}, []string{"domain"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kutter_events_published_total",
			Help: "Domain events published to the broadcast bus",
		}, []string{"domain"}),
		EventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kutter_events_delivered_total",
			Help: "Domain events written to a subscriber socket",
		}, []string{"domain"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kutter_events_dropped_total",
			Help: "Publishes dropped because a subscriber queue was full",
		}, []string{"domain"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kutter_errors_total",
			Help: "Errors by type",
		}, []string{"type"}),
	}
	reg.MustRegister(
		m.ConnectionsTotal,
		m.ActiveConnections,
		m.EventsPublished,
		m.EventsDelivered,
		m.EventsDropped,
		m.ErrorsTotal,
	)
	return m
}
