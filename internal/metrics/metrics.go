package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "together"

// Drop reasons for RelayDropped.
const (
	ReasonUnknownTarget = "unknown_target"
	ReasonClosed        = "closed"
	ReasonBackpressure  = "backpressure"
)

type Metrics struct {
	Connections  prometheus.Gauge
	Rooms        prometheus.Gauge
	Events       *prometheus.CounterVec
	Malformed    prometheus.Counter
	RelayDropped *prometheus.CounterVec
	Kicked       prometheus.Counter
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open signaling connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Decoded inbound events by type.",
		}, []string{"type"}),
		Malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Inbound frames dropped because they could not be decoded.",
		}),
		RelayDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_frames_total",
			Help:      "Outbound frames that were not delivered, by reason.",
		}, []string{"reason"}),
		Kicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kicked_total",
			Help:      "Connections closed by the backpressure policy.",
		}),
	}
	reg.MustRegister(m.Connections, m.Rooms, m.Events, m.Malformed, m.RelayDropped, m.Kicked)
	return m
}

// Handler exposes Prometheus metrics gathered from g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
