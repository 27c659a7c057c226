package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "chatrelay"

// Metrics are the relay's Prometheus instruments.
type Metrics struct {
	sessions         prometheus.Gauge
	namedSessions    prometheus.Gauge
	accepted         prometheus.Counter
	events           *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	protocolErrors   prometheus.Counter
	framesSent       prometheus.Counter
}

// NewMetrics registers the relay metrics with reg. A nil reg uses a private
// registry, which keeps tests from colliding on the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions",
			Help:      "Live sessions known to the coordinator.",
		}),
		namedSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "named_sessions",
			Help:      "Sessions that have claimed a username.",
		}),
		accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_accepted_total",
			Help:      "Connections handed to the coordinator.",
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Events processed by the coordinator, by kind.",
		}, []string{"kind"}),
		deliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "delivery_failures_total",
			Help:      "Commands the coordinator could not hand to an agent, by reason.",
		}, []string{"reason"}),
		protocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "protocol_errors_total",
			Help:      "Inbound frames discarded because they could not be decoded.",
		}),
		framesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_sent_total",
			Help:      "Text frames written to clients.",
		}),
	}
}

func (m *Metrics) observeRouting(r *registry) {
	m.sessions.Set(float64(r.sessionCount()))
	m.namedSessions.Set(float64(r.namedCount()))
}
