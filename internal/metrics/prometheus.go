// ABOUTME: Prometheus metrics for command delivery and session lifecycles
// ABOUTME: Counters and gauges registered via promauto, exposed on /metrics

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the orchestrator
type Metrics struct {
	// Command delivery metrics
	CommandsSent         *prometheus.CounterVec // labels: channel (realtime|durable), type
	CommandsConsumed     prometheus.Counter
	CommandsDelivered    prometheus.Counter
	CommandsAcknowledged prometheus.Counter

	// Streaming session metrics
	StreamingSessionsStarted prometheus.Counter
	StreamingSessionsStopped *prometheus.CounterVec // labels: reason

	// Talk session metrics
	TalkSessionsStarted prometheus.Counter
	TalkSessionsClosed  *prometheus.CounterVec // labels: reason

	// Realtime channel metrics
	ConnectedClients prometheus.Gauge
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates and registers all metrics on the given registerer.
// Tests pass a fresh registry to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CommandsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pso_commands_sent_total",
			Help: "Total commands dispatched, by delivery channel and command type",
		}, []string{"channel", "type"}),
		CommandsConsumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pso_commands_consumed_total",
			Help: "Total commands dequeued from the durable channel",
		}),
		CommandsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "pso_commands_delivered_total",
			Help: "Total commands pushed to a connected client",
		}),
		CommandsAcknowledged: factory.NewCounter(prometheus.CounterOpts{
			Name: "pso_commands_acknowledged_total",
			Help: "Total pending commands newly acknowledged",
		}),
		StreamingSessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "pso_streaming_sessions_started_total",
			Help: "Total streaming sessions started",
		}),
		StreamingSessionsStopped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pso_streaming_sessions_stopped_total",
			Help: "Total streaming sessions stopped, by reason",
		}, []string{"reason"}),
		TalkSessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "pso_talk_sessions_started_total",
			Help: "Total talk sessions registered",
		}),
		TalkSessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pso_talk_sessions_closed_total",
			Help: "Total talk sessions closed, by stop reason",
		}, []string{"reason"}),
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pso_connected_clients",
			Help: "Number of identities with a live realtime subscription",
		}),
	}
}
