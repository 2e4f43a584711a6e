package ws

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricConnections           = "pulse_ws_connections"
	MetricMessagesSent          = "pulse_ws_messages_sent_total"
	MetricSendFailures          = "pulse_ws_send_failures_total"
	MetricProtocolErrors        = "pulse_ws_protocol_errors_total"
	MetricHeartbeatTerminations = "pulse_ws_heartbeat_terminations_total"
	MetricAlerts                = "pulse_alerts_total"
)

// Metrics contains Prometheus metrics for the broadcast hub.
type Metrics struct {
	connections           prometheus.Gauge
	messagesSent          *prometheus.CounterVec
	sendFailures          prometheus.Counter
	protocolErrors        prometheus.Counter
	heartbeatTerminations prometheus.Counter
	alerts                *prometheus.CounterVec
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricConnections,
			Help: "Number of connected dashboards",
		}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricMessagesSent,
			Help: "Messages queued to dashboards by type",
		}, []string{"type"}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSendFailures,
			Help: "Sends that failed and caused the dashboard to be dropped",
		}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricProtocolErrors,
			Help: "Unparseable messages received from dashboards",
		}),
		heartbeatTerminations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricHeartbeatTerminations,
			Help: "Dashboards terminated for missing a heartbeat",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricAlerts,
			Help: "Alerts broadcast by level",
		}, []string{"level"}),
	}
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.connections,
		m.messagesSent,
		m.sendFailures,
		m.protocolErrors,
		m.heartbeatTerminations,
		m.alerts,
	}
}

func (m *Metrics) setConnections(n int) {
	m.connections.Set(float64(n))
}

func (m *Metrics) incSent(t MessageType) {
	m.messagesSent.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) incSendFailures() {
	m.sendFailures.Inc()
}

func (m *Metrics) incProtocolErrors() {
	m.protocolErrors.Inc()
}

func (m *Metrics) incHeartbeatTerminations() {
	m.heartbeatTerminations.Inc()
}

func (m *Metrics) incAlert(level string) {
	m.alerts.WithLabelValues(level).Inc()
}
