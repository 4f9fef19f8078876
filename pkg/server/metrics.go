package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/derekjr/chatrelay/pkg/protocol"
)

// Metrics holds the Prometheus metrics for the router.
type Metrics struct {
	activeConnections prometheus.Gauge
	registeredHandles prometheus.Gauge
	pdusReceived      *prometheus.CounterVec
	pdusDelivered     *prometheus.CounterVec
	pdusDropped       prometheus.Counter
	broadcastFanout   prometheus.Histogram
}

// NewMetrics registers and returns the metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		activeConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chatrelay_active_connections",
			Help: "Current number of accepted connections, registered or not",
		}),
		registeredHandles: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chatrelay_registered_handles",
			Help: "Current number of registered handles",
		}),
		pdusReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_pdus_received_total",
			Help: "Total PDUs received from clients by flag",
		}, []string{"flag"}),
		pdusDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_pdus_delivered_total",
			Help: "Total PDUs delivered to clients by flag",
		}, []string{"flag"}),
		pdusDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_pdus_dropped_total",
			Help: "Total malformed PDUs dropped without a response",
		}),
		broadcastFanout: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatrelay_broadcast_fanout",
			Help:    "Number of clients each broadcast was forwarded to",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}),
	}
}

func (m *Metrics) RecordConnections(n int) {
	m.activeConnections.Set(float64(n))
}

func (m *Metrics) RecordRegistered(n int) {
	m.registeredHandles.Set(float64(n))
}

func (m *Metrics) RecordReceived(flag uint8) {
	m.pdusReceived.WithLabelValues(protocol.FlagName(flag)).Inc()
}

func (m *Metrics) RecordDelivered(flag uint8) {
	m.pdusDelivered.WithLabelValues(protocol.FlagName(flag)).Inc()
}

func (m *Metrics) RecordDropped() {
	m.pdusDropped.Inc()
}

func (m *Metrics) ObserveFanout(n int) {
	m.broadcastFanout.Observe(float64(n))
}
