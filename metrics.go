package boardirc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics of the connection domain.
type Metrics struct {
	Sessions        prometheus.Gauge
	Channels        prometheus.Gauge
	Commands        *prometheus.CounterVec
	Disconnects     *prometheus.CounterVec
	Deliveries      *prometheus.CounterVec
	DroppedRequests prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg unless it is
// nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "boardirc",
			Name:      "sessions",
			Help:      "Connected client sessions.",
		}),
		Channels: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "boardirc",
			Name:      "channels",
			Help:      "Channels with at least one member.",
		}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boardirc",
			Name:      "commands_total",
			Help:      "Client commands by verb.",
		}, []string{"command"}),
		Disconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boardirc",
			Name:      "disconnects_total",
			Help:      "Closed sessions by cause.",
		}, []string{"cause"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boardirc",
			Name:      "deliveries_total",
			Help:      "Board messages written to sessions, by routing.",
		}, []string{"route"}),
		DroppedRequests: f.NewCounter(prometheus.CounterOpts{
			Namespace: "boardirc",
			Name:      "dropped_watch_requests_total",
			Help:      "Watch requests dropped because the poller queue was full.",
		}),
	}
}
