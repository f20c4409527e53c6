package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the poller's instruments. A nil registerer yields unregistered
// collectors, which is what tests use.
type Metrics struct {
	Cycles       prometheus.Counter
	CycleSeconds prometheus.Histogram
	FetchErrors  *prometheus.CounterVec
	Events       *prometheus.CounterVec
	StaleReads   prometheus.Counter
	Watches      *prometheus.GaugeVec
	Panics       prometheus.Counter
}

// NewMetrics creates the poller metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: "boardirc",
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Completed poll cycles.",
		}),
		CycleSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "boardirc",
			Subsystem: "poller",
			Name:      "cycle_seconds",
			Help:      "Duration of a poll cycle including upstream fetches.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		FetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boardirc",
			Subsystem: "poller",
			Name:      "fetch_errors_total",
			Help:      "Upstream fetches that failed after retries.",
		}, []string{"resource"}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boardirc",
			Subsystem: "poller",
			Name:      "events_total",
			Help:      "Change events emitted.",
		}, []string{"kind"}),
		StaleReads: f.NewCounter(prometheus.CounterOpts{
			Namespace: "boardirc",
			Subsystem: "poller",
			Name:      "stale_reads_total",
			Help:      "Index entries whose last-modified went backwards.",
		}),
		Watches: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "boardirc",
			Subsystem: "poller",
			Name:      "watches",
			Help:      "Active watches.",
		}, []string{"type"}),
		Panics: f.NewCounter(prometheus.CounterOpts{
			Namespace: "boardirc",
			Subsystem: "poller",
			Name:      "recovered_panics_total",
			Help:      "Poll cycles aborted by a recovered panic.",
		}),
	}
}
