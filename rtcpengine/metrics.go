package rtcpengine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors an Engine reports through,
// grounded in pkg/dialog/metrics.go's NewMetricsCollector/
// initPrometheusMetrics pattern (promauto.New* with a namespace/subsystem
// pair) — the teacher's own dependency, unused by the rest of that
// package's build tag but carried here into the one component with
// ongoing counters worth exporting (report cadence, loss, jitter).
type Metrics struct {
	reportsSent    prometheus.Counter
	packetsLost    prometheus.Counter
	packetsReceived prometheus.Counter
	jitter         prometheus.Gauge
	timeouts       prometheus.Counter
}

// NewMetrics registers one Engine's counters under namespace/subsystem.
// Pass distinct subsystem values ("audio", "video") when a session runs
// more than one Engine, to avoid a duplicate-registration panic.
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		reportsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rtcp_reports_sent_total",
			Help:      "Total number of compound RTCP reports sent.",
		}),
		packetsLost: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rtp_packets_lost_total",
			Help:      "Cumulative RTP packets reported lost across all remote sources.",
		}),
		packetsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rtp_packets_received_total",
			Help:      "Total RTP packets received and folded into statistics.",
		}),
		jitter: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rtp_jitter_estimate",
			Help:      "Most recent interarrival jitter estimate, RFC 3550 §A.8 units.",
		}),
		timeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rtcp_timeouts_total",
			Help:      "Number of times this engine detected remote silence past its timeout window.",
		}),
	}
}
