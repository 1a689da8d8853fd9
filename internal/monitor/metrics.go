package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	// metricConnected reflects the current link state: 1 while the Telegram
	// session is up, 0 otherwise.
	metricConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_connected",
			Help: "Whether the Telegram session is currently connected (1) or not (0).",
		},
	)

	// metricReconnects counts connection attempts after the first, i.e. every
	// time the supervisor has to rebuild a session it previously held.
	metricReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_reconnects_total",
			Help: "Total number of Telegram session reconnect attempts.",
		},
	)

	// metricEvents counts processed messages by outcome. Outcomes are a small
	// fixed set (forwarded, skipped, duplicate, failed) so cardinality stays
	// bounded.
	metricEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_events_total",
			Help: "Total number of processed messages by outcome.",
		},
		[]string{"outcome"},
	)

	// metricCleanupDeleted counts rows removed by the retention cleaner,
	// labeled by table.
	metricCleanupDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_cleanup_deleted_rows_total",
			Help: "Total number of rows deleted by the retention cleaner.",
		},
		[]string{"table"},
	)
)

// Outcome labels for metricEvents.
const (
	outcomeForwarded = "forwarded"
	outcomeSkipped   = "skipped"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

func init() {
	prometheus.MustRegister(metricConnected, metricReconnects, metricEvents, metricCleanupDeleted)
}
