package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(updatesTotal, updateHandleLatency, versionConflictsTotal, cursorWatermark)
}

var updatesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "updates_total",
		Help: "Processed updates by kind and status (committed/duplicate/skipped/error).",
	},
	[]string{"kind", "status"},
)

var updateHandleLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "update_handle_latency_ms",
		Help:    "Dispatch-to-commit latency distribution in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 400, 800, 1600, 3000},
	},
	[]string{"kind"},
)

var versionConflictsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "conversation_version_conflicts_total",
		Help: "Optimistic-concurrency commit conflicts that triggered a retry.",
	},
)

var cursorWatermark = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "cursor_last_update_id",
		Help: "Durable watermark of the last fully processed update id.",
	},
)

func ObserveUpdate(kind, status string, latencyMs int) {
	updatesTotal.WithLabelValues(norm(kind), norm(status)).Inc()
	updateHandleLatency.WithLabelValues(norm(kind)).Observe(float64(latencyMs))
}

func IncVersionConflict() { versionConflictsTotal.Inc() }

func SetCursorWatermark(id int64) { cursorWatermark.Set(float64(id)) }
