package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(outboundTotal, outboundQueueDepth, outboundSendLatency, rateLimiterWaits)
}

var outboundTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "outbound_messages_total",
		Help: "Outbound messages by terminal status (sent/failed) and retry bucket.",
	},
	[]string{"status", "retried"},
)

var outboundQueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "outbound_queue_depth",
		Help: "Messages currently owned by the sender across all chat queues.",
	},
)

var outboundSendLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "outbound_send_latency_ms",
		Help:    "Enqueue-to-terminal latency distribution in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000, 60000},
	},
)

var rateLimiterWaits = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "outbound_rate_limiter_waits_total",
		Help: "Times the sender paused to honor the global rate ceiling.",
	},
)

func ObserveOutbound(status string, retried bool, latencyMs int) {
	r := "false"
	if retried {
		r = "true"
	}
	outboundTotal.WithLabelValues(norm(status), r).Inc()
	outboundSendLatency.Observe(float64(latencyMs))
}

func SetOutboundQueueDepth(n int) { outboundQueueDepth.Set(float64(n)) }

func IncRateLimiterWait() { rateLimiterWaits.Inc() }
