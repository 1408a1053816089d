package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks outbound API calls to the maker venue.
	MakerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maker_api_requests_total",
			Help: "Total number of maker API requests made (by endpoint and result).",
		},
		[]string{"endpoint", "result"},
	)

	// Measures duration of maker API requests.
	MakerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maker_api_request_duration_seconds",
			Help:    "Duration of maker API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms -> ~16s
		},
		[]string{"endpoint"},
	)

	// Counts status poll ticks by outcome.
	PollTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_poll_ticks_total",
			Help: "Status poll ticks, labelled pending, terminal, or error.",
		},
		[]string{"outcome"},
	)

	// Counts swap executions reaching a terminal state.
	SwapsFinalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swaps_finalized_total",
			Help: "Swap executions finalized, by terminal status.",
		},
		[]string{"status"},
	)

	NATSPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_publish_errors_total",
			Help: "Number of NATS publish failures",
		},
		[]string{"subject"},
	)
)

// ObserveDuration records elapsed time since start on the given histogram.
func ObserveDuration(h *prometheus.HistogramVec, start time.Time, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
}

func IncMakerRequest(endpoint, result string) {
	MakerRequestsTotal.WithLabelValues(endpoint, result).Inc()
}

func IncPollTick(outcome string) {
	PollTicksTotal.WithLabelValues(outcome).Inc()
}

func IncSwapFinalized(status string) {
	SwapsFinalizedTotal.WithLabelValues(status).Inc()
}
