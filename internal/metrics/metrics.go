package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks allocation requests by asset class and terminal outcome.
	AllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botpool_allocations_total",
			Help: "Total number of bot allocation requests by asset type and outcome.",
		},
		[]string{"asset_type", "outcome"},
	)

	// Tracks outbound calls to market-data and messaging providers.
	ExternalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botpool_external_requests_total",
			Help: "Total number of outbound provider requests (by provider and status).",
		},
		[]string{"provider", "status"},
	)

	ExternalRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "botpool_external_request_duration_seconds",
			Help:    "Duration of outbound provider requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms → ~10s
		},
		[]string{"provider"},
	)

	// Tracks event deliveries per sink (webhook, nats, rabbitmq).
	EventDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botpool_event_deliveries_total",
			Help: "Total number of pool events delivered to each sink.",
		},
		[]string{"sink", "result"}, // result = "ok" | "error"
	)

	EventPublishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "botpool_event_publish_latency_seconds",
			Help:    "Time taken to deliver a pool event to a sink.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink"},
	)

	// Tracks binding cache hits and misses.
	BindingCacheAccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botpool_binding_cache_access_total",
			Help: "Number of cache hits/misses in the binding cache.",
		},
		[]string{"result"}, // hit | miss
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botpool_errors_total",
			Help: "Count of service-level errors by component.",
		},
		[]string{"component", "reason"},
	)

	UnclaimedEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "botpool_unclaimed_entries",
			Help: "Number of unclaimed bot credentials per pool.",
		},
		[]string{"pool"},
	)

	// Gauges the last successful pool check (seconds since epoch).
	LastPoolCheckTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "botpool_last_pool_check_timestamp",
			Help: "Timestamp (unix seconds) of the last successful pool level check.",
		},
		[]string{"pool"},
	)
)

// ObserveDuration records the time taken since start on the given histogram.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// counters are not meant for duration tracking
	}
}

func IncAllocation(assetType, outcome string) {
	AllocationsTotal.WithLabelValues(assetType, outcome).Inc()
}

func IncExternalRequest(provider, status string) {
	ExternalRequestsTotal.WithLabelValues(provider, status).Inc()
}

func IncEventDelivery(sink, result string) {
	EventDeliveries.WithLabelValues(sink, result).Inc()
}

func IncCacheAccess(result string) {
	BindingCacheAccess.WithLabelValues(result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func SetUnclaimed(pool string, n int) {
	UnclaimedEntries.WithLabelValues(pool).Set(float64(n))
}

func SetLastPoolCheck(pool string, t time.Time) {
	LastPoolCheckTimestamp.WithLabelValues(pool).Set(float64(t.Unix()))
}
