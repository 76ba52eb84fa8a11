package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest metrics
	IngestCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_ingest_calls_total",
			Help: "Total number of inbound webhook calls, by queue outcome",
		},
		[]string{"status"},
	)

	IngestWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_ingest_write_errors_total",
			Help: "Total number of captured calls that could not be persisted",
		},
	)

	IngestQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_ingest_queue_depth",
			Help: "Captured calls waiting to be persisted",
		},
	)

	// Store metrics
	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_store_operation_duration_seconds",
			Help:    "Duration of store sessions in seconds, by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_cache_lookups_total",
			Help: "Record cache lookups, by result (hit, miss or error)",
		},
		[]string{"result"},
	)

	// Forward metrics
	ForwardTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_forward_total",
			Help: "Forward requests, by terminal outcome",
		},
		[]string{"outcome"},
	)

	ForwardUpstreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_forward_upstream_duration_seconds",
			Help:    "Duration of outbound forward requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
