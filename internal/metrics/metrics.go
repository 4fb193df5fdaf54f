// Package metrics holds the Prometheus collectors for ingestion, aggregation and fan-out.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counter store
	IncrementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pageviews_increments_total",
			Help: "Total number of counter upserts by store backend and result",
		},
		[]string{"backend", "result"},
	)

	IncrementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pageviews_increment_duration_seconds",
			Help:    "Duration of counter upserts in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"backend"},
	)

	ViewsCounted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pageviews_views_counted_total",
			Help: "Sum of all view increments applied to the counter store",
		},
	)

	StoreConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pageviews_store_conflict_retries_total",
			Help: "Optimistic transaction retries caused by write conflicts",
		},
	)

	// Batches
	BatchEntries = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pageviews_batch_entries",
			Help:    "Number of (page, timestamp) entries per multi-page request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	BatchPartialFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pageviews_batch_partial_failures_total",
			Help: "Batches where at least one increment failed after validation",
		},
	)

	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pageviews_validation_failures_total",
			Help: "Rejected ingestion payloads by route",
		},
		[]string{"route"},
	)

	// Fan-out
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pageviews_publish_total",
			Help: "Messages published to the queue pool by queue and result",
		},
		[]string{"queue", "result"},
	)

	DistributorState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pageviews_distributor_state",
			Help: "Distributor connection state (0=disconnected, 1=connecting, 2=ready)",
		},
	)
)

// RecordIncrement records the outcome of one counter upsert.
func RecordIncrement(backend string, amount int64, duration time.Duration, err error) {
	IncrementDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if err != nil {
		IncrementsTotal.WithLabelValues(backend, "error").Inc()
		return
	}
	IncrementsTotal.WithLabelValues(backend, "ok").Inc()
	ViewsCounted.Add(float64(amount))
}

// RecordPublish records the outcome of one queue publish.
func RecordPublish(queue string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	PublishTotal.WithLabelValues(queue, result).Inc()
}
