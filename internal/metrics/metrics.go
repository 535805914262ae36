// Package metrics defines custom Prometheus metrics for cargohold.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// Flush and transfer metrics.
var (
	// UploadsTotal counts objects written to the storage provider.
	UploadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cargohold_uploads_total",
			Help: "Objects uploaded to the storage provider",
		},
	)

	// UploadRetriesTotal counts uploads retried after creating a missing
	// container.
	UploadRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cargohold_upload_retries_total",
			Help: "Uploads retried after container creation",
		},
	)

	// UploadFailuresTotal counts uploads that failed and aborted a flush.
	UploadFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cargohold_upload_failures_total",
			Help: "Uploads that failed and aborted the write flush",
		},
	)

	// DeletesTotal counts objects removed from the storage provider.
	DeletesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cargohold_deletes_total",
			Help: "Objects deleted from the storage provider",
		},
	)

	// DeleteFailuresTotal counts deletes that failed and aborted a flush.
	DeleteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cargohold_delete_failures_total",
			Help: "Deletes that failed and aborted the delete flush",
		},
	)

	// LocalCopiesTotal counts remote objects copied to local paths,
	// by outcome.
	LocalCopiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cargohold_local_copies_total",
			Help: "Remote objects copied to local paths",
		},
		[]string{"status"},
	)

	// FlushDuration observes the latency of whole-queue flushes in seconds.
	FlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cargohold_flush_duration_seconds",
			Help:    "Queue flush latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)
)

// Register registers all Prometheus collectors with the default registry.
// This must be called explicitly (typically from main) so that metrics
// registration can be made conditional on configuration. It is safe to
// call multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			UploadsTotal,
			UploadRetriesTotal,
			UploadFailuresTotal,
			DeletesTotal,
			DeleteFailuresTotal,
			LocalCopiesTotal,
			FlushDuration,
		)
		// Initialize the outcome labels so they appear in /metrics output
		// before any copy has been performed.
		LocalCopiesTotal.WithLabelValues("success")
		LocalCopiesTotal.WithLabelValues("failure")
	})
}
