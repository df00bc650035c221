// Package metrics exposes Prometheus instrumentation for the video pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gptveo"

var (
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "generations_total",
		Help:      "Video generation runs by terminal status.",
	}, []string{"status"})

	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "generation_duration_seconds",
		Help:      "Wall-clock duration of generation runs, submit to artifact.",
		Buckets:   []float64{5, 15, 30, 60, 120, 240, 480, 600, 900},
	}, []string{"status"})

	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "polls_total",
		Help:      "Operation poll attempts by outcome.",
	}, []string{"outcome"})

	tokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "token_refreshes_total",
		Help:      "Service-account token refreshes by outcome.",
	}, []string{"outcome"})

	storageOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "operations_total",
		Help:      "Cloud storage calls by operation and outcome.",
	}, []string{"operation", "outcome"})

	artifactBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "artifact_bytes",
		Help:      "Size of downloaded video artifacts in bytes.",
		Buckets:   prometheus.ExponentialBuckets(1<<18, 4, 8),
	})
)

// RecordGeneration records one finished pipeline run.
func RecordGeneration(status string, d time.Duration) {
	generationsTotal.WithLabelValues(status).Inc()
	generationDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordPoll records a single poll attempt. Outcome is one of
// "pending", "done", "transport_error".
func RecordPoll(outcome string) {
	pollsTotal.WithLabelValues(outcome).Inc()
}

// RecordTokenRefresh records a token mint against the OAuth endpoint.
func RecordTokenRefresh(outcome string) {
	tokenRefreshesTotal.WithLabelValues(outcome).Inc()
}

// RecordStorageOp records one storage API call, e.g. ("fetch", "ok").
func RecordStorageOp(operation, outcome string) {
	storageOpsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordArtifactSize records the byte size of a fetched artifact.
func RecordArtifactSize(n int64) {
	artifactBytes.Observe(float64(n))
}
