package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orgmedia",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orgmedia",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		},
		[]string{"method", "route"},
	)

	// Files accepted or rejected by the backend
	StoredFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orgmedia",
			Subsystem: "api",
			Name:      "stored_files_total",
			Help:      "Files received by upload endpoints",
		},
		[]string{"kind", "status"},
	)

	StoredBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orgmedia",
			Subsystem: "api",
			Name:      "stored_bytes_total",
			Help:      "Bytes written to storage",
		},
		[]string{"kind"},
	)

	// Post-processing jobs
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orgmedia",
			Subsystem: "jobs",
			Name:      "processed_total",
			Help:      "Post-processing tasks handled",
		},
		[]string{"task", "status"},
	)

	// Client-side orchestrator uploads
	ClientUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orgmedia",
			Subsystem: "client",
			Name:      "uploads_total",
			Help:      "Upload requests issued by the orchestrator",
		},
		[]string{"strategy", "outcome"},
	)

	ClientUploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orgmedia",
			Subsystem: "client",
			Name:      "upload_bytes_total",
			Help:      "Bytes sent in successful orchestrator uploads",
		},
		[]string{"strategy"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, route, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, route, status).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(durationSec)
}

// RecordStoredFile records a file handled by an upload endpoint
func RecordStoredFile(kind, status string, bytes int64) {
	StoredFilesTotal.WithLabelValues(kind, status).Inc()
	if status == "success" {
		StoredBytesTotal.WithLabelValues(kind).Add(float64(bytes))
	}
}

// RecordJob records a post-processing task outcome
func RecordJob(task, status string) {
	JobsTotal.WithLabelValues(task, status).Inc()
}

// RecordClientUpload records one orchestrator request
func RecordClientUpload(strategy, outcome string, bytes int64) {
	ClientUploadsTotal.WithLabelValues(strategy, outcome).Inc()
	if outcome == "success" {
		ClientUploadBytesTotal.WithLabelValues(strategy).Add(float64(bytes))
	}
}
