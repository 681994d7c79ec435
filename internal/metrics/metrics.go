// Package metrics defines custom Prometheus metrics for MediaStore.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for request/response size histograms (bytes).
var sizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864}

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediastore_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediastore_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPRequestSize observes request body size in bytes.
	HTTPRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediastore_http_request_size_bytes",
			Help:    "Request body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize observes response body size in bytes.
	HTTPResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediastore_http_response_size_bytes",
			Help:    "Response body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)
)

// Gateway operation metrics.
var (
	// UploadsTotal counts upload attempts by kind (file, ticket, transcode)
	// and outcome (stored, duplicate, error).
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediastore_uploads_total",
			Help: "Upload attempts by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// DownloadsTotal counts downloads by outcome (full, partial, not_found, error).
	DownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediastore_downloads_total",
			Help: "Downloads by outcome",
		},
		[]string{"outcome"},
	)

	// DeletesTotal counts deleted object keys.
	DeletesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediastore_deletes_total",
			Help: "Total object keys deleted",
		},
	)

	// EventsPublishedTotal counts bus events by type and status.
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediastore_events_published_total",
			Help: "Bus events published by type and status",
		},
		[]string{"type", "status"},
	)

	// BytesReceivedTotal counts total bytes received in request bodies.
	BytesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediastore_bytes_received_total",
			Help: "Total bytes received (request bodies)",
		},
	)

	// BytesSentTotal counts total bytes sent in response bodies.
	BytesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediastore_bytes_sent_total",
			Help: "Total bytes sent (response bodies)",
		},
	)
)

// Register registers all Prometheus collectors with the default registry.
// This must be called explicitly (typically from main) so that metrics
// registration can be made conditional on configuration. It is safe to call
// multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPRequestSize,
			HTTPResponseSize,
			UploadsTotal,
			DownloadsTotal,
			DeletesTotal,
			EventsPublishedTotal,
			BytesReceivedTotal,
			BytesSentTotal,
		)
		// Initialize UploadsTotal so it appears in /metrics output even
		// before any upload has been performed.
		UploadsTotal.WithLabelValues("file", "stored")
	})
}

// NormalizePath maps actual request paths to normalized path templates
// suitable for use as Prometheus metric labels. This avoids high-cardinality
// labels from individual object keys and fingerprints.
func NormalizePath(path string) string {
	// Known fixed paths.
	switch path {
	case "/health":
		return "/health"
	case "/healthz":
		return "/healthz"
	case "/readyz":
		return "/readyz"
	case "/docs", "/docs/":
		return "/docs"
	case "/metrics":
		return "/metrics"
	case "/openapi.json":
		return "/openapi.json"
	case "/upload":
		return "/upload"
	case "/upload-with-ticket":
		return "/upload-with-ticket"
	case "/upload/transcode":
		return "/upload/transcode"
	case "/delete":
		return "/delete"
	case "/", "":
		return "/"
	}

	// Starts with /docs (Stoplight Elements assets).
	if strings.HasPrefix(path, "/docs") {
		return "/docs"
	}
	if strings.HasPrefix(path, "/spec/") {
		return "/spec/{filename}"
	}

	switch {
	case strings.HasPrefix(path, "/upload/"):
		return "/upload/{key}"
	case strings.HasPrefix(path, "/download-with-ticket/"):
		return "/download-with-ticket/{key}"
	case strings.HasPrefix(path, "/download/"):
		return "/download/{key}"
	case strings.HasPrefix(path, "/delete/"):
		return "/delete/{key}"
	case strings.HasPrefix(path, "/unique/"):
		return "/unique/{fingerprint}"
	}
	return "/{other}"
}
