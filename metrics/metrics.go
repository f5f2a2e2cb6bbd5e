package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flipbook_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flipbook_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Ingestion metrics
var (
	IngestFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flipbook_ingest_files_total",
			Help: "Total number of files recorded by the ingestion endpoint",
		},
		[]string{"mode", "result"}, // mode: manifest|upload, result: ok|error
	)

	IngestWindowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flipbook_ingest_windows_total",
			Help: "Total number of upload windows processed",
		},
	)

	TranscodeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flipbook_transcode_total",
			Help: "Total number of transcode attempts by outcome",
		},
		[]string{"outcome"}, // resized|recompressed|fallback
	)

	PlacementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flipbook_placement_duration_seconds",
			Help:    "Time spent placing a single file",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"target", "status"}, // target: remote|local
	)
)

// Middleware records request counts and durations. The route template is used
// as path label to keep cardinality bounded.
func Middleware(c *gin.Context) {
	start := time.Now()
	c.Next()
	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
}
