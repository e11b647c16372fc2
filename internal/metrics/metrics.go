// Package metrics defines the Prometheus metrics of the photo archive.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// Upload outcomes used as the "outcome" label of UploadsTotal.
const (
	OutcomeSuccess            = "success"
	OutcomeValidationFailed   = "validation_failed"
	OutcomeUnauthorized       = "unauthorized"
	OutcomeNotApproved        = "not_approved"
	OutcomeReadFailed         = "read_failed"
	OutcomeStorageUnavailable = "storage_unavailable"
	OutcomePersistenceFailed  = "persistence_failed"
)

// HTTP metrics.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoarchive_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photoarchive_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Photo lifecycle metrics.
var (
	// UploadsTotal counts upload attempts per file by outcome.
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoarchive_uploads_total",
			Help: "Photo uploads by outcome",
		},
		[]string{"outcome"},
	)

	// OrphanedBlobsTotal counts blobs written whose metadata row was never
	// created.
	OrphanedBlobsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "photoarchive_orphaned_blobs_total",
			Help: "Blobs stored without a metadata row",
		},
	)

	// BlobDeleteFailuresTotal counts blob deletions that failed while the
	// photo row was removed anyway.
	BlobDeleteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "photoarchive_blob_delete_failures_total",
			Help: "Blob deletions that failed during photo deletion",
		},
	)

	PhotosDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "photoarchive_photos_deleted_total",
			Help: "Photos deleted",
		},
	)

	// ListingCacheTotal counts listing cache lookups by result (hit, miss).
	ListingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoarchive_listing_cache_total",
			Help: "Listing cache lookups",
		},
		[]string{"result"},
	)
)

// Register registers all collectors with the default registry. It is safe to
// call multiple times.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			UploadsTotal,
			OrphanedBlobsTotal,
			BlobDeleteFailuresTotal,
			PhotosDeletedTotal,
			ListingCacheTotal,
		)
		// Present in /metrics output before the first upload.
		UploadsTotal.WithLabelValues(OutcomeSuccess)
	})
}

// Middleware records request counts and latency labelled by route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
