// Package metrics provides Prometheus metrics for the content API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts handled requests by route pattern and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cms",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration measures request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cms",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ImageUploadsTotal counts image uploads by result ("stored" or "fallback").
	ImageUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cms",
			Name:      "image_uploads_total",
			Help:      "Total number of article image uploads",
		},
		[]string{"result"},
	)

	// URLMigrationsTotal counts records seen by the detail URL migration.
	URLMigrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cms",
			Name:      "url_migrations_total",
			Help:      "Total number of articles processed by the detail URL migration",
		},
		[]string{"outcome"},
	)
)

// RecordRequest records a handled HTTP request.
func RecordRequest(method, route, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
}

// RecordImageUpload records the outcome of an image upload.
func RecordImageUpload(stored bool) {
	if stored {
		ImageUploadsTotal.WithLabelValues("stored").Inc()
		return
	}
	ImageUploadsTotal.WithLabelValues("fallback").Inc()
}

// RecordURLMigration adds the counts of one migration run.
func RecordURLMigration(updated, skipped, failed int) {
	URLMigrationsTotal.WithLabelValues("updated").Add(float64(updated))
	URLMigrationsTotal.WithLabelValues("skipped").Add(float64(skipped))
	URLMigrationsTotal.WithLabelValues("failed").Add(float64(failed))
}
