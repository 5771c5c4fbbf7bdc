// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring vecview.
package observability

import "github.com/prometheus/client_golang/prometheus"

// ScanBuckets covers filename scans from a handful of collections up to
// tens of thousands.
var ScanBuckets = []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RefreshTotal counts filename mapping refreshes by outcome (scanned, cached, error).
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vecview_catalog_refresh_total",
			Help: "Filename mapping refreshes",
		},
		[]string{"outcome"},
	)

	// RefreshDuration records the duration of full collection scans in seconds.
	RefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vecview_catalog_refresh_duration_seconds",
			Help:    "Collection scan duration",
			Buckets: ScanBuckets,
		},
	)

	// CollectionsScanned is the number of collections seen by the last scan.
	CollectionsScanned = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vecview_catalog_collections",
			Help: "Collections seen by the last scan",
		},
	)

	// FilenamesMapped is the number of unique filenames in the mapping.
	FilenamesMapped = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vecview_catalog_filenames",
			Help: "Unique filenames in the mapping",
		},
	)

	// ScanFailuresTotal counts collections whose first record could not be read.
	ScanFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vecview_catalog_scan_failures_total",
			Help: "Collections skipped during a scan",
		},
	)

	// DeletesTotal counts collection deletions by outcome (deleted, failed).
	DeletesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vecview_collections_deleted_total",
			Help: "Collection deletions",
		},
		[]string{"outcome"},
	)

	// RequestsTotal counts HTTP requests by method, route and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vecview_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vecview_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		RefreshTotal,
		RefreshDuration,
		CollectionsScanned,
		FilenamesMapped,
		ScanFailuresTotal,
		DeletesTotal,
		RequestsTotal,
		RequestDuration,
	)
}
