package sitemaps

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts sitemap requests by feed and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitemaps",
			Name:      "requests_total",
			Help:      "Total number of sitemap document requests",
		},
		[]string{"feed", "status"},
	)

	// RenderDuration measures how long building a document takes.
	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sitemaps",
			Name:      "render_duration_seconds",
			Help:      "Duration of sitemap document rendering in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"feed"},
	)

	// URLsPerDocument observes how many entries each rendered document lists.
	URLsPerDocument = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sitemaps",
			Name:      "urls_per_document",
			Help:      "Distribution of entry counts per sitemap document",
			Buckets:   []float64{0, 1, 10, 50, 100, 500, 1000, 5000, 50000},
		},
		[]string{"feed"},
	)

	// CacheLookups counts cache lookups by key kind and result.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitemaps",
			Name:      "cache_lookups_total",
			Help:      "Total number of cache lookups",
		},
		[]string{"kind", "result"},
	)
)

// RecordRender records a rendered (or failed) document.
func RecordRender(feed, status string, urls int, seconds float64) {
	RequestsTotal.WithLabelValues(feed, status).Inc()
	RenderDuration.WithLabelValues(feed).Observe(seconds)
	if status == "ok" {
		URLsPerDocument.WithLabelValues(feed).Observe(float64(urls))
	}
}

// RecordCacheLookup records a cache hit, miss or error.
func RecordCacheLookup(kind, result string) {
	CacheLookups.WithLabelValues(kind, result).Inc()
}
