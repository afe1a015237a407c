// Package metrics collects fetch telemetry for Prometheus and keeps the
// request and error counters reported by the health endpoint.
package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ttscraper"

// Health holds process-lifetime counters for outbound profile requests
type Health struct {
	totalRequests atomic.Int64
	totalErrors   atomic.Int64
}

// HealthSnapshot is a point-in-time copy of Health
type HealthSnapshot struct {
	TotalRequests int64 `json:"total_requests"`
	TotalErrors   int64 `json:"total_errors"`
}

// Snapshot returns the current counter values
func (h *Health) Snapshot() HealthSnapshot {
	return HealthSnapshot{
		TotalRequests: h.totalRequests.Load(),
		TotalErrors:   h.totalErrors.Load(),
	}
}

// Collector implements scraper.MetricsRecorder on top of Prometheus
type Collector struct {
	Health

	attempts       *prometheus.CounterVec
	attemptLatency prometheus.Histogram
	fetches        *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	extractedItems *prometheus.CounterVec
	rejectedItems  prometheus.Counter
	apiRequests    *prometheus.CounterVec
	apiLatency     *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Profile page requests by outcome.",
		}, []string{"outcome"}),
		attemptLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_attempt_duration_seconds",
			Help:      "Duration of a single profile page attempt.",
			Buckets:   prometheus.DefBuckets,
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Completed profile fetches by outcome, retries included.",
		}, []string{"outcome"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a profile fetch including backoff.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		extractedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extracted_items_total",
			Help:      "Raw items found in profile pages by extraction strategy.",
		}, []string{"strategy"}),
		rejectedItems: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_items_total",
			Help:      "Raw items the normalizer rejected.",
		}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "status_code"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.attempts,
		c.attemptLatency,
		c.fetches,
		c.fetchLatency,
		c.extractedItems,
		c.rejectedItems,
		c.apiRequests,
		c.apiLatency,
	)

	return c
}

// RecordAttempt records one outbound request. Any outcome other than
// "success" also counts as an error for the health endpoint.
func (c *Collector) RecordAttempt(outcome string, duration time.Duration) {
	c.attempts.WithLabelValues(outcome).Inc()
	c.attemptLatency.Observe(duration.Seconds())

	c.totalRequests.Add(1)
	if outcome != "success" {
		c.totalErrors.Add(1)
	}
}

// RecordExtraction records the items a strategy found and how many were rejected
func (c *Collector) RecordExtraction(strategy string, items, rejected int) {
	c.extractedItems.WithLabelValues(strategy).Add(float64(items))
	c.rejectedItems.Add(float64(rejected))
}

// RecordFetch records a finished FetchPosts call
func (c *Collector) RecordFetch(outcome string, duration time.Duration) {
	c.fetches.WithLabelValues(outcome).Inc()
	if duration > 0 {
		c.fetchLatency.Observe(duration.Seconds())
	}
}

// RecordHTTPRequest records an API request served by the HTTP surface
func (c *Collector) RecordHTTPRequest(route string, statusCode int, duration time.Duration) {
	c.apiRequests.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	c.apiLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
