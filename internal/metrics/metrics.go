// Package metrics exposes Prometheus collectors for the lead enrichment service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	providerPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_provider_pages_total",
			Help: "Total number of place provider pages requested, labeled by status.",
		},
		[]string{"status"},
	)

	providerPlacesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enricher_provider_places_total",
			Help: "Total number of places returned by the place provider.",
		},
	)

	siteFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_site_fetches_total",
			Help: "Total number of business websites fetched, labeled by status.",
		},
		[]string{"status"},
	)

	siteBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enricher_site_bytes_total",
			Help: "Total number of bytes fetched from business websites.",
		},
	)

	siteFetchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enricher_site_fetch_duration_seconds",
			Help:    "Histogram of business website fetch latencies.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	enrichmentOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_outcomes_total",
			Help: "Total number of enriched places, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	contactsFoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_contacts_found_total",
			Help: "Total number of contact channels found, labeled by channel.",
		},
		[]string{"channel"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_jobs_total",
			Help: "Total number of jobs processed, labeled by status.",
		},
		[]string{"status"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "enricher_active_workers",
			Help: "Number of workers currently processing a job.",
		},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enricher_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveProviderPage records one provider page request.
func ObserveProviderPage(status string, places int) {
	providerPagesTotal.WithLabelValues(status).Inc()
	if places > 0 {
		providerPlacesTotal.Add(float64(places))
	}
}

// ObserveSiteFetch records one website fetch.
func ObserveSiteFetch(status string, bytesFetched int, duration time.Duration) {
	siteFetchesTotal.WithLabelValues(status).Inc()
	if bytesFetched > 0 {
		siteBytesTotal.Add(float64(bytesFetched))
	}
	siteFetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveOutcome records the enrichment outcome for one place.
func ObserveOutcome(outcome string) {
	enrichmentOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveContact records a contact channel that was found.
func ObserveContact(channel string) {
	contactsFoundTotal.WithLabelValues(channel).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
