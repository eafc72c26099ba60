// Package metrics exposes Prometheus collectors for the scrape service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal                  *prometheus.CounterVec
	dedupDecisionsTotal        *prometheus.CounterVec
	retriesTotal               *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	extractionDurationSeconds  *prometheus.HistogramVec
	upsertsTotal               *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	robotsFallbacksTotal       *prometheus.CounterVec
	browserPromotionsTotal     *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_jobs_total",
				Help: "Scrape jobs that reached a terminal status, labeled by status.",
			},
			[]string{"status"},
		)

		dedupDecisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_dedup_decisions_total",
				Help: "Scrape requests by how the job id was resolved (cache, history, new).",
			},
			[]string{"decision"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_retries_total",
				Help: "Attempts scheduled for retry, labeled by error kind.",
			},
			[]string{"kind"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_workers",
				Help: "Number of workers currently executing a job.",
			},
		)

		extractionDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_extraction_duration_seconds",
				Help:    "Time spent loading and extracting a page, labeled by page kind.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"kind"},
		)

		upsertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_upserts_total",
				Help: "Catalog upserts, labeled by entity and whether a row was created.",
			},
			[]string{"entity", "created"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_delays_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		robotsFallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_robots_fallbacks_total",
				Help: "robots.txt fetches that kept timing out and were treated as allow-all.",
			},
			[]string{"domain"},
		)

		browserPromotionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_browser_promotions_total",
				Help: "Static page loads re-run in the headless browser.",
			},
			[]string{"domain"},
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
	})
}

// SanitizeSite extracts a lowercase hostname, or "unknown".
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

// ObserveJob counts a job reaching status.
func ObserveJob(status string) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveDedup counts how a scrape request was resolved.
func ObserveDedup(decision string) {
	Init()
	dedupDecisionsTotal.WithLabelValues(decision).Inc()
}

// ObserveRetry counts an attempt scheduled for retry.
func ObserveRetry(kind string) {
	Init()
	retriesTotal.WithLabelValues(kind).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveExtraction records how long a page took to load and extract.
func ObserveExtraction(kind string, d time.Duration) {
	Init()
	extractionDurationSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveUpsert counts a catalog upsert.
func ObserveUpsert(entity string, created bool) {
	Init()
	upsertsTotal.WithLabelValues(entity, strconv.FormatBool(created)).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, d time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(d.Seconds())
}

// ObserveRobotsFallback counts a robots.txt fetch replaced by an allow-all policy.
func ObserveRobotsFallback(domain string) {
	Init()
	robotsFallbacksTotal.WithLabelValues(domain).Inc()
}

// ObservePromotion counts a page promoted from the static to the headless browser.
func ObservePromotion(domain string) {
	Init()
	browserPromotionsTotal.WithLabelValues(domain).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}
