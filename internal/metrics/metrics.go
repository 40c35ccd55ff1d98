// Package metrics exposes Prometheus collectors for the product indexer.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	pageFetchesTotal           *prometheus.CounterVec
	pageFetchBytesTotal        *prometheus.CounterVec
	extractionsTotal           *prometheus.CounterVec
	extractionResolvedFields   *prometheus.HistogramVec
	kbRequestsTotal            *prometheus.CounterVec
	kbRequestDurationSeconds   *prometheus.HistogramVec
	kbRateLimitDelaysSeconds   prometheus.Histogram
	fetchRateLimitDelaySeconds *prometheus.HistogramVec
	answerDecodesTotal         *prometheus.CounterVec
	answerProducts             prometheus.Histogram
	productsPersistedTotal     *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)

		pageFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "productindexer_page_fetches_total",
				Help: "Total number of product pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		pageFetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "productindexer_page_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "productindexer_extractions_total",
				Help: "Total number of metadata extractions, labeled by extractor.",
			},
			[]string{"extractor"},
		)

		extractionResolvedFields = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "productindexer_extraction_resolved_fields",
				Help:    "Number of fields resolved away from their defaults per extraction.",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7},
			},
			[]string{"extractor"},
		)

		kbRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "productindexer_kb_requests_total",
				Help: "Total number of knowledge box calls, labeled by operation and status code.",
			},
			[]string{"operation", "code"},
		)

		kbRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "productindexer_kb_request_duration_seconds",
				Help:    "Histogram of knowledge box call latencies, labeled by operation.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		)

		kbRateLimitDelaysSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "productindexer_kb_rate_limit_delays_seconds",
				Help:    "Histogram of time spent waiting on the knowledge box rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		)

		fetchRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "productindexer_fetch_rate_limit_delay_seconds",
				Help:    "Histogram of time page fetches waited on their per-host limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"site"},
		)

		answerDecodesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "productindexer_answer_decodes_total",
				Help: "Total number of decoded answers, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		answerProducts = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "productindexer_answer_products",
				Help:    "Number of products recovered per decoded answer.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
			},
		)

		productsPersistedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "productindexer_products_persisted_total",
				Help: "Total number of product upserts, labeled by status.",
			},
			[]string{"status"},
		)
	})
}

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

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObservePageFetch records a page download.
func ObservePageFetch(site string, status string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	pageFetchesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		pageFetchBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveExtraction records one extractor run and how many fields it resolved.
func ObserveExtraction(extractor string, resolvedFields int) {
	Init()
	extractionsTotal.WithLabelValues(extractor).Inc()
	extractionResolvedFields.WithLabelValues(extractor).Observe(float64(resolvedFields))
}

// ObserveKBRequest records a knowledge box call. A zero code means the request
// never produced a response.
func ObserveKBRequest(operation string, code int, duration time.Duration) {
	Init()
	label := strconv.Itoa(code)
	if code == 0 {
		label = "error"
	}
	kbRequestsTotal.WithLabelValues(operation, label).Inc()
	kbRequestDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	kbRateLimitDelaysSeconds.Observe(duration.Seconds())
}

// ObserveFetchRateLimitDelay records how long a fetch to site waited for a token.
func ObserveFetchRateLimitDelay(site string, duration time.Duration) {
	Init()
	fetchRateLimitDelaySeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// ObserveAnswerDecode records the outcome of decoding an answer stream.
func ObserveAnswerDecode(products int, truncated bool) {
	Init()
	outcome := "complete"
	switch {
	case truncated && products == 0:
		outcome = "unparsed"
	case truncated:
		outcome = "truncated"
	}
	answerDecodesTotal.WithLabelValues(outcome).Inc()
	answerProducts.Observe(float64(products))
}

// ObservePersist records a product upsert.
func ObservePersist(status string) {
	Init()
	productsPersistedTotal.WithLabelValues(status).Inc()
}
