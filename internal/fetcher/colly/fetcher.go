// Package collyfetcher downloads product pages using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-product-indexer/internal/metrics"
)

// DefaultUserAgent is a desktop browser user agent; many shops refuse bot agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

const defaultTimeout = 60 * time.Second

// ErrEmptyURL is returned when FetchPage is called without a URL.
var ErrEmptyURL = errors.New("page url is required")

// Pacer delays a fetch until its host may be contacted again.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls collector behavior. A nil Pacer fetches without delay.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Headers   http.Header
	Pacer     Pacer
	Logger    *zap.Logger
}

// Fetcher implements product.PageFetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// page is the outcome of one collector run.
type page struct {
	url        string
	statusCode int
	body       []byte
	duration   time.Duration
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	transport := newHTTPTransport()
	c.WithTransport(transport)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		logger:        logger,
	}
}

// BrowserHeaders returns the request headers sent with every page fetch.
func BrowserHeaders() http.Header {
	return http.Header{
		"Accept":                    {"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
		"Accept-Language":           {"en-US,en;q=0.5"},
		"Upgrade-Insecure-Requests": {"1"},
	}
}

// FetchPage downloads rawURL and returns the response body as text. Non-2xx
// responses are errors.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string) (string, error) {
	if rawURL == "" {
		return "", ErrEmptyURL
	}
	if f.cfg.Pacer != nil {
		if err := f.cfg.Pacer.Wait(ctx, rawURL); err != nil {
			metrics.ObservePageFetch(rawURL, "canceled", 0)
			return "", fmt.Errorf("colly fetch paced out: %w", err)
		}
	}
	var (
		result   page
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		status := "canceled"
		if ctx.Err() == nil {
			status = fetchStatus(result.statusCode)
		}
		metrics.ObservePageFetch(rawURL, status, 0)
		f.logger.Warn("page fetch failed", zap.String("url", rawURL), zap.Error(err))
		return "", err
	}
	metrics.ObservePageFetch(rawURL, fetchStatus(result.statusCode), len(result.body))
	f.logger.Debug("page fetched",
		zap.String("url", result.url),
		zap.Int("status", result.statusCode),
		zap.Int("bytes", len(result.body)),
		zap.Duration("duration", result.duration),
	)
	return string(result.body), nil
}

func (f *Fetcher) buildCollector(start time.Time, result *page, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = DefaultUserAgent
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	// fetches are explicit user requests, not crawls
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)

	baseTransport := f.transport
	if baseTransport == nil {
		baseTransport = newHTTPTransport()
	}
	collector.WithTransport(baseTransport)

	f.configureCollectorHooks(collector, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = page{
			url:        r.Request.URL.String(),
			statusCode: r.StatusCode,
			body:       append([]byte(nil), r.Body...),
			duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.statusCode = r.StatusCode
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	for key, values := range BrowserHeaders() {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
	for key, values := range f.cfg.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func fetchStatus(code int) string {
	if code == 0 {
		return "error"
	}
	return strconv.Itoa(code)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
