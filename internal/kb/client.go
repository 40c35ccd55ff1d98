// Package kb is the gateway to the hosted knowledge box (the Nuclia / Progress
// RAG API). It uploads documents, patches their user metadata, reads them back
// and asks schema-constrained questions over the indexed corpus.
//
// Writes authenticate with the writer service-account key and reads with the
// reader key. Calls are paced by a token-bucket limiter and are never retried.
package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/realtime-product-indexer/internal/clock/system"
	"github.com/JakeFAU/realtime-product-indexer/internal/metrics"
	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

const (
	headerServiceAccount = "X-NUCLIA-SERVICEACCOUNT"
	headerSynchronous    = "X-Synchronous"

	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 16 << 20
	maxDetailBytes   = 2048
)

// Config identifies the knowledge box and tunes the client.
type Config struct {
	BaseURL           string
	KnowledgeBoxID    string
	WriterAPIKey      string
	ReaderAPIKey      string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client talks to a single knowledge box. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	kbURL      string
	writerKey  string
	readerKey  string
	limiter    *rate.Limiter
	logger     *zap.Logger
	clock      product.Clock
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for call diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the clock used to stamp document origins.
func WithClock(clock product.Clock) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// New builds a Client for the knowledge box described by cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" || cfg.KnowledgeBoxID == "" {
		return nil, ErrNotConfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		kbURL:      fmt.Sprintf("%s/v1/kb/%s", base, url.PathEscape(cfg.KnowledgeBoxID)),
		writerKey:  cfg.WriterAPIKey,
		readerKey:  cfg.ReaderAPIKey,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     zap.NewNop(),
		clock:      system.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// call describes one request against the knowledge box.
type call struct {
	op     string
	method string
	path   string
	key    string
	query  url.Values
	body   any
	header http.Header
}

func (c *Client) do(ctx context.Context, req call, out any) error {
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return &Error{Op: req.op, Detail: fmt.Sprintf("rate limiter: %v", err), Err: err}
	}
	if waited := time.Since(waitStart); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}

	var body io.Reader
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", req.op, err)
		}
		body = bytes.NewReader(buf)
	}

	endpoint := c.kbURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", req.op, err)
	}
	httpReq.Header.Set(headerServiceAccount, "Bearer "+req.key)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, values := range req.header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.ObserveKBRequest(req.op, 0, time.Since(start))
		c.logger.Error("knowledge box call failed", zap.String("op", req.op), zap.Error(err))
		return &Error{Op: req.op, Detail: err.Error(), Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close response body", zap.String("op", req.op), zap.Error(cerr))
		}
	}()

	payload, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	metrics.ObserveKBRequest(req.op, resp.StatusCode, time.Since(start))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail := fmt.Sprintf("status %d %s | Response: %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), truncate(strings.TrimSpace(string(payload)), maxDetailBytes))
		c.logger.Error("knowledge box call rejected",
			zap.String("op", req.op),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", detail),
		)
		return &Error{Op: req.op, StatusCode: resp.StatusCode, Detail: detail}
	}
	if readErr != nil {
		return &Error{Op: req.op, StatusCode: resp.StatusCode, Detail: fmt.Sprintf("read response: %v", readErr), Err: readErr}
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &Error{Op: req.op, StatusCode: resp.StatusCode, Detail: fmt.Sprintf("decode response: %v", err), Err: err}
	}
	c.logger.Debug("knowledge box call", zap.String("op", req.op), zap.Int("status", resp.StatusCode))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
