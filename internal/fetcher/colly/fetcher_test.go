package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPageSendsBrowserHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Contains(t, r.Header.Get("Accept"), "text/html")
		assert.Equal(t, "en-US,en;q=0.5", r.Header.Get("Accept-Language"))
		assert.Equal(t, "yes", r.Header.Get("X-Trace"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><title>Lamp</title></html>"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second, Headers: http.Header{"X-Trace": {"yes"}}})
	body, err := f.FetchPage(context.Background(), srv.URL+"/lamp")
	require.NoError(t, err)
	assert.Equal(t, "<html><title>Lamp</title></html>", body)

	// the same page can be fetched again
	body, err = f.FetchPage(context.Background(), srv.URL+"/lamp")
	require.NoError(t, err)
	assert.NotEmpty(t, body)
}

func TestFetchPageCustomUserAgent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	defer srv.Close()

	body, err := New(Config{UserAgent: "indexer-test"}).FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "indexer-test", body)
}

func TestFetchPageErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(Config{}).FetchPage(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestFetchPageEmptyURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}).FetchPage(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyURL)
}

func TestFetchPageCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Config{}).FetchPage(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type recordingPacer struct {
	urls []string
	err  error
}

func (p *recordingPacer) Wait(_ context.Context, rawURL string) error {
	p.urls = append(p.urls, rawURL)
	return p.err
}

func TestFetchPageWaitsOnPacer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	pacer := &recordingPacer{}
	body, err := New(Config{Pacer: pacer}).FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.Equal(t, []string{srv.URL}, pacer.urls)
}

func TestFetchPagePacerError(t *testing.T) {
	t.Parallel()

	pacer := &recordingPacer{err: context.Canceled}
	_, err := New(Config{Pacer: pacer}).FetchPage(context.Background(), "https://shop.example/p")
	require.ErrorIs(t, err, context.Canceled)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{Headers: http.Header{"X-Trace": {"yes"}}})
	var result page
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))
	assert.Equal(t, "1", collyReq.Headers.Get("Upgrade-Insecure-Requests"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	assert.Equal(t, http.StatusOK, result.statusCode)
	assert.Equal(t, "body", string(result.body))
	assert.Equal(t, "https://example.com", result.url)

	hooks.onError(&colly.Response{StatusCode: http.StatusForbidden}, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
	assert.Equal(t, http.StatusForbidden, result.statusCode)
}

func TestFetchStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "error", fetchStatus(0))
	assert.Equal(t, "200", fetchStatus(200))
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
