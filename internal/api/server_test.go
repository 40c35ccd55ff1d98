package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-product-indexer/internal/clock/system"
	"github.com/JakeFAU/realtime-product-indexer/internal/config"
	"github.com/JakeFAU/realtime-product-indexer/internal/ingest"
	"github.com/JakeFAU/realtime-product-indexer/internal/kb"
	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

type fakeService struct {
	askResult  product.AskResult
	index      ingest.IndexResult
	resources  []map[string]any
	resource   product.Resource
	entities   product.Entities
	rephrased  string
	comparison ingest.Comparison
	kbCfg      ingest.KBConfig
	err        error

	lastURLReq  ingest.IndexURLRequest
	lastHTMLReq ingest.IndexHTMLRequest
	lastTextReq ingest.IndexTextRequest
	lastLimit   int
	lastID      string
	lastHistory []string
	lastCompare ingest.CompareRequest
	panicOnAsk  bool
}

func (f *fakeService) Ask(_ context.Context, query string) (product.AskResult, error) {
	if f.panicOnAsk {
		panic("boom")
	}
	if strings.TrimSpace(query) == "" {
		return product.AskResult{}, fmt.Errorf("%w: query is required", ingest.ErrInvalidRequest)
	}
	return f.askResult, f.err
}

func (f *fakeService) IndexURL(_ context.Context, req ingest.IndexURLRequest) (ingest.IndexResult, error) {
	f.lastURLReq = req
	return f.index, f.err
}

func (f *fakeService) IndexHTML(_ context.Context, req ingest.IndexHTMLRequest) (ingest.IndexResult, error) {
	f.lastHTMLReq = req
	return f.index, f.err
}

func (f *fakeService) IndexText(_ context.Context, req ingest.IndexTextRequest) (ingest.IndexResult, error) {
	f.lastTextReq = req
	return f.index, f.err
}

func (f *fakeService) ListResources(_ context.Context, limit int) ([]map[string]any, error) {
	f.lastLimit = limit
	return f.resources, f.err
}

func (f *fakeService) GetResource(_ context.Context, id string) (product.Resource, error) {
	f.lastID = id
	return f.resource, f.err
}

func (f *fakeService) GetEntities(_ context.Context, id string) (product.Entities, error) {
	f.lastID = id
	return f.entities, f.err
}

func (f *fakeService) Rephrase(_ context.Context, query string, history []string) (string, error) {
	f.lastHistory = history
	if f.err != nil {
		return query, f.err
	}
	return f.rephrased, nil
}

func (f *fakeService) Compare(_ context.Context, req ingest.CompareRequest) (ingest.Comparison, error) {
	f.lastCompare = req
	return f.comparison, f.err
}

func (f *fakeService) KBConfig() ingest.KBConfig { return f.kbCfg }

func (f *fakeService) StoreEnabled() bool { return true }

type staticIDs struct{}

func (staticIDs) NewID() (string, error) { return "req-fixed", nil }

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000", "chrome-extension://*"}},
	}
}

func newTestServer(svc Service, cfg config.Config) *Server {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return NewServer(svc, staticIDs{}, system.Fixed(now), cfg, zap.NewNop())
}

func do(t *testing.T, s *Server, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestRootAndProbes(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeService{}, testConfig())

	rr := do(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, ServiceName, body["service"])
	assert.Equal(t, "2026-01-02T03:04:05Z", body["timestamp"])
	assert.Equal(t, "req-fixed", rr.Header().Get("X-Request-ID"))

	rr = do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, s, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["store_enabled"])

	rr = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_requests_total")
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeService{}, testConfig())
	rr := do(t, s, http.MethodGet, "/healthz", "", "X-Request-ID", "caller-id")
	assert.Equal(t, "caller-id", rr.Header().Get("X-Request-ID"))
}

func TestAskProductDetails(t *testing.T) {
	t.Parallel()

	svc := &fakeService{askResult: product.AskResult{
		Answer:     `{"summary":"one lamp"}`,
		Structured: &product.StructuredAnswer{Products: []any{}, Summary: "one lamp"},
		Citations:  []any{},
	}}
	s := newTestServer(svc, testConfig())

	rr := do(t, s, http.MethodPost, "/ask-product-details", `{"query":"lamps"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "lamps", body["query"])
	assert.Equal(t, "one lamp", body["structured_data"].(map[string]any)["summary"])

	rr = do(t, s, http.MethodPost, "/ask-product-details", `{"query":""}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body = decode(t, rr)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "query is required")

	rr = do(t, s, http.MethodPost, "/ask-product-details", `{not json`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid JSON", decode(t, rr)["error"])
}

func TestIndexURL(t *testing.T) {
	t.Parallel()

	d := product.NewDetails("https://shop.example/lamp")
	d.Price = "$19.99"
	svc := &fakeService{index: ingest.IndexResult{
		DocumentID:      "doc-1",
		Extractor:       "generic",
		Metadata:        d,
		MetadataPatched: true,
		Persisted:       true,
		ProductID:       7,
	}}
	s := newTestServer(svc, testConfig())

	rr := do(t, s, http.MethodPost, "/index-url", `{"url":"https://shop.example/lamp","is_product_page":true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "doc-1", body["document_id"])
	assert.Equal(t, true, body["metadata_patch_success"])
	assert.Equal(t, true, body["persisted"])
	assert.EqualValues(t, 7, body["product_id"])
	assert.Equal(t, "$19.99", body["metadata"].(map[string]any)["price"])
	assert.Equal(t, ingest.IndexURLRequest{URL: "https://shop.example/lamp", IsProductPage: true}, svc.lastURLReq)
}

func TestIndexErrorsMapToStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", fmt.Errorf("%w: url is required", ingest.ErrInvalidRequest), http.StatusBadRequest},
		{"upstream", fmt.Errorf("upload url: %w", &kb.Error{Op: "upload", StatusCode: 502, Detail: "status 502", Err: kb.ErrUpstream}), http.StatusInternalServerError},
		{"upstream not found", fmt.Errorf("get: %w", &kb.Error{Op: "get", StatusCode: 404, Detail: "status 404", Err: kb.ErrUpstream}), http.StatusNotFound},
		{"deadline", fmt.Errorf("fetch page: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"store disabled", ingest.ErrStoreDisabled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(&fakeService{err: tt.err}, testConfig())
			rr := do(t, s, http.MethodPost, "/index-url", `{"url":"https://shop.example"}`)
			require.Equal(t, tt.want, rr.Code)
			body := decode(t, rr)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}
}

func TestIndexHTMLAndText(t *testing.T) {
	t.Parallel()

	svc := &fakeService{index: ingest.IndexResult{DocumentID: "doc-2"}}
	s := newTestServer(svc, testConfig())

	rr := do(t, s, http.MethodPost, "/index-html", `{"url":"https://a.example","html":"<p>x</p>","title":"T"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "<p>x</p>", svc.lastHTMLReq.HTML)
	assert.Equal(t, "T", svc.lastHTMLReq.Title)

	rr = do(t, s, http.MethodPost, "/index-text", `{"title":"Lamp","text":"desc","metadata":{"price":"$5"}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "doc-2", decode(t, rr)["document_id"])
	assert.Equal(t, "$5", svc.lastTextReq.Metadata["price"])
}

func TestListProductsLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		want  int
	}{
		{"", defaultListLimit},
		{"?limit=5", 5},
		{"?limit=abc", defaultListLimit},
		{"?limit=-3", defaultListLimit},
		{"?limit=50000", maxListLimit},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			svc := &fakeService{resources: []map[string]any{{"id": "r1"}}}
			s := newTestServer(svc, testConfig())
			rr := do(t, s, http.MethodGet, "/list-products"+tt.query, "")
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.want, svc.lastLimit)
			assert.Len(t, decode(t, rr)["resources"], 1)
		})
	}
}

func TestResourceRoutes(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		resource: product.Resource{Raw: map[string]any{"id": "abc"}, Metadata: map[string]string{"name": "Lamp"}},
		entities: product.Entities{Entities: map[string]any{"ORG": []any{"Acme"}}, Relations: []any{}},
	}
	s := newTestServer(svc, testConfig())

	rr := do(t, s, http.MethodGet, "/resources/abc", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "abc", svc.lastID)
	assert.Equal(t, "Lamp", body["metadata"].(map[string]any)["name"])

	rr = do(t, s, http.MethodGet, "/resources/abc/entities", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body = decode(t, rr)
	assert.Contains(t, body["entities"], "ORG")
	assert.NotNil(t, body["relations"])
}

func TestRephrase(t *testing.T) {
	t.Parallel()

	svc := &fakeService{rephrased: "brass lamps"}
	s := newTestServer(svc, testConfig())

	rr := do(t, s, http.MethodPost, "/rephrase", `{"query":"cheaper","context":["brass lamps"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "brass lamps", decode(t, rr)["rephrased_query"])
	assert.Equal(t, []string{"brass lamps"}, svc.lastHistory)

	failing := newTestServer(&fakeService{err: errors.New("rephrase: status 502")}, testConfig())
	rr = do(t, failing, http.MethodPost, "/rephrase", `{"query":"cheaper"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "cheaper", body["rephrased_query"])
}

func TestCompareProducts(t *testing.T) {
	t.Parallel()

	svc := &fakeService{comparison: ingest.Comparison{
		Products:   []product.Record{{ID: 1, Name: "Lamp A"}},
		Attributes: map[string][]string{"name": {"Lamp A"}},
		Total:      1,
	}}
	s := newTestServer(svc, testConfig())

	rr := do(t, s, http.MethodPost, "/compare-products", `{"product_ids":[1],"nuclia_document_ids":["doc-b"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.EqualValues(t, 1, body["total"])
	assert.Equal(t, ingest.CompareRequest{ProductIDs: []int64{1}, DocumentIDs: []string{"doc-b"}}, svc.lastCompare)

	missing := newTestServer(&fakeService{err: ingest.ErrNotFound}, testConfig())
	rr = do(t, missing, http.MethodPost, "/compare-products", `{"product_ids":[9]}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
	body = decode(t, rr)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, []any{}, body["products"])
}

func TestKBConfigRoutes(t *testing.T) {
	t.Parallel()

	svc := &fakeService{kbCfg: ingest.KBConfig{AuthToken: "reader", KnowledgeBox: "kb-1", Zone: "zone-1"}}
	s := newTestServer(svc, testConfig())

	for _, path := range []string{"/kb-config", "/nuclia-config"} {
		rr := do(t, s, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rr.Code, path)
		body := decode(t, rr)
		assert.Equal(t, "reader", body["authtoken"])
		assert.Equal(t, "kb-1", body["knowledgebox"])
		assert.Equal(t, "zone-1", body["zone"])
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	s := newTestServer(&fakeService{}, cfg)

	rr := do(t, s, http.MethodGet, "/kb-config", "")
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "unauthorized", decode(t, rr)["error"])

	rr = do(t, s, http.MethodGet, "/kb-config", "", "X-API-Key", "secret")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, s, http.MethodGet, "/kb-config?api_key=secret", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, s, http.MethodGet, "/kb-config", "", "X-API-Key", "secret-plus")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestKeyMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		got, expected string
		want          bool
	}{
		{"secret", "secret", true},
		{"secre", "secret", false},
		{"secret!", "secret", false},
		{"Secret", "secret", false},
		{"", "secret", false},
		{"", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, keyMatches(tt.got, tt.expected), "%q vs %q", tt.got, tt.expected)
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeService{}, testConfig())

	rr := do(t, s, http.MethodOptions, "/index-url", "",
		"Origin", "http://localhost:3000",
		"Access-Control-Request-Method", "POST")
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	rr = do(t, s, http.MethodGet, "/healthz", "", "Origin", "chrome-extension://abc")
	assert.Equal(t, "chrome-extension://abc", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = do(t, s, http.MethodGet, "/healthz", "", "Origin", "http://evil.example")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestIsAllowedOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origin  string
		allowed []string
		want    bool
	}{
		{"exact match", "http://localhost:3000", []string{"http://localhost:3000"}, true},
		{"wildcard match", "chrome-extension://abc", []string{"chrome-extension://*"}, true},
		{"no match", "http://evil.com", []string{"http://localhost:3000"}, false},
		{"empty origin", "", []string{"*"}, false},
		{"empty allowed list", "http://localhost:3000", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isAllowedOrigin(tt.origin, tt.allowed))
		})
	}
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeService{panicOnAsk: true}, testConfig())
	rr := do(t, s, http.MethodPost, "/ask-product-details", `{"query":"lamps"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal server error", decode(t, rr)["error"])
}

func TestParseLimit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, defaultListLimit, parseLimit(""))
	assert.Equal(t, 10, parseLimit(" 10 "))
	assert.Equal(t, maxListLimit, parseLimit("1001"))
}
