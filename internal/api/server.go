// Package api exposes the HTTP interface for the product indexer.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-product-indexer/internal/config"
	"github.com/JakeFAU/realtime-product-indexer/internal/ingest"
	"github.com/JakeFAU/realtime-product-indexer/internal/metrics"
	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

// ServiceName is reported by the root health document.
const ServiceName = "Realtime Product Indexer"

// Service is the orchestration surface the handlers drive.
type Service interface {
	Ask(ctx context.Context, query string) (product.AskResult, error)
	IndexURL(ctx context.Context, req ingest.IndexURLRequest) (ingest.IndexResult, error)
	IndexHTML(ctx context.Context, req ingest.IndexHTMLRequest) (ingest.IndexResult, error)
	IndexText(ctx context.Context, req ingest.IndexTextRequest) (ingest.IndexResult, error)
	ListResources(ctx context.Context, limit int) ([]map[string]any, error)
	GetResource(ctx context.Context, documentID string) (product.Resource, error)
	GetEntities(ctx context.Context, documentID string) (product.Entities, error)
	Rephrase(ctx context.Context, query string, history []string) (string, error)
	Compare(ctx context.Context, req ingest.CompareRequest) (ingest.Comparison, error)
	KBConfig() ingest.KBConfig
	StoreEnabled() bool
}

// Server wires HTTP handlers to the ingest service.
type Server struct {
	router chi.Router
	svc    Service
	idGen  product.IDGenerator
	clock  product.Clock
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	svc Service,
	idGen product.IDGenerator,
	clock product.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:    svc,
		idGen:  idGen,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(metrics.Middleware)

	r.Get("/", s.root)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/ask-product-details", s.askProductDetails)
		r.Post("/index-url", s.indexURL)
		r.Post("/index-html", s.indexHTML)
		r.Post("/index-text", s.indexText)
		r.Get("/list-products", s.listProducts)
		r.Route("/resources/{id}", func(r chi.Router) {
			r.Get("/", s.getResource)
			r.Get("/entities", s.getEntities)
		})
		r.Post("/rephrase", s.rephrase)
		r.Post("/compare-products", s.compareProducts)
		r.Get("/kb-config", s.kbConfig)
		r.Get("/nuclia-config", s.kbConfig)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   ServiceName,
		"timestamp": s.clock.Now().Format(time.RFC3339),
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"store_enabled": s.svc.StoreEnabled(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
