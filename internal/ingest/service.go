// Package ingest runs the request pipelines behind the HTTP API: upload to the
// knowledge box, fetch, extract, patch metadata and persist.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-product-indexer/internal/clock/system"
	"github.com/JakeFAU/realtime-product-indexer/internal/id/uuid"
	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

var (
	// ErrInvalidRequest marks a request missing a required input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrStoreDisabled is returned by operations that need the product store when none is configured.
	ErrStoreDisabled = errors.New("product store not configured")
	// ErrNotFound is returned when no persisted product matches a lookup.
	ErrNotFound = errors.New("no matching products found")
)

// Persist status labels.
const (
	persistOK    = "ok"
	persistError = "error"
)

// KBConfig is the public configuration handed to the chat widget.
type KBConfig struct {
	AuthToken    string `json:"authtoken"`
	KnowledgeBox string `json:"knowledgebox"`
	Zone         string `json:"zone"`
}

// Service orchestrates indexing, querying and comparison.
type Service struct {
	indexer product.Indexer
	fetcher product.PageFetcher
	store   product.Store
	clock   product.Clock
	widget  KBConfig
	logger  *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithStore enables persistence of extracted products.
func WithStore(store product.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithClock overrides the clock used to stamp persisted records.
func WithClock(clock product.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithKBConfig sets the widget configuration returned by KBConfig.
func WithKBConfig(cfg KBConfig) Option {
	return func(s *Service) {
		s.widget = cfg
	}
}

// NewService wires a Service. indexer and fetcher are required.
func NewService(indexer product.Indexer, fetcher product.PageFetcher, opts ...Option) (*Service, error) {
	if indexer == nil {
		return nil, errors.New("indexer is required")
	}
	if fetcher == nil {
		return nil, errors.New("page fetcher is required")
	}
	s := &Service{
		indexer: indexer,
		fetcher: fetcher,
		clock:   system.Clock{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StoreEnabled reports whether a product store is configured.
func (s *Service) StoreEnabled() bool {
	return s.store != nil
}

// KBConfig returns the widget configuration.
func (s *Service) KBConfig() KBConfig {
	return s.widget
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, reason)
}

// checkDocumentID rejects ids that are not knowledge-box resource ids before
// they are spliced into an upstream path.
func checkDocumentID(documentID string) (string, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return "", invalid("document id is required")
	}
	if !uuid.Valid(documentID) {
		return "", invalid("malformed document id")
	}
	return documentID, nil
}

// Ask poses a natural-language product question to the knowledge box.
func (s *Service) Ask(ctx context.Context, query string) (product.AskResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return product.AskResult{}, invalid("query is required")
	}
	res, err := s.indexer.Ask(ctx, query)
	if err != nil {
		return product.AskResult{}, fmt.Errorf("ask: %w", err)
	}
	if res.Citations == nil {
		res.Citations = []any{}
	}
	return res, nil
}

// ListResources returns up to limit knowledge-box resources.
func (s *Service) ListResources(ctx context.Context, limit int) ([]map[string]any, error) {
	resources, err := s.indexer.ListResources(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	if resources == nil {
		resources = []map[string]any{}
	}
	return resources, nil
}

// GetResource fetches one knowledge-box document.
func (s *Service) GetResource(ctx context.Context, documentID string) (product.Resource, error) {
	documentID, err := checkDocumentID(documentID)
	if err != nil {
		return product.Resource{}, err
	}
	res, err := s.indexer.GetResource(ctx, documentID)
	if err != nil {
		return product.Resource{}, fmt.Errorf("get resource: %w", err)
	}
	return res, nil
}

// GetEntities fetches the entities and relations extracted for a document.
func (s *Service) GetEntities(ctx context.Context, documentID string) (product.Entities, error) {
	documentID, err := checkDocumentID(documentID)
	if err != nil {
		return product.Entities{}, err
	}
	ents, err := s.indexer.GetEntities(ctx, documentID)
	if err != nil {
		return product.Entities{}, fmt.Errorf("get entities: %w", err)
	}
	return ents, nil
}

// Rephrase rewrites query in light of the conversation history. On upstream
// failure the original query is returned together with the error.
func (s *Service) Rephrase(ctx context.Context, query string, history []string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", invalid("query is required")
	}
	out, err := s.indexer.Rephrase(ctx, query, history)
	if err != nil {
		s.logger.Warn("rephrase failed, keeping original query", zap.Error(err))
		return query, fmt.Errorf("rephrase: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return query, nil
	}
	return out, nil
}
