package product

import (
	"context"
	"time"
)

// Document is a caller-supplied body uploaded to the knowledge box.
type Document struct {
	Title     string
	Content   string
	SourceURL string
	HTML      bool
	Metadata  map[string]string
}

// AskResult is the outcome of a schema-constrained question.
type AskResult struct {
	Answer     string            `json:"answer"`
	Structured *StructuredAnswer `json:"structured_data"`
	Citations  any               `json:"citations"`
}

// Resource is a stored knowledge-box document plus its flattened user metadata.
type Resource struct {
	Raw      map[string]any    `json:"resource"`
	Metadata map[string]string `json:"metadata"`
}

// Entities holds the extracted entities and relations of a document.
type Entities struct {
	Entities  map[string]any `json:"entities"`
	Relations []any          `json:"relations"`
}

// Indexer is the outbound gateway to the hosted knowledge box.
type Indexer interface {
	UploadFromURL(ctx context.Context, url, title string, metadata map[string]string) (string, error)
	UploadText(ctx context.Context, title, text string, metadata map[string]string) (string, error)
	UploadDocument(ctx context.Context, doc Document) (string, error)
	PatchResource(ctx context.Context, documentID string, metadata map[string]string) error
	Ask(ctx context.Context, query string) (AskResult, error)
	GetResource(ctx context.Context, documentID string) (Resource, error)
	GetEntities(ctx context.Context, documentID string) (Entities, error)
	ListResources(ctx context.Context, limit int) ([]map[string]any, error)
	Rephrase(ctx context.Context, query string, history []string) (string, error)
}

// Store persists product records keyed by document id.
type Store interface {
	// UpsertProduct inserts or replaces the record sharing rec.DocumentID and
	// returns the store-assigned id.
	UpsertProduct(ctx context.Context, rec Record) (int64, error)
	// FindProducts returns records matching any of the ids or document ids.
	FindProducts(ctx context.Context, ids []int64, documentIDs []string) ([]Record, error)
	Close() error
}

// PageFetcher downloads the raw HTML of a product page.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces request identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
