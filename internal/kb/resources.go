package kb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

// DefaultListLimit is the page size used when ListResources gets no limit.
const DefaultListLimit = 100

// Text formats accepted by the knowledge box.
const (
	FormatPlain = "PLAIN"
	FormatHTML  = "HTML"
)

type createResourceRequest struct {
	Title        string        `json:"title"`
	Links        *linkFields   `json:"links,omitempty"`
	Texts        *textFields   `json:"texts,omitempty"`
	Origin       *origin       `json:"origin,omitempty"`
	UserMetadata *UserMetadata `json:"usermetadata,omitempty"`
}

type linkFields struct {
	Link struct {
		URI string `json:"uri"`
	} `json:"link"`
}

type textFields struct {
	Text textField `json:"text"`
}

type textField struct {
	Body   string `json:"body"`
	Format string `json:"format"`
}

type origin struct {
	SourceID string `json:"source_id"`
	URL      string `json:"url"`
	Created  string `json:"created"`
}

type createResourceResponse struct {
	UUID string `json:"uuid"`
}

type patchResourceRequest struct {
	UserMetadata *UserMetadata `json:"usermetadata"`
}

// UploadFromURL registers a link resource that the knowledge box fetches and
// processes itself. An empty title becomes "Content from <url>".
func (c *Client) UploadFromURL(ctx context.Context, rawURL, title string, metadata map[string]string) (string, error) {
	if title == "" {
		title = "Content from " + rawURL
	}
	req := createResourceRequest{
		Title:        title,
		Links:        &linkFields{},
		UserMetadata: FormatMetadata(metadata),
	}
	req.Links.Link.URI = rawURL
	return c.createResource(ctx, "upload_from_url", req)
}

// UploadText uploads a plain-text body, typically a manual product entry.
func (c *Client) UploadText(ctx context.Context, title, text string, metadata map[string]string) (string, error) {
	req := createResourceRequest{
		Title:        title,
		Texts:        &textFields{Text: textField{Body: text, Format: FormatPlain}},
		UserMetadata: FormatMetadata(metadata),
	}
	return c.createResource(ctx, "upload_text", req)
}

// UploadDocument uploads a caller-supplied body. A source URL is recorded as
// the document origin.
func (c *Client) UploadDocument(ctx context.Context, doc product.Document) (string, error) {
	format := FormatPlain
	if doc.HTML {
		format = FormatHTML
	}
	req := createResourceRequest{
		Title:        doc.Title,
		Texts:        &textFields{Text: textField{Body: doc.Content, Format: format}},
		UserMetadata: FormatMetadata(doc.Metadata),
	}
	if doc.SourceURL != "" {
		req.Origin = &origin{
			SourceID: doc.SourceURL,
			URL:      doc.SourceURL,
			Created:  c.clock.Now().Format(time.RFC3339),
		}
	}
	return c.createResource(ctx, "upload_document", req)
}

func (c *Client) createResource(ctx context.Context, op string, req createResourceRequest) (string, error) {
	var resp createResourceResponse
	if err := c.do(ctx, call{
		op:     op,
		method: http.MethodPost,
		path:   "/resources",
		key:    c.writerKey,
		body:   req,
	}, &resp); err != nil {
		return "", err
	}
	if resp.UUID == "" {
		return "", &Error{Op: op, StatusCode: http.StatusOK, Detail: "response carried no resource uuid"}
	}
	c.logger.Info("uploaded resource", zap.String("op", op), zap.String("document_id", resp.UUID))
	return resp.UUID, nil
}

// PatchResource replaces the user metadata of an existing document.
func (c *Client) PatchResource(ctx context.Context, documentID string, metadata map[string]string) error {
	formatted := FormatMetadata(metadata)
	if formatted == nil {
		return fmt.Errorf("patch resource %s: %w", documentID, ErrEmptyMetadata)
	}
	if err := c.do(ctx, call{
		op:     "patch_resource",
		method: http.MethodPatch,
		path:   "/resource/" + url.PathEscape(documentID),
		key:    c.writerKey,
		body:   patchResourceRequest{UserMetadata: formatted},
	}, nil); err != nil {
		return err
	}
	c.logger.Info("patched resource", zap.String("document_id", documentID), zap.Int("fields", len(formatted.Fields)))
	return nil
}

// GetResource returns a stored document and its flattened user metadata.
func (c *Client) GetResource(ctx context.Context, documentID string) (product.Resource, error) {
	raw, err := c.getResource(ctx, "get_resource_by_id", documentID)
	if err != nil {
		return product.Resource{}, err
	}
	return product.Resource{Raw: raw, Metadata: FlattenMetadata(raw["usermetadata"])}, nil
}

// GetEntities returns the entities and relations extracted from a document.
func (c *Client) GetEntities(ctx context.Context, documentID string) (product.Entities, error) {
	raw, err := c.getResource(ctx, "get_document_entities", documentID)
	if err != nil {
		return product.Entities{}, err
	}
	out := product.Entities{Entities: map[string]any{}, Relations: []any{}}
	data, _ := raw["data"].(map[string]any)
	if entities, ok := data["entities"].(map[string]any); ok {
		out.Entities = entities
	}
	if relations, ok := data["relations"].([]any); ok {
		out.Relations = relations
	}
	return out, nil
}

func (c *Client) getResource(ctx context.Context, op, documentID string) (map[string]any, error) {
	var raw map[string]any
	if err := c.do(ctx, call{
		op:     op,
		method: http.MethodGet,
		path:   "/resource/" + url.PathEscape(documentID),
		key:    c.readerKey,
	}, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

type listResourcesResponse struct {
	Resources []map[string]any `json:"resources"`
}

// ListResources returns the first page of stored documents.
func (c *Client) ListResources(ctx context.Context, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var resp listResourcesResponse
	if err := c.do(ctx, call{
		op:     "list_resources",
		method: http.MethodGet,
		path:   "/resources",
		key:    c.readerKey,
		query:  url.Values{"page": {"0"}, "size": {strconv.Itoa(limit)}},
	}, &resp); err != nil {
		return nil, err
	}
	if resp.Resources == nil {
		return []map[string]any{}, nil
	}
	return resp.Resources, nil
}
