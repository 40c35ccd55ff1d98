package kb

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-product-indexer/internal/answer"
	"github.com/JakeFAU/realtime-product-indexer/internal/metrics"
	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

const maxRemainderLog = 100

// ProductAnswerSchema is the JSON schema the knowledge box is asked to answer in.
func ProductAnswerSchema() map[string]any {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	return map[string]any{
		"title": "E-commerce Product Search Result",
		"type":  "object",
		"properties": map[string]any{
			"products": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":         str("Product name or title"),
						"price":        str("Product price with currency"),
						"description":  str("Product description"),
						"supplier":     str("Supplier or brand name"),
						"availability": str("Stock availability status"),
						"imageUrl":     str("Product image URL"),
						"productUrl":   str("Original product page URL"),
						"category":     str("Product category"),
						"rating":       map[string]any{"type": "number", "description": "Product rating if available"},
						"features": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "Key product features or specifications",
						},
					},
					"required": []string{
						"name", "price", "description", "supplier", "availability",
						"imageUrl", "productUrl", "category", "rating", "features",
					},
					"additionalProperties": false,
				},
			},
			"summary": str("Summary of the search results"),
		},
		"required": []string{"products"},
	}
}

type askRequest struct {
	Query            string         `json:"query"`
	AnswerJSONSchema map[string]any `json:"answer_json_schema"`
}

type askResponse struct {
	Answer    string `json:"answer"`
	Citations any    `json:"citations"`
}

// Ask queries the knowledge box for products matching query and decodes the
// answer stream into structured data.
func (c *Client) Ask(ctx context.Context, query string) (product.AskResult, error) {
	var resp askResponse
	if err := c.do(ctx, call{
		op:     "ask_with_json_schema",
		method: http.MethodPost,
		path:   "/ask",
		key:    c.readerKey,
		body:   askRequest{Query: query, AnswerJSONSchema: ProductAnswerSchema()},
		header: http.Header{headerSynchronous: {"true"}},
	}, &resp); err != nil {
		return product.AskResult{}, err
	}

	decoded := answer.Decode(resp.Answer)
	metrics.ObserveAnswerDecode(len(decoded.Products), decoded.Remainder != "")
	if decoded.Remainder != "" {
		c.logger.Warn("stopped parsing answer stream",
			zap.Int("documents", decoded.Documents),
			zap.String("remainder", truncate(decoded.Remainder, maxRemainderLog)),
		)
	}
	if len(decoded.Products) == 0 {
		c.logger.Warn("no product data in answer", zap.String("query", query))
	}

	citations := resp.Citations
	if citations == nil {
		citations = []any{}
	}
	return product.AskResult{
		Answer:     decoded.Text,
		Structured: decoded.Structured(),
		Citations:  citations,
	}, nil
}

type rephraseRequest struct {
	Query   string   `json:"query"`
	Context []string `json:"context,omitempty"`
}

// Rephrase asks the knowledge box to rewrite query for retrieval. On any
// failure the original query is returned together with the error.
func (c *Client) Rephrase(ctx context.Context, query string, history []string) (string, error) {
	var raw json.RawMessage
	if err := c.do(ctx, call{
		op:     "rephrase_query",
		method: http.MethodPost,
		path:   "/predict/rephrase",
		key:    c.readerKey,
		body:   rephraseRequest{Query: query, Context: history},
	}, &raw); err != nil {
		return query, err
	}
	return rephrased(raw, query), nil
}

// rephrased accepts either a bare JSON string or an object carrying
// rephrased_query.
func rephrased(raw json.RawMessage, fallback string) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
		return s
	}
	var obj struct {
		RephrasedQuery string `json:"rephrased_query"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.RephrasedQuery != "" {
		return obj.RephrasedQuery
	}
	return fallback
}
