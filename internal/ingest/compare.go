package ingest

import (
	"context"
	"fmt"

	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

// ComparisonAttributes lists the record fields aligned side by side, in order.
var ComparisonAttributes = []string{
	"name", "price_text", "supplier", "availability",
	"description", "product_url", "image_url",
}

const missingAttribute = "N/A"

// CompareRequest selects persisted products by store id and/or document id.
type CompareRequest struct {
	ProductIDs  []int64
	DocumentIDs []string
}

// Comparison aligns the selected products attribute by attribute. Each
// attribute column holds one value per product, in product order.
type Comparison struct {
	Products   []product.Record    `json:"products"`
	Attributes map[string][]string `json:"comparison_attributes"`
	Total      int                 `json:"total"`
}

// Compare loads the requested products and builds the comparison matrix.
func (s *Service) Compare(ctx context.Context, req CompareRequest) (Comparison, error) {
	if len(req.ProductIDs) == 0 && len(req.DocumentIDs) == 0 {
		return Comparison{}, invalid("product_ids or nuclia_document_ids is required")
	}
	if s.store == nil {
		return Comparison{}, ErrStoreDisabled
	}
	recs, err := s.store.FindProducts(ctx, req.ProductIDs, req.DocumentIDs)
	if err != nil {
		return Comparison{}, fmt.Errorf("find products: %w", err)
	}
	if len(recs) == 0 {
		return Comparison{}, ErrNotFound
	}

	attrs := make(map[string][]string, len(ComparisonAttributes))
	for _, name := range ComparisonAttributes {
		col := make([]string, 0, len(recs))
		for _, rec := range recs {
			col = append(col, attributeValue(rec, name))
		}
		attrs[name] = col
	}
	return Comparison{Products: recs, Attributes: attrs, Total: len(recs)}, nil
}

func attributeValue(rec product.Record, name string) string {
	var v string
	switch name {
	case "name":
		v = rec.Name
	case "price_text":
		v = rec.PriceText
	case "supplier":
		v = rec.Supplier
	case "availability":
		v = rec.Availability
	case "description":
		v = rec.Description
	case "product_url":
		v = rec.ProductURL
	case "image_url":
		v = rec.ImageURL
	}
	if v == "" {
		return missingAttribute
	}
	return v
}
