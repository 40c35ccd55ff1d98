// Package product defines the core types shared across the extraction, indexing,
// and persistence subsystems.
package product

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Default values used when an extractor cannot resolve a field.
const (
	DefaultName         = "Unknown Product"
	DefaultPrice        = "Price not available"
	DefaultCurrency     = "USD"
	DefaultImageURL     = "https://via.placeholder.com/300x300?text=No+Image"
	DefaultDescription  = "No description available."
	DefaultSupplier     = "Unknown Supplier"
	DefaultAuthor       = "Unknown Author"
	DefaultAvailability = "Unknown"
)

// Product type values persisted with each record.
const (
	TypeProduct = "product"
	TypeGeneric = "generic"
)

// Details is the flat record produced by an extractor. Every field always holds
// a value; unresolved fields keep their defaults.
type Details struct {
	Name         string `json:"name" yaml:"name"`
	Price        string `json:"price" yaml:"price"`
	Currency     string `json:"currency" yaml:"currency"`
	Description  string `json:"description" yaml:"description"`
	ImageURL     string `json:"imageUrl" yaml:"imageUrl"`
	Supplier     string `json:"supplier" yaml:"supplier"`
	Author       string `json:"author" yaml:"author"`
	Availability string `json:"availability" yaml:"availability"`
	ProductURL   string `json:"productUrl" yaml:"productUrl"`
}

// NewDetails returns a Details populated with the default placeholder values.
func NewDetails(sourceURL string) Details {
	return Details{
		Name:         DefaultName,
		Price:        DefaultPrice,
		Currency:     DefaultCurrency,
		Description:  DefaultDescription,
		ImageURL:     DefaultImageURL,
		Supplier:     DefaultSupplier,
		Author:       DefaultAuthor,
		Availability: DefaultAvailability,
		ProductURL:   sourceURL,
	}
}

// Metadata flattens the details into the string map attached to an indexed
// document. Empty values are omitted.
func (d Details) Metadata() map[string]string {
	fields := map[string]string{
		"name":         d.Name,
		"price":        d.Price,
		"currency":     d.Currency,
		"description":  d.Description,
		"imageUrl":     d.ImageURL,
		"supplier":     d.Supplier,
		"author":       d.Author,
		"availability": d.Availability,
		"productUrl":   d.ProductURL,
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// StructuredAnswer aggregates every product and summary found in a knowledge-box
// answer. Products keep the order in which they were decoded.
type StructuredAnswer struct {
	Products []any `json:"products"`
	Summary  string `json:"summary"`
}

// Record is the persisted, normalized form of an indexed product. PriceValue
// keeps the exact amount and is rendered as a JSON string.
type Record struct {
	ID           int64            `json:"id"`
	DocumentID   string           `json:"nuclia_document_id"`
	Name         string           `json:"name"`
	Author       string           `json:"author"`
	PriceText    string           `json:"price_text"`
	PriceValue   *decimal.Decimal `json:"price_value,omitempty"`
	ImageURL     string           `json:"image_url"`
	Description  string           `json:"description"`
	Supplier     string           `json:"supplier"`
	Availability string           `json:"availability"`
	ProductURL   string           `json:"product_url"`
	ProductType  string           `json:"product_type"`
	HasMetadata  bool             `json:"has_metadata"`
	LastUpdated  time.Time        `json:"last_updated"`
}

// NewRecord maps extracted details onto a Record keyed by the indexed document id.
func NewRecord(documentID string, d Details, isProductPage bool, now time.Time) Record {
	rec := Record{
		DocumentID:   documentID,
		Name:         d.Name,
		Author:       d.Author,
		PriceText:    d.Price,
		ImageURL:     d.ImageURL,
		Description:  d.Description,
		Supplier:     d.Supplier,
		Availability: d.Availability,
		ProductURL:   d.ProductURL,
		ProductType:  TypeGeneric,
		HasMetadata:  isProductPage && d.ImageURL != "",
		LastUpdated:  now,
	}
	if isProductPage {
		rec.ProductType = TypeProduct
	}
	if v, ok := ParsePriceValue(d.Price); ok {
		rec.PriceValue = &v
	}
	return rec
}

var priceNumber = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)

// ParsePriceValue pulls the first numeric amount out of a display price such as
// "$1,299.99". Sentinel prices report false.
func ParsePriceValue(price string) (decimal.Decimal, bool) {
	m := priceNumber.FindString(strings.ReplaceAll(price, ",", ""))
	if m == "" {
		return decimal.Decimal{}, false
	}
	v, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v, true
}
