package extract

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

// Func extracts product details from raw page content.
type Func func(content, sourceURL string) product.Details

// Extractor names reported by NameFor.
const (
	NameGeneric  = "generic"
	NameRetailer = "barnesandnoble"
)

// RetailerDomain identifies pages handled by the structural extractor.
const RetailerDomain = "barnesandnoble.com"

// IsRetailerURL reports whether rawURL points at the retailer's site. The host
// is compared when the URL parses with one; otherwise the whole string is.
func IsRetailerURL(rawURL string) bool {
	target := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		target = u.Host
	}
	return strings.Contains(strings.ToLower(target), RetailerDomain)
}

// Select returns the extractor for rawURL.
func Select(rawURL string) Func {
	if IsRetailerURL(rawURL) {
		return Retailer
	}
	return Generic
}

// NameFor returns the name of the extractor Select would pick.
func NameFor(rawURL string) string {
	if IsRetailerURL(rawURL) {
		return NameRetailer
	}
	return NameGeneric
}

// Extract runs the extractor selected for sourceURL.
func Extract(content, sourceURL string) product.Details {
	return Select(sourceURL)(content, sourceURL)
}
