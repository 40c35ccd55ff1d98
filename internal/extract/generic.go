package extract

import (
	"encoding/json"
	"errors"
	"html"
	"io"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

const (
	genericDescriptionRunes    = 200
	structuredDescriptionRunes = 300
	minNameRunes               = 4
)

var ldJSONBlock = regexp.MustCompile(`(?is)<script[^>]*type=["']application/ld\+json["'][^>]*>(.*?)</script>`)

var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<title[^>]*>([^<|]+?)(?:\s*[|\-].*?)?</title>`),
		regexp.MustCompile(`(?is)"name"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?is)<meta[^>]+property="og:title"[^>]+content="([^"]+)"`),
		regexp.MustCompile(`(?is)<h1[^>]*>([^<]+)</h1>`),
	}
	pricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)"price"\s*:\s*"([0-9,]+\.?[0-9]*)"`),
		regexp.MustCompile(`(?i)[$£€¥₹]\s*([0-9,]+\.?[0-9]*)`),
		regexp.MustCompile(`(?i)<span[^>]*class="[^"]*price[^"]*"[^>]*>[$£€¥₹]?\s*([0-9,]+\.?[0-9]*)`),
	}
	imagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)"image"\s*:\s*"([^"]+\.(?:jpg|jpeg|png|webp))"`),
		regexp.MustCompile(`(?i)<meta[^>]+property="og:image"[^>]+content="([^"]+)"`),
		regexp.MustCompile(`(?i)<img[^>]+(?:data-lazy-)?src=["']([^"']+\.(?:jpg|jpeg|png|webp))["']`),
		regexp.MustCompile(`(?i)data-src=["']([^"']+\.(?:jpg|jpeg|png|webp))["']`),
	}
	supplierPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)"brand"\s*:\s*\{\s*"name"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)<meta[^>]+name="brand"[^>]+content="([^"]+)"`),
		regexp.MustCompile(`(?i)brand["\s]*:?["\s]*([^"\n,]+)`),
	}
	availabilityPattern = regexp.MustCompile(`(?i)(in\s+stock|out\s+of\s+stock|available|pre-?order|back\s*order)`)
)

// Generic extracts product details from any page. A schema.org Product found in
// JSON-LD wins outright; otherwise each field is resolved by its own pattern
// chain and keeps its default when nothing matches.
func Generic(content, sourceURL string) product.Details {
	d := product.NewDetails(sourceURL)
	d.Description = contentPreview(content)

	if node, ok := structuredProduct(content); ok {
		applyStructured(&d, node, sourceURL)
		return d
	}

	if v, ok := firstMatch(content, namePatterns, acceptName); ok {
		d.Name = v
	}
	if v, ok := firstMatch(content, pricePatterns, acceptPrice); ok {
		d.Price = "$" + v
	}
	if v, ok := firstMatch(content, imagePatterns, acceptNonEmpty); ok {
		d.ImageURL = resolveImageURL(v, sourceURL)
	}
	if v, ok := firstMatch(content, supplierPatterns, acceptNonEmpty); ok {
		d.Supplier = v
	}
	if m := availabilityPattern.FindStringSubmatch(content); m != nil {
		d.Availability = canonicalAvailability(m[1])
	}
	return d
}

// acceptFunc validates and normalizes a captured value.
type acceptFunc func(raw string) (string, bool)

func firstMatch(content string, patterns []*regexp.Regexp, accept acceptFunc) (string, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		if v, ok := accept(m[1]); ok {
			return v, true
		}
	}
	return "", false
}

func acceptName(raw string) (string, bool) {
	name := strings.TrimSpace(html.UnescapeString(strings.TrimSpace(raw)))
	if runeLen(name) < minNameRunes {
		return "", false
	}
	return name, true
}

func acceptPrice(raw string) (string, bool) {
	val := strings.ReplaceAll(raw, ",", "")
	if _, err := strconv.ParseFloat(val, 64); err != nil {
		return "", false
	}
	return val, true
}

func acceptNonEmpty(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	return v, v != ""
}

func contentPreview(content string) string {
	if runeLen(content) > genericDescriptionRunes {
		return truncateRunes(content, genericDescriptionRunes) + "..."
	}
	return content
}

// canonicalAvailability maps a free-text stock phrase onto display text.
func canonicalAvailability(text string) string {
	t := strings.ToLower(strings.Join(strings.Fields(text), " "))
	switch {
	case strings.Contains(t, "in stock"):
		return "In Stock"
	case strings.Contains(t, "out of stock"):
		return "Out of Stock"
	}
	return cases.Title(language.English).String(t)
}

// schemaAvailability maps schema.org ItemAvailability values, given either as
// a URL or a bare name, onto display text.
var schemaAvailability = map[string]string{
	"instock":             "In Stock",
	"instoreonly":         "In Stock",
	"onlineonly":          "In Stock",
	"limitedavailability": "Limited Availability",
	"outofstock":          "Out of Stock",
	"soldout":             "Out of Stock",
	"discontinued":        "Discontinued",
	"preorder":            "Pre-Order",
	"presale":             "Pre-Order",
	"backorder":           "Back Order",
}

func offerAvailability(raw string) string {
	raw = strings.TrimSpace(raw)
	key := raw
	if i := strings.LastIndex(key, "/"); i >= 0 {
		key = key[i+1:]
	}
	if v, ok := schemaAvailability[strings.ToLower(key)]; ok {
		return v
	}
	return canonicalAvailability(raw)
}

// structuredProduct returns the first schema.org Product object found in the
// page's JSON-LD blocks.
func structuredProduct(content string) (map[string]any, bool) {
	for _, m := range ldJSONBlock.FindAllStringSubmatch(content, -1) {
		doc, err := decodeJSONValue(strings.TrimSpace(m[1]))
		if err != nil {
			continue
		}
		if node, ok := findProduct(doc); ok {
			return node, true
		}
	}
	return nil, false
}

var errTrailingData = errors.New("trailing data after JSON value")

// decodeJSONValue decodes exactly one JSON value, keeping numbers verbatim.
func decodeJSONValue(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return v, nil
}

func findProduct(doc any) (map[string]any, bool) {
	switch v := doc.(type) {
	case map[string]any:
		if isProductType(v["@type"]) {
			return v, true
		}
		if graph, ok := v["@graph"].([]any); ok {
			return findProduct(graph)
		}
	case []any:
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok && isProductType(obj["@type"]) {
				return obj, true
			}
		}
	}
	return nil, false
}

func isProductType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "Product"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

func applyStructured(d *product.Details, node map[string]any, sourceURL string) {
	if name := scalarString(node["name"]); name != "" {
		d.Name = name
	}
	if offer, ok := firstObject(node["offers"]); ok {
		if price, ok := offerPrice(offer["price"]); ok {
			d.Price = "$" + price
		}
		if currency := scalarString(offer["priceCurrency"]); currency != "" {
			d.Currency = currency
		}
		if avail := scalarString(offer["availability"]); avail != "" {
			d.Availability = offerAvailability(avail)
		}
	}
	if img := imageReference(node["image"]); img != "" {
		d.ImageURL = resolveImageURL(img, sourceURL)
	}
	if desc, ok := node["description"].(string); ok {
		d.Description = truncateRunes(desc, structuredDescriptionRunes)
	}
	switch brand := node["brand"].(type) {
	case map[string]any:
		if name := scalarString(brand["name"]); name != "" {
			d.Supplier = name
		}
	case string:
		if brand != "" {
			d.Supplier = brand
		}
	}
}

func firstObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		if len(t) > 0 {
			obj, ok := t[0].(map[string]any)
			return obj, ok
		}
	}
	return nil, false
}

func imageReference(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			return imageReference(t[0])
		}
	case map[string]any:
		return scalarString(t["url"])
	}
	return ""
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// offerPrice accepts any non-empty string price but treats a numeric zero as missing.
func offerPrice(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		p := strings.TrimSpace(t)
		return p, p != ""
	case json.Number:
		f, err := t.Float64()
		if err != nil || f == 0 {
			return "", false
		}
		return t.String(), true
	}
	return "", false
}
