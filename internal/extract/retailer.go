package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

// RetailerName is the supplier reported for every retailer page.
const RetailerName = "Barnes & Noble"

const (
	minRetailerDescriptionRunes = 21
	maxRetailerDescriptionRunes = 500
)

var (
	retailerPriceText     = regexp.MustCompile(`\$\d+\.\d+`)
	retailerAuthorPattern = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<input[^>]*id=["']author["'][^>]*value=["']([^"']+)["']`),
		regexp.MustCompile(`(?i)by\s*<a[^>]*href=[^>]*>([^<]+)</a>`),
	}
)

// Retailer extracts product details from a Barnes & Noble product page. Pages
// without the product detail container yield the defaults.
func Retailer(content, sourceURL string) product.Details {
	d := product.NewDetails(sourceURL)
	d.Supplier = RetailerName

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return d
	}
	container := doc.Find("div#productDetail-container").First()
	if container.Length() == 0 {
		return d
	}

	if author, ok := retailerAuthor(container); ok {
		d.Author = author
	}
	if title, ok := firstText(
		withClass(container, "h1", "title"),
		container.Find("h1").First(),
		container.Find(`[data-testid="product-title"]`).First(),
		withClass(container, "div", "product-title"),
	); ok {
		d.Name = title
	}
	if price, ok := retailerPrice(container); ok {
		d.Price = price
	}
	if desc, ok := retailerDescription(container); ok {
		d.Description = desc
	}
	if img, ok := retailerImage(container); ok {
		d.ImageURL = retailerImageURL(img, sourceURL)
	}
	if avail, ok := firstText(
		container.Find(`[data-testid="availability"]`).First(),
		withClass(container, "span", "availability"),
		withClass(container, "div", "stock"),
	); ok {
		d.Availability = avail
	}

	if d.Author == product.DefaultAuthor {
		if v, ok := firstMatch(content, retailerAuthorPattern, acceptNonEmpty); ok {
			d.Author = v
		}
	}
	return d
}

// withClass returns the first tag element under scope whose class attribute
// contains needle, ignoring case.
func withClass(scope *goquery.Selection, tag, needle string) *goquery.Selection {
	return scope.Find(tag).FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, ok := s.Attr("class")
		return ok && strings.Contains(strings.ToLower(class), needle)
	}).First()
}

// firstText returns the trimmed text of the first candidate that has any.
func firstText(candidates ...*goquery.Selection) (string, bool) {
	for _, s := range candidates {
		if s.Length() == 0 {
			continue
		}
		if text := strings.TrimSpace(s.Text()); text != "" {
			return text, true
		}
	}
	return "", false
}

func retailerAuthor(container *goquery.Selection) (string, bool) {
	section := container.Find("div#pdp-header-authors").First()
	if section.Length() == 0 {
		return "", false
	}
	if v, ok := section.Find("input#author").First().Attr("value"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), true
	}
	return firstText(section.Find("a").First())
}

func retailerPrice(container *goquery.Selection) (string, bool) {
	for _, s := range []*goquery.Selection{
		container.Find(`[data-testid="price"]`).First(),
		withClass(container, "span", "price"),
		withClass(container, "div", "price"),
	} {
		if s.Length() == 0 {
			continue
		}
		if text := strings.TrimSpace(s.Text()); strings.Contains(text, "$") {
			return text, true
		}
	}
	for _, n := range container.Nodes {
		if text, ok := findTextNode(n, retailerPriceText); ok {
			return strings.TrimSpace(text), true
		}
	}
	return "", false
}

// findTextNode walks n in document order and returns the first text node
// matching re.
func findTextNode(n *html.Node, re *regexp.Regexp) (string, bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && re.MatchString(c.Data) {
			return c.Data, true
		}
		if text, ok := findTextNode(c, re); ok {
			return text, true
		}
	}
	return "", false
}

func retailerDescription(container *goquery.Selection) (string, bool) {
	for _, s := range []*goquery.Selection{
		withClass(container, "div", "overview"),
		withClass(container, "div", "description"),
		withClass(container, "div", "summary"),
		container.Find(`[data-testid="description"]`).First(),
	} {
		if s.Length() == 0 {
			continue
		}
		text := strings.TrimSpace(s.Text())
		if runeLen(text) < minRetailerDescriptionRunes {
			continue
		}
		if runeLen(text) > maxRetailerDescriptionRunes {
			text = truncateRunes(text, maxRetailerDescriptionRunes) + "..."
		}
		return text, true
	}
	return "", false
}

func retailerImage(container *goquery.Selection) (string, bool) {
	for _, img := range []*goquery.Selection{
		container.Find("img#pdpMainImage").First(),
		withClass(container, "img", "product"),
		container.Find(`img[data-testid="product-image"]`).First(),
		withClass(container, "div", "image").Find("img").First(),
		container.Find("img").First(),
	} {
		if img.Length() == 0 {
			continue
		}
		src := imageSource(img)
		if src != "" && !strings.HasPrefix(src, "data:") {
			return src, true
		}
	}
	return "", false
}

func imageSource(img *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return ""
}
