package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

const retailerSource = "https://www.barnesandnoble.com/w/pride-and-prejudice/1"

func retailerPage(body string) string {
	return `<html><body><div id="productDetail-container">` + body + `</div></body></html>`
}

func TestRetailerFullPage(t *testing.T) {
	t.Parallel()

	page := retailerPage(`
<div id="pdp-header-authors">by <input type="hidden" id="author" value="Jane Austen"><a href="/s/jane">J. Austen</a></div>
<h1>Plain Heading</h1>
<h1 class="pdp-header-title">Pride and Prejudice</h1>
<span class="price current-price">$12.99</span>
<div class="overview-content">A classic novel of manners set in rural England.</div>
<img id="pdpMainImage" src="/images/p.jpg">
<div class="in-stock-message">Available Online</div>`)

	d := Retailer(page, retailerSource)

	assert.Equal(t, "Jane Austen", d.Author)
	assert.Equal(t, "Pride and Prejudice", d.Name)
	assert.Equal(t, "$12.99", d.Price)
	assert.Equal(t, "A classic novel of manners set in rural England.", d.Description)
	assert.Equal(t, "https://www.barnesandnoble.com/images/p.jpg", d.ImageURL)
	assert.Equal(t, "Available Online", d.Availability)
	assert.Equal(t, RetailerName, d.Supplier)
	assert.Equal(t, retailerSource, d.ProductURL)
}

func TestRetailerMissingContainerReturnsDefaults(t *testing.T) {
	t.Parallel()

	page := `<html><body><h1>Some Book</h1>by <a href="/a/1">Someone</a></body></html>`
	d := Retailer(page, retailerSource)

	assert.Equal(t, product.DefaultName, d.Name)
	assert.Equal(t, product.DefaultPrice, d.Price)
	assert.Equal(t, product.DefaultDescription, d.Description)
	assert.Equal(t, product.DefaultImageURL, d.ImageURL)
	assert.Equal(t, product.DefaultAuthor, d.Author)
	assert.Equal(t, product.DefaultAvailability, d.Availability)
	assert.Equal(t, RetailerName, d.Supplier)
}

func TestRetailerAuthorFromLink(t *testing.T) {
	t.Parallel()

	page := retailerPage(`<div id="pdp-header-authors">by <a href="/s/twain">Mark Twain</a></div>`)
	assert.Equal(t, "Mark Twain", Retailer(page, retailerSource).Author)
}

func TestRetailerAuthorRegexRecovery(t *testing.T) {
	t.Parallel()

	page := retailerPage(`<h1>Beloved</h1><p>by <a href="/author/1">Toni Morrison</a></p>`)
	d := Retailer(page, retailerSource)

	assert.Equal(t, "Beloved", d.Name)
	assert.Equal(t, "Toni Morrison", d.Author)
}

func TestRetailerPriceChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"test id", `<div data-testid="price">$8.00</div><span class="price">$9.00</span>`, "$8.00"},
		{"div class", `<div class="PriceBox">$15.49</div>`, "$15.49"},
		{"text node", `<p>Now only $9.99 today</p>`, "Now only $9.99 today"},
		{"without dollar sign", `<span class="price">Free</span>`, product.DefaultPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Retailer(retailerPage(tt.body), retailerSource).Price)
		})
	}
}

func TestRetailerDescriptionBounds(t *testing.T) {
	t.Parallel()

	short := retailerPage(`<div class="overview">Too short.</div><div class="summary">This summary is comfortably long enough.</div>`)
	assert.Equal(t, "This summary is comfortably long enough.", Retailer(short, retailerSource).Description)

	long := retailerPage(`<div class="description">` + strings.Repeat("a", 600) + `</div>`)
	assert.Equal(t, strings.Repeat("a", 500)+"...", Retailer(long, retailerSource).Description)

	none := retailerPage(`<div class="overview">tiny</div>`)
	assert.Equal(t, product.DefaultDescription, Retailer(none, retailerSource).Description)
}

func TestRetailerImageChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"data uri skipped",
			`<img id="pdpMainImage" src="data:image/png;base64,AAAA"><img class="Product-Thumb" data-src="//prodimage.images-bn.com/t.jpg">`,
			"https://prodimage.images-bn.com/t.jpg",
		},
		{
			"test id lazy src",
			`<img data-testid="product-image" data-lazy-src="https://cdn.example/b.jpg">`,
			"https://cdn.example/b.jpg",
		},
		{
			"image div",
			`<div class="image-wrapper"><img src="/covers/c.jpg"></div>`,
			"https://www.barnesandnoble.com/covers/c.jpg",
		},
		{
			"any img relative",
			`<img src="cover.jpg">`,
			"https://www.barnesandnoble.com/w/pride-and-prejudice/cover.jpg",
		},
		{"no img", `<p>nothing</p>`, product.DefaultImageURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Retailer(retailerPage(tt.body), retailerSource).ImageURL)
		})
	}
}

func TestRetailerAvailabilityChain(t *testing.T) {
	t.Parallel()

	page := retailerPage(`<span class="availability-msg">  Ships in 2 days </span><div class="stock">ignored</div>`)
	assert.Equal(t, "Ships in 2 days", Retailer(page, retailerSource).Availability)
}
