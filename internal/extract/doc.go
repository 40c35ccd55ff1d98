// Package extract turns raw product-page HTML into product.Details.
//
// Two extractors are provided. Generic works on any page: it first looks for a
// schema.org Product block in embedded JSON-LD and otherwise falls back to
// ordered regular-expression chains per field. Retailer walks the DOM of the
// Barnes & Noble product detail layout with goquery. Select picks one of them
// from the page URL.
//
// Extraction never fails. Fields that cannot be resolved keep the placeholder
// values from product.NewDetails, so callers always receive a complete record.
package extract
