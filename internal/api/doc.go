// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET / plus /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /index-url, /index-html, /index-text to index products.
//   - POST /ask-product-details and /rephrase for natural-language queries.
//   - POST /compare-products over persisted product records.
//   - GET /list-products, /resources/{id} and /kb-config read from the knowledge box.
//
// Every failure is rendered as {"success": false, "error": "..."}.
package api
