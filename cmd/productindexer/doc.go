// Command productindexer runs the product indexing service.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, indexing, question answering and comparison
//     endpoints. Requests are validated and handed to internal/ingest.Service.
//   - Indexing pipeline: a URL is first uploaded to the knowledge box, then fetched with the Colly-based fetcher
//     (paced per host), run through the extractor selected for its host, patched onto the knowledge-box document
//     as user metadata and finally upserted into the configured product store. Steps run sequentially per
//     request with no retries.
//   - Persistence: db.driver picks the product store (memory, sqlite via modernc, or postgres via pgxpool). An empty
//     driver disables persistence and the compare endpoint.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler.
//
// Commands:
//   - serve --config config.yaml starts the HTTP server and drains on SIGINT/SIGTERM.
//   - extract [--url URL] [--format json|yaml] [FILE] runs the extractors offline against a saved page (or stdin,
//     or the fetched URL when no file is given) and prints the product details.
//
// Quick checklist:
//   - Configure env vars: PRODUCTINDEXER_KB_KB_ID, PRODUCTINDEXER_KB_WRITER_API_KEY and
//     PRODUCTINDEXER_KB_READER_API_KEY (or the legacy NUCLIA_* names), plus PRODUCTINDEXER_DB_DRIVER and
//     PRODUCTINDEXER_DB_DSN (or DATABASE_URL) when products should be persisted.
//   - Run locally: go run ./cmd/productindexer serve --config config.yaml.
package main
