package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-product-indexer/internal/extract"
	"github.com/JakeFAU/realtime-product-indexer/internal/metrics"
	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

// IndexURLRequest asks for a product page to be indexed by URL.
type IndexURLRequest struct {
	URL           string
	IsProductPage bool
}

// IndexHTMLRequest carries a page body fetched by the caller.
type IndexHTMLRequest struct {
	URL           string
	HTML          string
	Title         string
	IsProductPage bool
}

// IndexTextRequest is a manual product entry.
type IndexTextRequest struct {
	Title         string
	Text          string
	Metadata      map[string]string
	IsProductPage bool
}

// IndexResult reports what an indexing pipeline did.
type IndexResult struct {
	DocumentID      string          `json:"document_id"`
	Extractor       string          `json:"extractor,omitempty"`
	Metadata        product.Details `json:"metadata"`
	MetadataPatched bool            `json:"metadata_patch_success"`
	Persisted       bool            `json:"persisted"`
	ProductID       int64           `json:"product_id,omitempty"`
}

// IndexURL uploads the URL to the knowledge box, fetches the page itself,
// extracts product details, patches them onto the document and persists the
// record when a store is configured. A failed patch is logged and reported in
// the result; every other failure aborts the pipeline without undoing earlier
// steps.
func (s *Service) IndexURL(ctx context.Context, req IndexURLRequest) (IndexResult, error) {
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return IndexResult{}, invalid("url is required")
	}
	logger := s.logger.With(zap.String("url", rawURL))

	docID, err := s.indexer.UploadFromURL(ctx, rawURL, "Product from "+rawURL, nil)
	if err != nil {
		return IndexResult{}, fmt.Errorf("upload url: %w", err)
	}
	if docID == "" {
		return IndexResult{}, errors.New("upload url: knowledge box returned no document id")
	}
	logger = logger.With(zap.String("document_id", docID))
	logger.Info("url uploaded")

	content, err := s.fetcher.FetchPage(ctx, rawURL)
	if err != nil {
		return IndexResult{DocumentID: docID}, fmt.Errorf("fetch page: %w", err)
	}

	res := IndexResult{DocumentID: docID}
	res.Extractor, res.Metadata = s.extract(content, rawURL)

	if err := s.indexer.PatchResource(ctx, docID, res.Metadata.Metadata()); err != nil {
		logger.Warn("metadata patch failed", zap.Error(err))
	} else {
		logger.Info("metadata patched")
		res.MetadataPatched = true
	}

	if err := s.persist(ctx, &res, req.IsProductPage); err != nil {
		return res, err
	}
	return res, nil
}

// IndexHTML indexes a page body the caller already has. The readable text of
// the page is uploaded with the extracted details attached; when no readable
// text can be distilled the raw HTML is uploaded instead.
func (s *Service) IndexHTML(ctx context.Context, req IndexHTMLRequest) (IndexResult, error) {
	if strings.TrimSpace(req.HTML) == "" {
		return IndexResult{}, invalid("html is required")
	}
	rawURL := strings.TrimSpace(req.URL)

	var res IndexResult
	res.Extractor, res.Metadata = s.extract(req.HTML, rawURL)

	doc := product.Document{
		Title:     strings.TrimSpace(req.Title),
		Content:   req.HTML,
		SourceURL: rawURL,
		HTML:      true,
		Metadata:  res.Metadata.Metadata(),
	}
	article, err := extract.Readable(req.HTML, rawURL)
	switch {
	case err != nil:
		s.logger.Debug("readable text unavailable", zap.String("url", rawURL), zap.Error(err))
	case article.Text != "":
		doc.Content = article.Text
		doc.HTML = false
	}
	if doc.Title == "" {
		doc.Title = documentTitle(article.Title, res.Metadata, rawURL)
	}

	docID, err := s.indexer.UploadDocument(ctx, doc)
	if err != nil {
		return IndexResult{}, fmt.Errorf("upload document: %w", err)
	}
	res.DocumentID = docID
	res.MetadataPatched = true
	s.logger.Info("document uploaded", zap.String("document_id", docID), zap.String("url", rawURL))

	if err := s.persist(ctx, &res, req.IsProductPage); err != nil {
		return res, err
	}
	return res, nil
}

// IndexText uploads a manual product entry. Supplied metadata is stored with
// the document and, when a store is configured, mapped onto a product record.
func (s *Service) IndexText(ctx context.Context, req IndexTextRequest) (IndexResult, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return IndexResult{}, invalid("title is required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return IndexResult{}, invalid("text is required")
	}

	docID, err := s.indexer.UploadText(ctx, title, req.Text, req.Metadata)
	if err != nil {
		return IndexResult{}, fmt.Errorf("upload text: %w", err)
	}
	res := IndexResult{
		DocumentID:      docID,
		Metadata:        detailsFromMetadata(title, req.Metadata),
		MetadataPatched: len(req.Metadata) > 0,
	}
	s.logger.Info("text uploaded", zap.String("document_id", docID))

	if err := s.persist(ctx, &res, req.IsProductPage); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Service) extract(content, sourceURL string) (string, product.Details) {
	name := extract.NameFor(sourceURL)
	details := extract.Select(sourceURL)(content, sourceURL)
	metrics.ObserveExtraction(name, resolvedFields(details))
	return name, details
}

func (s *Service) persist(ctx context.Context, res *IndexResult, isProductPage bool) error {
	if s.store == nil {
		return nil
	}
	rec := product.NewRecord(res.DocumentID, res.Metadata, isProductPage, s.clock.Now())
	id, err := s.store.UpsertProduct(ctx, rec)
	if err != nil {
		metrics.ObservePersist(persistError)
		return fmt.Errorf("persist product: %w", err)
	}
	metrics.ObservePersist(persistOK)
	res.Persisted = true
	res.ProductID = id
	s.logger.Info("product persisted", zap.String("document_id", res.DocumentID), zap.Int64("product_id", id))
	return nil
}

// resolvedFields counts the fields an extractor filled beyond the defaults.
func resolvedFields(d product.Details) int {
	def := product.NewDetails(d.ProductURL)
	pairs := [][2]string{
		{d.Name, def.Name},
		{d.Price, def.Price},
		{d.Description, def.Description},
		{d.ImageURL, def.ImageURL},
		{d.Supplier, def.Supplier},
		{d.Author, def.Author},
		{d.Availability, def.Availability},
	}
	n := 0
	for _, p := range pairs {
		if p[0] != p[1] {
			n++
		}
	}
	return n
}

func documentTitle(readableTitle string, d product.Details, rawURL string) string {
	switch {
	case readableTitle != "":
		return readableTitle
	case d.Name != product.DefaultName:
		return d.Name
	case rawURL != "":
		return "Product from " + rawURL
	default:
		return "Uploaded document"
	}
}

// detailsFromMetadata maps the flat metadata keys of a manual entry onto
// Details, keeping defaults for anything missing.
func detailsFromMetadata(title string, meta map[string]string) product.Details {
	d := product.NewDetails(meta["productUrl"])
	d.Name = title
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(meta[key]); v != "" {
			*dst = v
		}
	}
	set(&d.Name, "name")
	set(&d.Price, "price")
	set(&d.Currency, "currency")
	set(&d.Description, "description")
	set(&d.ImageURL, "imageUrl")
	set(&d.Supplier, "supplier")
	set(&d.Author, "author")
	set(&d.Availability, "availability")
	return d
}
