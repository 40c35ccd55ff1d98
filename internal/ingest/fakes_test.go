package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

const testDocID = "0f1e2d3c4b5a69788796a5b4c3d2e1f0"

type fakeIndexer struct {
	mu sync.Mutex

	docID       string
	uploadErr   error
	patchErr    error
	askResult   product.AskResult
	askErr      error
	resource    product.Resource
	entities    product.Entities
	resources   []map[string]any
	rephrased   string
	rephraseErr error

	uploadedURLs []string
	titles       []string
	texts        []string
	documents    []product.Document
	patches      map[string]map[string]string
	lastLimit    int
	lastHistory  []string
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{docID: testDocID, patches: map[string]map[string]string{}}
}

func (f *fakeIndexer) UploadFromURL(_ context.Context, url, title string, _ map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadedURLs = append(f.uploadedURLs, url)
	f.titles = append(f.titles, title)
	return f.docID, f.uploadErr
}

func (f *fakeIndexer) UploadText(_ context.Context, title, text string, _ map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	f.texts = append(f.texts, text)
	return f.docID, f.uploadErr
}

func (f *fakeIndexer) UploadDocument(_ context.Context, doc product.Document) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, doc)
	return f.docID, f.uploadErr
}

func (f *fakeIndexer) PatchResource(_ context.Context, documentID string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patchErr != nil {
		return f.patchErr
	}
	f.patches[documentID] = metadata
	return nil
}

func (f *fakeIndexer) Ask(context.Context, string) (product.AskResult, error) {
	return f.askResult, f.askErr
}

func (f *fakeIndexer) GetResource(context.Context, string) (product.Resource, error) {
	return f.resource, nil
}

func (f *fakeIndexer) GetEntities(context.Context, string) (product.Entities, error) {
	return f.entities, nil
}

func (f *fakeIndexer) ListResources(_ context.Context, limit int) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	return f.resources, nil
}

func (f *fakeIndexer) Rephrase(_ context.Context, query string, history []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastHistory = history
	if f.rephraseErr != nil {
		return query, f.rephraseErr
	}
	return f.rephrased, nil
}

type fakeFetcher struct {
	pages map[string]string
	err   error
	calls int
}

func (f *fakeFetcher) FetchPage(_ context.Context, url string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	page, ok := f.pages[url]
	if !ok {
		return "", errors.New("not found")
	}
	return page, nil
}

type failingStore struct {
	err error
}

func (s failingStore) UpsertProduct(context.Context, product.Record) (int64, error) {
	return 0, s.err
}

func (s failingStore) FindProducts(context.Context, []int64, []string) ([]product.Record, error) {
	return nil, s.err
}

func (failingStore) Close() error { return nil }
