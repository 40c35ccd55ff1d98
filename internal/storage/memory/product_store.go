// Package memory provides an in-memory product store for development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

// ProductStore keeps product records in process memory.
type ProductStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]product.Record
	byDoc  map[string]int64
}

// NewProductStore constructs a ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{
		byID:  make(map[int64]product.Record),
		byDoc: make(map[string]int64),
	}
}

// UpsertProduct inserts rec or replaces the record sharing its document id.
func (s *ProductStore) UpsertProduct(_ context.Context, rec product.Record) (int64, error) {
	if rec.DocumentID == "" {
		return 0, errors.New("record document id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byDoc[rec.DocumentID]
	if !ok {
		s.nextID++
		id = s.nextID
		s.byDoc[rec.DocumentID] = id
	}
	rec.ID = id
	rec.PriceValue = copyPrice(rec.PriceValue)
	s.byID[id] = rec
	return id, nil
}

// FindProducts returns copies of the records matching any id or document id, ordered by id.
func (s *ProductStore) FindProducts(_ context.Context, ids []int64, documentIDs []string) ([]product.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make(map[int64]struct{}, len(ids)+len(documentIDs))
	for _, id := range ids {
		if _, ok := s.byID[id]; ok {
			matched[id] = struct{}{}
		}
	}
	for _, doc := range documentIDs {
		if id, ok := s.byDoc[doc]; ok {
			matched[id] = struct{}{}
		}
	}
	out := make([]product.Record, 0, len(matched))
	for id := range matched {
		rec := s.byID[id]
		rec.PriceValue = copyPrice(rec.PriceValue)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close is a no-op.
func (s *ProductStore) Close() error {
	return nil
}

func copyPrice(v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
