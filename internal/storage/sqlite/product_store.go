// Package sqlite provides a single-file product store backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	// registers the "sqlite" driver
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

const defaultTable = "products"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ProductStore persists product records in a SQLite database.
type ProductStore struct {
	db    *sql.DB
	table string
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(ctx context.Context, path, table string) (*ProductStore, error) {
	if path == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite serializes writers; one connection also keeps :memory: databases intact
	db.SetMaxOpenConns(1)

	s := &ProductStore{db: db, table: table}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *ProductStore) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	nuclia_document_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT '',
	price_text TEXT NOT NULL,
	price_value TEXT,
	image_url TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	supplier TEXT NOT NULL DEFAULT '',
	availability TEXT NOT NULL DEFAULT '',
	product_url TEXT NOT NULL DEFAULT '',
	product_type TEXT NOT NULL,
	has_metadata INTEGER NOT NULL DEFAULT 0,
	last_updated TEXT NOT NULL
)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// Close closes the database.
func (s *ProductStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// UpsertProduct inserts rec or replaces the row sharing its document id and
// returns the row id.
func (s *ProductStore) UpsertProduct(ctx context.Context, rec product.Record) (int64, error) {
	if rec.DocumentID == "" {
		return 0, fmt.Errorf("record document id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	nuclia_document_id, name, author, price_text, price_value, image_url, description,
	supplier, availability, product_url, product_type, has_metadata, last_updated
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (nuclia_document_id) DO UPDATE SET
	name = excluded.name,
	author = excluded.author,
	price_text = excluded.price_text,
	price_value = excluded.price_value,
	image_url = excluded.image_url,
	description = excluded.description,
	supplier = excluded.supplier,
	availability = excluded.availability,
	product_url = excluded.product_url,
	product_type = excluded.product_type,
	has_metadata = excluded.has_metadata,
	last_updated = excluded.last_updated
RETURNING id`, s.table)

	// stored as text so the amount round-trips exactly
	price := decimal.NullDecimal{}
	if rec.PriceValue != nil {
		price = decimal.NewNullDecimal(*rec.PriceValue)
	}
	var id int64
	err := s.db.QueryRowContext(ctx, query,
		rec.DocumentID,
		rec.Name,
		rec.Author,
		rec.PriceText,
		price,
		rec.ImageURL,
		rec.Description,
		rec.Supplier,
		rec.Availability,
		rec.ProductURL,
		rec.ProductType,
		rec.HasMetadata,
		rec.LastUpdated.UTC().Format(time.RFC3339Nano),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert product: %w", err)
	}
	return id, nil
}

// FindProducts returns the rows whose id or document id is listed, ordered by id.
func (s *ProductStore) FindProducts(ctx context.Context, ids []int64, documentIDs []string) ([]product.Record, error) {
	if len(ids) == 0 && len(documentIDs) == 0 {
		return []product.Record{}, nil
	}
	var (
		clauses []string
		args    []any
	)
	if len(ids) > 0 {
		clauses = append(clauses, "id IN ("+placeholders(len(ids))+")")
		for _, id := range ids {
			args = append(args, id)
		}
	}
	if len(documentIDs) > 0 {
		clauses = append(clauses, "nuclia_document_id IN ("+placeholders(len(documentIDs))+")")
		for _, id := range documentIDs {
			args = append(args, id)
		}
	}
	query := fmt.Sprintf(`
SELECT id, nuclia_document_id, name, author, price_text, price_value, image_url,
	description, supplier, availability, product_url, product_type, has_metadata, last_updated
FROM %s
WHERE %s
ORDER BY id`, s.table, strings.Join(clauses, " OR "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []product.Record{}
	for rows.Next() {
		var (
			rec     product.Record
			price   decimal.NullDecimal
			updated string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.DocumentID,
			&rec.Name,
			&rec.Author,
			&rec.PriceText,
			&price,
			&rec.ImageURL,
			&rec.Description,
			&rec.Supplier,
			&rec.Availability,
			&rec.ProductURL,
			&rec.ProductType,
			&rec.HasMetadata,
			&updated,
		); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		if price.Valid {
			v := price.Decimal
			rec.PriceValue = &v
		}
		if rec.LastUpdated, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return nil, fmt.Errorf("parse last_updated %q: %w", updated, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return records, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
