// Package postgres provides the Postgres-backed product store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

const defaultTable = "products"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrNotConfigured is returned when the store is used without a pool.
var ErrNotConfigured = errors.New("product store is not configured")

// Config controls the Postgres connection pool used for product rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ProductStore persists product records in Postgres.
type ProductStore struct {
	pool  pool
	table string
}

// NewProductStore creates a Postgres-backed ProductStore using the provided config.
func NewProductStore(ctx context.Context, cfg Config) (*ProductStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ProductStore{pool: p, table: table}, nil
}

// NewProductStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewProductStoreWithPool(p pool, table string) (*ProductStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ProductStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ProductStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// EnsureSchema creates the products table when it does not exist.
func (s *ProductStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return ErrNotConfigured
	}
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	nuclia_document_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT '',
	price_text TEXT NOT NULL,
	price_value NUMERIC,
	image_url TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	supplier TEXT NOT NULL DEFAULT '',
	availability TEXT NOT NULL DEFAULT '',
	product_url TEXT NOT NULL DEFAULT '',
	product_type TEXT NOT NULL,
	has_metadata BOOLEAN NOT NULL DEFAULT FALSE,
	last_updated TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// UpsertProduct inserts rec or replaces the row sharing its document id and
// returns the row id.
func (s *ProductStore) UpsertProduct(ctx context.Context, rec product.Record) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrNotConfigured
	}
	if rec.DocumentID == "" {
		return 0, fmt.Errorf("record document id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	nuclia_document_id,
	name,
	author,
	price_text,
	price_value,
	image_url,
	description,
	supplier,
	availability,
	product_url,
	product_type,
	has_metadata,
	last_updated
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
ON CONFLICT (nuclia_document_id) DO UPDATE SET
	name = EXCLUDED.name,
	author = EXCLUDED.author,
	price_text = EXCLUDED.price_text,
	price_value = EXCLUDED.price_value,
	image_url = EXCLUDED.image_url,
	description = EXCLUDED.description,
	supplier = EXCLUDED.supplier,
	availability = EXCLUDED.availability,
	product_url = EXCLUDED.product_url,
	product_type = EXCLUDED.product_type,
	has_metadata = EXCLUDED.has_metadata,
	last_updated = EXCLUDED.last_updated
RETURNING id`, s.table)

	var id int64
	err := s.pool.QueryRow(ctx, query, upsertArgs(rec)...).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert product: %w", err)
	}
	return id, nil
}

func upsertArgs(rec product.Record) []any {
	return []any{
		rec.DocumentID,
		rec.Name,
		rec.Author,
		rec.PriceText,
		priceArg(rec.PriceValue),
		rec.ImageURL,
		rec.Description,
		rec.Supplier,
		rec.Availability,
		rec.ProductURL,
		rec.ProductType,
		rec.HasMetadata,
		rec.LastUpdated,
	}
}

func priceArg(v *decimal.Decimal) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: v.Coefficient(), Exp: v.Exponent(), Valid: true}
}

// numericPrice converts a scanned NUMERIC; NULL, NaN and infinities have no price.
func numericPrice(n pgtype.Numeric) *decimal.Decimal {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
		return nil
	}
	d := decimal.NewFromBigInt(n.Int, n.Exp)
	return &d
}

// FindProducts returns the rows whose id or document id is listed, ordered by id.
func (s *ProductStore) FindProducts(ctx context.Context, ids []int64, documentIDs []string) ([]product.Record, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	if len(ids) == 0 && len(documentIDs) == 0 {
		return []product.Record{}, nil
	}
	if ids == nil {
		ids = []int64{}
	}
	if documentIDs == nil {
		documentIDs = []string{}
	}
	query := fmt.Sprintf(`
SELECT id, nuclia_document_id, name, author, price_text, price_value, image_url,
	description, supplier, availability, product_url, product_type, has_metadata, last_updated
FROM %s
WHERE id = ANY($1) OR nuclia_document_id = ANY($2)
ORDER BY id`, s.table)

	rows, err := s.pool.Query(ctx, query, ids, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer rows.Close()

	records := []product.Record{}
	for rows.Next() {
		var (
			rec   product.Record
			price pgtype.Numeric
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
			&rec.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		rec.PriceValue = numericPrice(price)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return records, nil
}
