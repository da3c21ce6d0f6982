package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/db"
)

// Postgres resolves items from the products and combos tables with a read-through cache.
type Postgres struct {
	DB     db.DBTX
	Cache  *Cache
	Logger *zerolog.Logger
}

// Lookup implements Catalog.
func (p Postgres) Lookup(ctx context.Context, itemID string) (Entry, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return Entry{}, ErrNotFound
	}
	if e, ok, err := p.Cache.Get(ctx, itemID); err != nil {
		p.logger().Warn().Err(err).Str("item_id", itemID).Msg("catalog cache read failed")
	} else if ok {
		return e, nil
	}

	e, err := p.load(ctx, itemID)
	if err != nil {
		return Entry{}, err
	}
	if err := p.Cache.Set(ctx, e); err != nil {
		p.logger().Warn().Err(err).Str("item_id", itemID).Msg("catalog cache write failed")
	}
	return e, nil
}

func (p Postgres) load(ctx context.Context, itemID string) (Entry, error) {
	const productSQL = `SELECT id, name, unit_price, category, subcategory FROM products WHERE id = $1`
	var e Entry
	err := p.DB.QueryRow(ctx, productSQL, itemID).Scan(&e.ID, &e.Name, &e.UnitPrice, &e.Category, &e.Subcategory)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, err
	}

	const comboSQL = `SELECT id, name, price FROM combos WHERE id = $1`
	err = p.DB.QueryRow(ctx, comboSQL, itemID).Scan(&e.ID, &e.Name, &e.UnitPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	e.Category = ComboCategory
	return e, nil
}

// List implements Lister. It reads straight from the tables, bypassing the cache.
func (p Postgres) List(ctx context.Context, category string) ([]Entry, error) {
	const q = `SELECT id, name, category, subcategory, unit_price FROM (
    SELECT id, name, category, subcategory, unit_price FROM products
    UNION ALL
    SELECT id, name, $2::text AS category, '' AS subcategory, price AS unit_price FROM combos
) items
WHERE $1::text = '' OR lower(category) = lower($1::text)
ORDER BY category, name, id`
	rows, err := p.DB.Query(ctx, q, category, ComboCategory)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.Category, &e.Subcategory, &e.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertProduct writes a product and drops its cached entry.
func (p Postgres) UpsertProduct(ctx context.Context, prod Product) error {
	const q = `INSERT INTO products (id, name, unit_price, category, subcategory)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, unit_price = EXCLUDED.unit_price,
    category = EXCLUDED.category, subcategory = EXCLUDED.subcategory`
	if _, err := p.DB.Exec(ctx, q, prod.ID, prod.Name, prod.UnitPrice, prod.Category, prod.Subcategory); err != nil {
		return err
	}
	return p.Cache.Invalidate(ctx, prod.ID)
}

// UpsertCombo writes a combo and drops its cached entry.
func (p Postgres) UpsertCombo(ctx context.Context, c Combo) error {
	const q = `INSERT INTO combos (id, name, price, normal_price, discount_percent, member_product_ids)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price,
    normal_price = EXCLUDED.normal_price, discount_percent = EXCLUDED.discount_percent,
    member_product_ids = EXCLUDED.member_product_ids`
	if _, err := p.DB.Exec(ctx, q, c.ID, c.Name, c.Price, c.NormalPrice, c.DiscountPercent, c.MemberProductIDs); err != nil {
		return err
	}
	return p.Cache.Invalidate(ctx, c.ID)
}

func (p Postgres) logger() *zerolog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
