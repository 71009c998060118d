package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSource reads variants from Postgres.
type PGSource struct {
	Pool *pgxpool.Pool
}

const variantColumns = `
SELECT v.id, v.product_id, p.name, v.sku,
       COALESCE(v.ean_code, ''), COALESCE(v.internal_code, ''),
       COALESCE(v.size, ''), COALESCE(v.color, ''),
       v.price, v.stock_quantity
FROM product_variants v
JOIN products p ON p.id = v.product_id
WHERE v.is_active AND p.is_active`

// VariantByID implements Source.
func (p PGSource) VariantByID(ctx context.Context, id uuid.UUID) (Variant, error) {
	return p.one(ctx, variantColumns+` AND v.id = $1`, id)
}

// VariantByCode implements Source. SKU wins over EAN, EAN over internal code.
func (p PGSource) VariantByCode(ctx context.Context, code string) (Variant, error) {
	return p.one(ctx, variantColumns+`
  AND (v.sku = $1 OR v.ean_code = $1 OR v.internal_code = $1)
ORDER BY (v.sku = $1) DESC, (v.ean_code = $1) DESC
LIMIT 1`, code)
}

// SearchVariants implements Source.
func (p PGSource) SearchVariants(ctx context.Context, query string, limit int) ([]Variant, error) {
	rows, err := p.Pool.Query(ctx, variantColumns+`
  AND (p.name ILIKE '%' || $1 || '%' OR v.sku ILIKE $1 || '%' OR v.ean_code = $1 OR v.internal_code = $1)
ORDER BY p.name, v.sku
LIMIT $2`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Variant{}
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p PGSource) one(ctx context.Context, sql string, arg any) (Variant, error) {
	v, err := scanVariant(p.Pool.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Variant{}, fmt.Errorf("%v: %w", arg, ErrNotFound)
	}
	return v, err
}

func scanVariant(row pgx.Row) (Variant, error) {
	var v Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.ProductName, &v.SKU, &v.EAN, &v.InternalCode, &v.Size, &v.Color, &v.Price, &v.Stock)
	return v, err
}
