package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStock applies sales to product_variants and records stock_movements.
// Each movement is keyed by (sale, variant, type), so replaying a task only
// applies lines that were not applied before.
type PGStock struct {
	Pool *pgxpool.Pool
}

// ApplySale implements Stock in a single transaction.
func (s PGStock) ApplySale(ctx context.Context, p DecrementPayload) (Result, error) {
	res := Result{Applied: []Movement{}, Shortages: []Shortage{}}
	err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		for _, line := range p.Lines {
			if line.Quantity <= 0 {
				continue
			}
			var done bool
			if err := tx.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM stock_movements WHERE reference_id = $1 AND variant_id = $2 AND movement_type = $3)`,
				p.SaleID, line.VariantID, MovementSale).Scan(&done); err != nil {
				return fmt.Errorf("check movement %s: %w", line.VariantID, err)
			}
			if done {
				res.Skipped++
				continue
			}
			var stock int
			err := tx.QueryRow(ctx, `SELECT stock_quantity FROM product_variants WHERE id = $1 FOR UPDATE`, line.VariantID).Scan(&stock)
			if errors.Is(err, pgx.ErrNoRows) {
				res.Shortages = append(res.Shortages, Shortage{VariantID: line.VariantID, Requested: line.Quantity})
				continue
			}
			if err != nil {
				return fmt.Errorf("lock variant %s: %w", line.VariantID, err)
			}
			if stock < line.Quantity {
				res.Shortages = append(res.Shortages, Shortage{VariantID: line.VariantID, Requested: line.Quantity, Available: stock})
				continue
			}
			m := Movement{VariantID: line.VariantID, Quantity: line.Quantity, PreviousStock: stock, NewStock: stock - line.Quantity}
			tag, err := tx.Exec(ctx, `
INSERT INTO stock_movements (variant_id, movement_type, quantity, previous_stock, new_stock, reference_id, user_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (reference_id, variant_id, movement_type) DO NOTHING`,
				m.VariantID, MovementSale, m.Quantity, m.PreviousStock, m.NewStock, p.SaleID, p.CashierID)
			if err != nil {
				return fmt.Errorf("record movement %s: %w", line.VariantID, err)
			}
			if tag.RowsAffected() == 0 {
				res.Skipped++
				continue
			}
			if _, err := tx.Exec(ctx, `UPDATE product_variants SET stock_quantity = $2, updated_at = now() WHERE id = $1`, m.VariantID, m.NewStock); err != nil {
				return fmt.Errorf("update stock %s: %w", line.VariantID, err)
			}
			res.Applied = append(res.Applied, m)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}
