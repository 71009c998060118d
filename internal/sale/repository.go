package sale

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/toko-pos/internal/payment"
)

// Repository persists sales in Postgres.
type Repository struct {
	Pool *pgxpool.Pool
}

// ListFilter selects sales created in [From, To).
type ListFilter struct {
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}

const insertSaleSQL = `
INSERT INTO sales (session_id, user_id, customer_id, subtotal, discount_amount, total,
                   fee_amount, net_total, cash_received, change_amount, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (session_id) DO NOTHING
RETURNING id, receipt_number, created_at`

// Create inserts the sale with its items and payments in one transaction.
// A session that was already recorded returns the stored sale unchanged.
func (r *Repository) Create(ctx context.Context, rec Record) (Record, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("sale: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, insertSaleSQL,
		rec.SessionID, rec.CashierID, rec.CustomerID, rec.Subtotal, rec.Discount, rec.Total,
		rec.FeeAmount, rec.NetTotal, rec.CashReceived, rec.Change, rec.Status,
	).Scan(&rec.ID, &rec.ReceiptNumber, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		return r.getBySession(ctx, rec.SessionID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("sale: insert: %w", err)
	}

	batch := &pgx.Batch{}
	for i, it := range rec.Items {
		batch.Queue(`
INSERT INTO sale_items (sale_id, position, variant_id, description, quantity, unit_price, discount_amount, total_price)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rec.ID, i, it.VariantID, it.Description, it.Quantity, it.UnitPrice, it.Discount, it.Total)
	}
	for i, p := range rec.Payments {
		batch.Queue(`
INSERT INTO sale_payments (sale_id, position, payment_method_id, method_type, amount, fee_amount,
                           net_amount, installments, installment_value, total_with_interest)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			rec.ID, i, p.MethodID, string(p.MethodType), p.Amount, p.FeeAmount, p.NetAmount,
			p.Installments, p.InstallmentValue, p.TotalWithInterest)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return Record{}, fmt.Errorf("sale: insert lines: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("sale: commit: %w", err)
	}
	return rec, nil
}

const saleColumns = `
SELECT id, receipt_number, session_id, user_id, customer_id, subtotal, discount_amount, total,
       fee_amount, net_total, cash_received, change_amount, status, created_at
FROM sales`

// Get returns the sale with its items and payments.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	return r.getWhere(ctx, saleColumns+` WHERE id = $1`, id)
}

func (r *Repository) getBySession(ctx context.Context, sessionID uuid.UUID) (Record, error) {
	return r.getWhere(ctx, saleColumns+` WHERE session_id = $1`, sessionID)
}

func (r *Repository) getWhere(ctx context.Context, sql string, arg uuid.UUID) (Record, error) {
	rec, err := scanRecord(r.Pool.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("%s: %w", arg, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("sale: get: %w", err)
	}
	if rec.Items, err = r.items(ctx, rec.ID); err != nil {
		return Record{}, err
	}
	if rec.Payments, err = r.payments(ctx, rec.ID); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns sales in the filter range, newest first, with the total count.
// Items and payments are not loaded.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Record, int, error) {
	var total int
	if err := r.Pool.QueryRow(ctx, `SELECT count(*) FROM sales WHERE created_at >= $1 AND created_at < $2`, f.From, f.To).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sale: count: %w", err)
	}
	rows, err := r.Pool.Query(ctx, saleColumns+`
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`, f.From, f.To, f.PerPage, (f.Page-1)*f.PerPage)
	if err != nil {
		return nil, 0, fmt.Errorf("sale: list: %w", err)
	}
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// Summarize aggregates sales and payments created in [from, to).
func (r *Repository) Summarize(ctx context.Context, from, to time.Time) (Report, error) {
	rep := Report{From: from, To: to, ByMethod: []MethodTotal{}}
	err := r.Pool.QueryRow(ctx, `
SELECT count(*), COALESCE(sum(subtotal), 0), COALESCE(sum(discount_amount), 0), COALESCE(sum(total), 0),
       COALESCE(sum(fee_amount), 0), COALESCE(sum(net_total), 0), COALESCE(sum(change_amount), 0)
FROM sales
WHERE created_at >= $1 AND created_at < $2`, from, to).
		Scan(&rep.SalesCount, &rep.Subtotal, &rep.Discount, &rep.Total, &rep.FeeAmount, &rep.NetTotal, &rep.Change)
	if err != nil {
		return Report{}, fmt.Errorf("sale: summarize: %w", err)
	}
	rows, err := r.Pool.Query(ctx, `
SELECT p.method_type, count(*), sum(p.amount), sum(p.fee_amount), sum(p.net_amount)
FROM sale_payments p
JOIN sales s ON s.id = p.sale_id
WHERE s.created_at >= $1 AND s.created_at < $2
GROUP BY p.method_type
ORDER BY p.method_type`, from, to)
	if err != nil {
		return Report{}, fmt.Errorf("sale: summarize methods: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			mt       MethodTotal
			typeName string
		)
		if err := rows.Scan(&typeName, &mt.Count, &mt.Amount, &mt.FeeAmount, &mt.NetAmount); err != nil {
			return Report{}, err
		}
		mt.MethodType = payment.MethodType(typeName)
		rep.ByMethod = append(rep.ByMethod, mt)
	}
	return rep, rows.Err()
}

func (r *Repository) items(ctx context.Context, saleID uuid.UUID) ([]Item, error) {
	rows, err := r.Pool.Query(ctx, `
SELECT variant_id, description, quantity, unit_price, discount_amount, total_price
FROM sale_items WHERE sale_id = $1 ORDER BY position`, saleID)
	if err != nil {
		return nil, fmt.Errorf("sale: items: %w", err)
	}
	defer rows.Close()
	out := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.VariantID, &it.Description, &it.Quantity, &it.UnitPrice, &it.Discount, &it.Total); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repository) payments(ctx context.Context, saleID uuid.UUID) ([]Payment, error) {
	rows, err := r.Pool.Query(ctx, `
SELECT payment_method_id, method_type, amount, fee_amount, net_amount, installments,
       installment_value, total_with_interest
FROM sale_payments WHERE sale_id = $1 ORDER BY position`, saleID)
	if err != nil {
		return nil, fmt.Errorf("sale: payments: %w", err)
	}
	defer rows.Close()
	out := []Payment{}
	for rows.Next() {
		var (
			p        Payment
			typeName string
		)
		if err := rows.Scan(&p.MethodID, &typeName, &p.Amount, &p.FeeAmount, &p.NetAmount, &p.Installments, &p.InstallmentValue, &p.TotalWithInterest); err != nil {
			return nil, err
		}
		p.MethodType = payment.MethodType(typeName)
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.ReceiptNumber, &rec.SessionID, &rec.CashierID, &rec.CustomerID,
		&rec.Subtotal, &rec.Discount, &rec.Total, &rec.FeeAmount, &rec.NetTotal,
		&rec.CashReceived, &rec.Change, &rec.Status, &rec.CreatedAt)
	return rec, err
}
