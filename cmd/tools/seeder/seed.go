package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/payment"
)

type seedMethod struct {
	Name            string
	Type            payment.MethodType
	FeePercentage   decimal.Decimal
	InterestRate    decimal.Decimal
	MaxInstallments int
}

func defaultPaymentMethods() []seedMethod {
	pct := decimal.RequireFromString
	return []seedMethod{
		{Name: "Dinheiro", Type: payment.Cash, MaxInstallments: 1},
		{Name: "PIX", Type: payment.Pix, FeePercentage: pct("0.99"), MaxInstallments: 1},
		{Name: "Cartão de Débito", Type: payment.DebitCard, FeePercentage: pct("1.99"), MaxInstallments: 1},
		{Name: "Cartão de Crédito", Type: payment.CreditCard, FeePercentage: pct("3.49"), InterestRate: pct("2.99"), MaxInstallments: 12},
		{Name: "Fiado", Type: payment.StoreCredit, MaxInstallments: 1},
	}
}

const upsertMethodSQL = `
INSERT INTO payment_methods (name, type, fee_percentage, interest_rate, max_installments)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name) DO UPDATE SET
    type = EXCLUDED.type,
    fee_percentage = EXCLUDED.fee_percentage,
    interest_rate = EXCLUDED.interest_rate,
    max_installments = EXCLUDED.max_installments,
    is_active = TRUE`

func seedPaymentMethods(ctx context.Context, pool *pgxpool.Pool, methods []seedMethod) (int, error) {
	batch := &pgx.Batch{}
	for _, m := range methods {
		batch.Queue(upsertMethodSQL, m.Name, m.Type.String(), m.FeePercentage, m.InterestRate, m.MaxInstallments)
	}
	br := pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, m := range methods {
		if _, err := br.Exec(); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", m.Name, err)
		}
	}
	return len(methods), nil
}

type demoVariant struct {
	SKU   string
	EAN   string
	Size  string
	Color string
	Price string
	Stock int
}

func seedDemo(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		var productID string
		err := tx.QueryRow(ctx, `SELECT product_id FROM product_variants WHERE sku = 'CAM-P-AZ'`).Scan(&productID)
		if errors.Is(err, pgx.ErrNoRows) {
			err = tx.QueryRow(ctx, `INSERT INTO products (name) VALUES ('Camiseta Básica') RETURNING id`).Scan(&productID)
		}
		if err != nil {
			return fmt.Errorf("demo product: %w", err)
		}
		variants := []demoVariant{
			{"CAM-P-AZ", "7890000000011", "P", "Azul", "49.90", 20},
			{"CAM-M-AZ", "7890000000028", "M", "Azul", "49.90", 15},
			{"CAM-G-PR", "7890000000035", "G", "Preto", "54.90", 8},
		}
		for _, v := range variants {
			_, err := tx.Exec(ctx, `
				INSERT INTO product_variants (product_id, sku, ean_code, size, color, price, stock_quantity)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (sku) DO NOTHING`,
				productID, v.SKU, v.EAN, v.Size, v.Color, decimal.RequireFromString(v.Price), v.Stock)
			if err != nil {
				return fmt.Errorf("insert variant %s: %w", v.SKU, err)
			}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO customers (name, cpf, discount_percentage, credit_limit)
			VALUES ('Ana Souza', '00000000191', 10, 500)
			ON CONFLICT (cpf) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("insert customer: %w", err)
		}
		return nil
	})
}
