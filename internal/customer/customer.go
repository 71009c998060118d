package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/cart"
)

// ErrNotFound is returned for unknown or inactive customers.
var ErrNotFound = errors.New("customer not found")

// Customer is a registered shop customer.
type Customer struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	CreditLimit        decimal.Decimal `json:"creditLimit"`
}

// CartCustomer converts c into the advisory customer kept by the ledger.
func (c Customer) CartCustomer() cart.Customer {
	return cart.Customer{ID: c.ID, Name: c.Name, DiscountPercentage: c.DiscountPercentage}
}

// CanCharge reports whether amount fits within the store-credit limit.
func (c Customer) CanCharge(amount decimal.Decimal) bool {
	return c.CreditLimit.IsPositive() && amount.LessThanOrEqual(c.CreditLimit)
}

// Getter resolves customers.
type Getter interface {
	Get(ctx context.Context, id uuid.UUID) (Customer, error)
}

// PGStore reads customers from Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

// Get returns the active customer with id.
func (s PGStore) Get(ctx context.Context, id uuid.UUID) (Customer, error) {
	var c Customer
	err := s.Pool.QueryRow(ctx, `
SELECT id, name, discount_percentage, credit_limit
FROM customers
WHERE id = $1 AND is_active`, id).Scan(&c.ID, &c.Name, &c.DiscountPercentage, &c.CreditLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Customer{}, fmt.Errorf("load customer: %w", err)
	}
	return c, nil
}
