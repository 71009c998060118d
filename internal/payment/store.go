package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pos/internal/cache"
)

// ErrMethodNotFound is returned when a method id is unknown or inactive.
var ErrMethodNotFound = errors.New("payment method not found")

// Source loads active payment methods.
type Source interface {
	ActiveMethods(ctx context.Context) ([]Method, error)
}

// Store serves the payment-method catalog through a Redis cache.
type Store struct {
	Source Source
	Cache  *cache.JSON
	Logger zerolog.Logger
}

// List returns the active methods ordered by name.
func (s *Store) List(ctx context.Context) ([]Method, error) {
	if s == nil || s.Source == nil {
		return nil, errors.New("payment store not configured")
	}
	key := cache.KeyPaymentMethods()
	var methods []Method
	if ok, err := s.Cache.Get(ctx, key, &methods); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("payment method cache read failed")
	} else if ok {
		return methods, nil
	}
	methods, err := s.Source.ActiveMethods(ctx)
	if err != nil {
		return nil, fmt.Errorf("load payment methods: %w", err)
	}
	if err := s.Cache.Set(ctx, key, methods); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("payment method cache write failed")
	}
	return methods, nil
}

// Get returns one active method.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Method, error) {
	methods, err := s.List(ctx)
	if err != nil {
		return Method{}, err
	}
	return Find(methods, id)
}

// Invalidate drops the cached catalog.
func (s *Store) Invalidate(ctx context.Context) error {
	return s.Cache.Delete(ctx, cache.KeyPaymentMethods())
}

// Find looks up id in methods.
func Find(methods []Method, id uuid.UUID) (Method, error) {
	for _, m := range methods {
		if m.ID == id {
			return m, nil
		}
	}
	return Method{}, fmt.Errorf("method %s: %w", id, ErrMethodNotFound)
}

// PGSource reads payment_methods from Postgres.
type PGSource struct {
	Pool *pgxpool.Pool
}

const activeMethodsSQL = `
SELECT id, name, type, fee_percentage, interest_rate, max_installments, is_active
FROM payment_methods
WHERE is_active
ORDER BY name`

// ActiveMethods implements Source. Rows with an unknown type are skipped.
func (p PGSource) ActiveMethods(ctx context.Context) ([]Method, error) {
	rows, err := p.Pool.Query(ctx, activeMethodsSQL)
	if err != nil {
		return nil, err
	}
	return collectMethods(rows)
}

func collectMethods(rows pgx.Rows) ([]Method, error) {
	defer rows.Close()
	out := []Method{}
	for rows.Next() {
		var (
			m        Method
			typeName string
		)
		if err := rows.Scan(&m.ID, &m.Name, &typeName, &m.FeePercentage, &m.InterestRate, &m.MaxInstallments, &m.Active); err != nil {
			return nil, err
		}
		t, err := ParseMethodType(typeName)
		if err != nil {
			continue
		}
		m.Type = t
		out = append(out, m)
	}
	return out, rows.Err()
}
