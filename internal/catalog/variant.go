package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/cache"
	"github.com/noah-isme/toko-pos/internal/cart"
)

// ErrNotFound is returned when no active variant matches.
var ErrNotFound = errors.New("variant not found")

// Variant is a sellable product variant.
type Variant struct {
	ID           uuid.UUID       `json:"id"`
	ProductID    uuid.UUID       `json:"productId"`
	ProductName  string          `json:"productName"`
	SKU          string          `json:"sku"`
	EAN          string          `json:"ean,omitempty"`
	InternalCode string          `json:"internalCode,omitempty"`
	Size         string          `json:"size,omitempty"`
	Color        string          `json:"color,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
}

// DisplayName renders product, size and color, e.g. "Camiseta Basica - P / Azul".
func (v Variant) DisplayName() string {
	var attrs []string
	for _, a := range []string{v.Size, v.Color} {
		if s := strings.TrimSpace(a); s != "" {
			attrs = append(attrs, s)
		}
	}
	if len(attrs) == 0 {
		return v.ProductName
	}
	return v.ProductName + " - " + strings.Join(attrs, " / ")
}

// CartVariant converts v into the record the cart ledger consumes.
func (v Variant) CartVariant() cart.Variant {
	return cart.Variant{ID: v.ID, Price: v.Price, DisplayName: v.DisplayName()}
}

// Source loads active variants.
type Source interface {
	VariantByID(ctx context.Context, id uuid.UUID) (Variant, error)
	VariantByCode(ctx context.Context, code string) (Variant, error)
	SearchVariants(ctx context.Context, query string, limit int) ([]Variant, error)
}

// Store resolves variants for the POS, caching single lookups in Redis.
type Store struct {
	Source       Source
	Cache        *cache.JSON
	Logger       zerolog.Logger
	DefaultLimit int
	MaxLimit     int
}

// Variant returns the active variant with id.
func (s *Store) Variant(ctx context.Context, id uuid.UUID) (Variant, error) {
	if s == nil || s.Source == nil {
		return Variant{}, errors.New("catalog store not configured")
	}
	return s.cached(ctx, cache.KeyVariant(id.String()), func() (Variant, error) {
		return s.Source.VariantByID(ctx, id)
	})
}

// ByCode resolves a scanned or typed code against SKU, EAN and internal code.
func (s *Store) ByCode(ctx context.Context, code string) (Variant, error) {
	if s == nil || s.Source == nil {
		return Variant{}, errors.New("catalog store not configured")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return Variant{}, fmt.Errorf("empty code: %w", ErrNotFound)
	}
	return s.cached(ctx, cache.KeyVariantCode(code), func() (Variant, error) {
		return s.Source.VariantByCode(ctx, code)
	})
}

// Search matches product name, SKU, EAN or internal code. Results are not cached.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Variant, error) {
	if s == nil || s.Source == nil {
		return nil, errors.New("catalog store not configured")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []Variant{}, nil
	}
	return s.Source.SearchVariants(ctx, query, s.clampLimit(limit))
}

func (s *Store) clampLimit(limit int) int {
	defaultLimit, maxLimit := s.DefaultLimit, s.MaxLimit
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	if maxLimit <= 0 {
		maxLimit = 100
	}
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	}
	return limit
}

func (s *Store) cached(ctx context.Context, key string, load func() (Variant, error)) (Variant, error) {
	var v Variant
	if ok, err := s.Cache.Get(ctx, key, &v); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("variant cache read failed")
	} else if ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return Variant{}, err
	}
	if err := s.Cache.Set(ctx, key, v); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("variant cache write failed")
	}
	return v, nil
}
