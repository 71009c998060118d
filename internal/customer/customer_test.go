package customer

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCanCharge(t *testing.T) {
	c := Customer{ID: uuid.New(), CreditLimit: decimal.RequireFromString("150.00")}
	require.True(t, c.CanCharge(decimal.RequireFromString("150.00")))
	require.False(t, c.CanCharge(decimal.RequireFromString("150.01")))

	c.CreditLimit = decimal.Zero
	require.False(t, c.CanCharge(decimal.RequireFromString("1")))
}

func TestCartCustomer(t *testing.T) {
	c := Customer{ID: uuid.New(), Name: "Maria", DiscountPercentage: decimal.RequireFromString("5")}
	got := c.CartCustomer()
	require.Equal(t, c.ID, got.ID)
	require.Equal(t, "Maria", got.Name)
	require.True(t, got.DiscountPercentage.Equal(c.DiscountPercentage))
}
