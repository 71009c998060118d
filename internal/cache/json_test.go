package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pos/internal/cache"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestJSONRoundTripAndExpiry(t *testing.T) {
	mr, client := newClient(t)
	c := cache.NewJSON(client, time.Minute)
	ctx := context.Background()

	var got payload
	ok, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", payload{Name: "pix", Count: 2}))
	ok, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload{Name: "pix", Count: 2}, got)

	mr.FastForward(2 * time.Minute)
	ok, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJSONDelete(t *testing.T) {
	_, client := newClient(t)
	c := cache.NewJSON(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", payload{Name: "a"}))
	require.NoError(t, c.Delete(ctx, "a"))
	var got payload
	ok, err := c.Get(ctx, "a", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJSONDisabled(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()
	for _, c := range []*cache.JSON{nil, cache.NewJSON(nil, time.Minute), cache.NewJSON(client, 0)} {
		require.NoError(t, c.Set(ctx, "k", payload{Name: "x"}))
		var got payload
		ok, err := c.Get(ctx, "k", &got)
		require.NoError(t, err)
		require.False(t, ok)
		require.NoError(t, c.Delete(ctx, "k"))
	}
}

func TestKeys(t *testing.T) {
	require.Equal(t, "pos:payment_methods:active", cache.KeyPaymentMethods())
	require.Equal(t, "pos:variant_code:789123", cache.KeyVariantCode(" 789123 "))
	require.Equal(t, "pos:variant_code:sku-a", cache.KeyVariantCode("SKU-A"))
	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "pos:report:2026-10-01T00:00:00Z:2026-10-02T00:00:00Z", cache.KeySalesReport(from, from.AddDate(0, 0, 1)))
}
