package common

import "context"

type ctxKey string

const cashierIDKey ctxKey = "auth/cashier-id"

// WithCashierID stores the authenticated cashier identifier on ctx.
func WithCashierID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cashierIDKey, id)
}

// CashierID extracts the authenticated cashier identifier from ctx if present.
func CashierID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(cashierIDKey).(string)
	return id, ok && id != ""
}
