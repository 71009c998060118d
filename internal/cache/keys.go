package cache

import (
	"fmt"
	"strings"
	"time"
)

const prefix = "pos"

// Key joins parts into a namespaced cache key.
func Key(parts ...any) string {
	formatted := make([]string, 0, len(parts)+1)
	formatted = append(formatted, prefix)
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// KeyPaymentMethods is the key of the active payment-method list.
func KeyPaymentMethods() string {
	return Key("payment_methods", "active")
}

// KeyVariant is the key of a single variant by id.
func KeyVariant(id string) string {
	return Key("variant", id)
}

// KeyVariantCode is the key of a variant lookup by SKU, EAN or internal code.
func KeyVariantCode(code string) string {
	return Key("variant_code", strings.ToLower(strings.TrimSpace(code)))
}

// KeySalesReport is the key of a sales report for the half-open range [from, to).
func KeySalesReport(from, to time.Time) string {
	return Key("report", from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
}
