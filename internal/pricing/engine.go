package pricing

import "github.com/shopspring/decimal"

// Line describes a cart line used for pricing calculation.
type Line struct {
	Qty       int
	UnitPrice Money
	Discount  Money
}

// Total returns (unit price - discount) * qty. A line discounted below zero
// contributes nothing rather than offsetting other lines.
func (l Line) Total() Money {
	if l.Qty <= 0 {
		return decimal.Zero
	}
	return NonNegative(l.UnitPrice.Sub(l.Discount)).Mul(decimal.NewFromInt(int64(l.Qty)))
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal Money `json:"subtotal"`
	Discount Money `json:"discount"`
	Total    Money `json:"total"`
}

// Compute calculates cart totals. The sale-wide discount is capped at the
// subtotal so the total never goes negative.
func Compute(lines []Line, discount Money) Summary {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}
	discount = NonNegative(discount)
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Total:    subtotal.Sub(discount),
	}
}

// Rounded returns the summary rounded to cents for presentation.
func (s Summary) Rounded() Summary {
	return Summary{
		Subtotal: Round(s.Subtotal),
		Discount: Round(s.Discount),
		Total:    Round(s.Total),
	}
}
