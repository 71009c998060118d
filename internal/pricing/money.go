package pricing

import "github.com/shopspring/decimal"

// Money is a currency amount. Amounts are carried in full precision and only
// rounded to cents where they are presented, persisted or explicitly defined
// as rounded (fees, installments).
type Money = decimal.Decimal

const centPlaces = 2

var (
	// Tolerance is the largest balance a settlement may leave uncollected.
	Tolerance = decimal.New(1, -centPlaces)

	hundred = decimal.NewFromInt(100)
)

// Round rounds to cents, ties away from zero.
func Round(m Money) Money {
	return m.Round(centPlaces)
}

// RoundToStep rounds v to the nearest multiple of step, ties away from zero.
// A non-positive step leaves v untouched.
func RoundToStep(v, step Money) Money {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Round(0).Mul(step)
}

// NonNegative clamps m at zero.
func NonNegative(m Money) Money {
	if m.IsNegative() {
		return decimal.Zero
	}
	return m
}

// Percent returns pct percent of m without rounding.
func Percent(m, pct Money) Money {
	return m.Mul(pct).Div(hundred)
}

// ParseMoney parses a decimal string such as "47.50".
func ParseMoney(value string) (Money, error) {
	return decimal.NewFromString(value)
}
