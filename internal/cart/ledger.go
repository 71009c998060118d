package cart

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/pricing"
)

// ErrInvalidInput is returned when a mutation is rejected. The ledger is left
// unchanged whenever it is returned.
var ErrInvalidInput = errors.New("invalid input")

// Variant is the catalog view of a sellable item.
type Variant struct {
	ID          uuid.UUID       `json:"id"`
	Price       decimal.Decimal `json:"price"`
	DisplayName string          `json:"displayName"`
}

// Customer is the optional customer attached to a sale. The discount
// percentage is advisory; the ledger never applies it on its own.
type Customer struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
}

// LineItem is a single variant in the ledger.
type LineItem struct {
	VariantID    uuid.UUID       `json:"variantId"`
	DisplayName  string          `json:"displayName"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Quantity     int             `json:"quantity"`
	ItemDiscount decimal.Decimal `json:"itemDiscount"`
}

// Total returns the line total, floored at zero.
func (l LineItem) Total() decimal.Decimal {
	return l.pricingLine().Total()
}

func (l LineItem) pricingLine() pricing.Line {
	return pricing.Line{Qty: l.Quantity, UnitPrice: l.UnitPrice, Discount: l.ItemDiscount}
}

// Ledger holds the line items of an in-progress sale. It is owned by a single
// checkout session and is not safe for concurrent use.
type Ledger struct {
	items         []LineItem
	totalDiscount decimal.Decimal
	customer      *Customer
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{totalDiscount: decimal.Zero}
}

// AddItem appends the variant with the given quantity, or increases the
// quantity when the variant is already in the ledger.
func (l *Ledger) AddItem(v Variant, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive: %w", ErrInvalidInput)
	}
	if v.ID == uuid.Nil {
		return fmt.Errorf("variant id required: %w", ErrInvalidInput)
	}
	if v.Price.IsNegative() {
		return fmt.Errorf("variant price must not be negative: %w", ErrInvalidInput)
	}
	if i := l.indexOf(v.ID); i >= 0 {
		l.items[i].Quantity += qty
		return nil
	}
	l.items = append(l.items, LineItem{
		VariantID:    v.ID,
		DisplayName:  v.DisplayName,
		UnitPrice:    v.Price,
		Quantity:     qty,
		ItemDiscount: decimal.Zero,
	})
	return nil
}

// UpdateQuantity sets the quantity of a line. A quantity of zero or less
// removes the line. Unknown variants are ignored.
func (l *Ledger) UpdateQuantity(variantID uuid.UUID, qty int) {
	if qty <= 0 {
		l.RemoveItem(variantID)
		return
	}
	if i := l.indexOf(variantID); i >= 0 {
		l.items[i].Quantity = qty
	}
}

// RemoveItem deletes the line for variantID if present.
func (l *Ledger) RemoveItem(variantID uuid.UUID) {
	if i := l.indexOf(variantID); i >= 0 {
		l.items = slices.Delete(l.items, i, i+1)
	}
}

// SetItemPrice overrides the unit price of a line.
func (l *Ledger) SetItemPrice(variantID uuid.UUID, price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("price must not be negative: %w", ErrInvalidInput)
	}
	if i := l.indexOf(variantID); i >= 0 {
		l.items[i].UnitPrice = price
	}
	return nil
}

// SetItemDiscount overrides the per-unit discount of a line. Discounts above
// the unit price are accepted; the line then contributes zero.
func (l *Ledger) SetItemDiscount(variantID uuid.UUID, discount decimal.Decimal) error {
	if discount.IsNegative() {
		return fmt.Errorf("discount must not be negative: %w", ErrInvalidInput)
	}
	if i := l.indexOf(variantID); i >= 0 {
		l.items[i].ItemDiscount = discount
	}
	return nil
}

// SetTotalDiscount sets the sale-wide discount applied after summing lines.
func (l *Ledger) SetTotalDiscount(discount decimal.Decimal) error {
	if discount.IsNegative() {
		return fmt.Errorf("discount must not be negative: %w", ErrInvalidInput)
	}
	l.totalDiscount = discount
	return nil
}

// Clear empties the ledger, resets the sale discount and detaches the customer.
func (l *Ledger) Clear() {
	l.items = nil
	l.totalDiscount = decimal.Zero
	l.customer = nil
}

// AttachCustomer sets the customer for the sale, replacing any previous one.
func (l *Ledger) AttachCustomer(c Customer) {
	l.customer = &c
}

// DetachCustomer removes the customer from the sale.
func (l *Ledger) DetachCustomer() {
	l.customer = nil
}

// Customer returns the attached customer.
func (l *Ledger) Customer() (Customer, bool) {
	if l.customer == nil {
		return Customer{}, false
	}
	return *l.customer, true
}

// Lines returns a copy of the line items in insertion order.
func (l *Ledger) Lines() []LineItem {
	return slices.Clone(l.items)
}

// Line returns the line for variantID.
func (l *Ledger) Line(variantID uuid.UUID) (LineItem, bool) {
	if i := l.indexOf(variantID); i >= 0 {
		return l.items[i], true
	}
	return LineItem{}, false
}

// Len reports the number of distinct lines.
func (l *Ledger) Len() int {
	return len(l.items)
}

// Units reports the number of units across all lines.
func (l *Ledger) Units() int {
	n := 0
	for _, it := range l.items {
		n += it.Quantity
	}
	return n
}

// TotalDiscount returns the sale-wide discount as set by the operator.
func (l *Ledger) TotalDiscount() decimal.Decimal {
	return l.totalDiscount
}

// Subtotal is the sum of line totals in full precision.
func (l *Ledger) Subtotal() decimal.Decimal {
	return l.compute().Subtotal
}

// Total is max(0, subtotal - total discount) in full precision.
func (l *Ledger) Total() decimal.Decimal {
	return l.compute().Total
}

// Summary returns subtotal, applied discount and total rounded to cents.
func (l *Ledger) Summary() pricing.Summary {
	return l.compute().Rounded()
}

// CustomerDiscount is the discount the attached customer's percentage would
// grant on the current subtotal. It is zero without a customer.
func (l *Ledger) CustomerDiscount() decimal.Decimal {
	if l.customer == nil || !l.customer.DiscountPercentage.IsPositive() {
		return decimal.Zero
	}
	return pricing.Round(pricing.Percent(l.Subtotal(), l.customer.DiscountPercentage))
}

func (l *Ledger) compute() pricing.Summary {
	lines := make([]pricing.Line, 0, len(l.items))
	for _, it := range l.items {
		lines = append(lines, it.pricingLine())
	}
	return pricing.Compute(lines, l.totalDiscount)
}

func (l *Ledger) indexOf(variantID uuid.UUID) int {
	return slices.IndexFunc(l.items, func(it LineItem) bool { return it.VariantID == variantID })
}
