package sale

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/cart"
	"github.com/noah-isme/toko-pos/internal/payment"
	"github.com/noah-isme/toko-pos/internal/pricing"
)

// ErrNotFound is returned for unknown sale ids.
var ErrNotFound = errors.New("sale not found")

// StatusCompleted is the status of every sale recorded by the POS.
const StatusCompleted = "completed"

// Item is a persisted sale line.
type Item struct {
	VariantID   uuid.UUID       `json:"variantId"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

// Payment is a persisted payment entry.
type Payment struct {
	MethodID          uuid.UUID          `json:"paymentMethodId"`
	MethodType        payment.MethodType `json:"methodType"`
	Amount            decimal.Decimal    `json:"amount"`
	FeeAmount         decimal.Decimal    `json:"feeAmount"`
	NetAmount         decimal.Decimal    `json:"netAmount"`
	Installments      int                `json:"installments"`
	InstallmentValue  decimal.Decimal    `json:"installmentValue"`
	TotalWithInterest decimal.Decimal    `json:"totalWithInterest"`
}

// Record is a finalized sale. Amounts are rounded to cents.
type Record struct {
	ID            uuid.UUID       `json:"id"`
	ReceiptNumber int64           `json:"receiptNumber"`
	SessionID     uuid.UUID       `json:"sessionId"`
	CashierID     string          `json:"cashierId"`
	CustomerID    *uuid.UUID      `json:"customerId,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	FeeAmount     decimal.Decimal `json:"feeAmount"`
	NetTotal      decimal.Decimal `json:"netTotal"`
	CashReceived  decimal.Decimal `json:"cashReceived"`
	Change        decimal.Decimal `json:"change"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	Items         []Item          `json:"items,omitempty"`
	Payments      []Payment       `json:"payments,omitempty"`
}

// Checkout is everything a finished POS session hands over for persistence.
type Checkout struct {
	SessionID  uuid.UUID
	CashierID  string
	CustomerID *uuid.UUID
	Lines      []cart.LineItem
	Summary    pricing.Summary
	Settled    payment.SettledSale
}

// NewRecord builds the record persisted for a checkout. The sale total is the
// settlement target, which differs from the cart total only by cash rounding.
func NewRecord(c Checkout) Record {
	rec := Record{
		SessionID:    c.SessionID,
		CashierID:    c.CashierID,
		CustomerID:   c.CustomerID,
		Subtotal:     pricing.Round(c.Summary.Subtotal),
		Discount:     pricing.Round(c.Summary.Discount),
		Total:        pricing.Round(c.Settled.Target),
		FeeAmount:    pricing.Round(c.Settled.FeeTotal),
		NetTotal:     pricing.Round(c.Settled.NetTotal),
		CashReceived: pricing.Round(c.Settled.Tendered()),
		Change:       pricing.Round(c.Settled.Change),
		Status:       StatusCompleted,
		Items:        make([]Item, 0, len(c.Lines)),
		Payments:     make([]Payment, 0, len(c.Settled.Entries)),
	}
	for _, l := range c.Lines {
		rec.Items = append(rec.Items, Item{
			VariantID:   l.VariantID,
			Description: l.DisplayName,
			Quantity:    l.Quantity,
			UnitPrice:   pricing.Round(l.UnitPrice),
			Discount:    pricing.Round(l.ItemDiscount),
			Total:       pricing.Round(l.Total()),
		})
	}
	for _, e := range c.Settled.Entries {
		rec.Payments = append(rec.Payments, Payment{
			MethodID:          e.MethodID,
			MethodType:        e.MethodType,
			Amount:            pricing.Round(e.Amount),
			FeeAmount:         e.FeeAmount,
			NetAmount:         e.NetAmount,
			Installments:      e.Installments,
			InstallmentValue:  e.InstallmentValue,
			TotalWithInterest: e.TotalWithInterest,
		})
	}
	return rec
}
