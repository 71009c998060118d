package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/pricing"
)

var (
	// ErrInvalidInput is the base of every rejected settlement mutation.
	ErrInvalidInput = errors.New("invalid input")

	ErrInvalidAmount       = fmt.Errorf("amount must be positive: %w", ErrInvalidInput)
	ErrInvalidInstallments = fmt.Errorf("installments not allowed: %w", ErrInvalidInput)
	ErrInvalidMethod       = fmt.Errorf("payment method unusable: %w", ErrInvalidInput)
	ErrNothingDue          = fmt.Errorf("nothing left to pay: %w", ErrInvalidInput)
	ErrExceedsRemaining    = fmt.Errorf("amount exceeds remaining balance: %w", ErrInvalidInput)

	// ErrSettlementIncomplete is returned by Finalize while the balance is still open.
	ErrSettlementIncomplete = errors.New("settlement incomplete")
	// ErrSettled is returned by any mutation after Finalize.
	ErrSettled = errors.New("settlement already finalized")
)

// MethodType is the closed set of tender kinds.
type MethodType string

const (
	Cash        MethodType = "cash"
	CreditCard  MethodType = "credit_card"
	DebitCard   MethodType = "debit_card"
	Pix         MethodType = "pix"
	StoreCredit MethodType = "store_credit"
)

var methodAliases = map[string]MethodType{
	"cash":           Cash,
	"dinheiro":       Cash,
	"credit_card":    CreditCard,
	"cartao_credito": CreditCard,
	"debit_card":     DebitCard,
	"cartao_debito":  DebitCard,
	"pix":            Pix,
	"store_credit":   StoreCredit,
	"fiado":          StoreCredit,
}

// ParseMethodType accepts canonical names as well as the legacy catalog names
// (dinheiro, cartao_credito, cartao_debito, fiado).
func ParseMethodType(s string) (MethodType, error) {
	t, ok := methodAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown payment method type %q: %w", s, ErrInvalidMethod)
	}
	return t, nil
}

// Valid reports whether t is one of the known types.
func (t MethodType) Valid() bool {
	switch t {
	case Cash, CreditCard, DebitCard, Pix, StoreCredit:
		return true
	}
	return false
}

// SupportsInstallments reports whether the tender may be split into more than
// one installment.
func (t MethodType) SupportsInstallments() bool {
	return t == CreditCard
}

func (t MethodType) String() string { return string(t) }

// Method is reference data describing one configured payment method.
type Method struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Type            MethodType      `json:"type"`
	FeePercentage   decimal.Decimal `json:"feePercentage"`
	InterestRate    decimal.Decimal `json:"interestRate"`
	MaxInstallments int             `json:"maxInstallments"`
	Active          bool            `json:"active"`
}

// Validate checks the method can be used to tender a payment.
func (m Method) Validate() error {
	switch {
	case m.ID == uuid.Nil:
		return fmt.Errorf("method id required: %w", ErrInvalidMethod)
	case !m.Active:
		return fmt.Errorf("method %s inactive: %w", m.Name, ErrInvalidMethod)
	case !m.Type.Valid():
		return fmt.Errorf("method %s has type %q: %w", m.Name, m.Type, ErrInvalidMethod)
	case m.FeePercentage.IsNegative(), m.InterestRate.IsNegative():
		return fmt.Errorf("method %s has negative rates: %w", m.Name, ErrInvalidMethod)
	}
	return nil
}

func (m Method) maxInstallments() int {
	if !m.Type.SupportsInstallments() || m.MaxInstallments < 1 {
		return 1
	}
	return m.MaxInstallments
}

// Quote is the economics of tendering amount with a method.
type Quote struct {
	Amount            decimal.Decimal `json:"amount"`
	Installments      int             `json:"installments"`
	InstallmentValue  decimal.Decimal `json:"installmentValue"`
	TotalWithInterest decimal.Decimal `json:"totalWithInterest"`
	InterestAmount    decimal.Decimal `json:"interestAmount"`
	FeeAmount         decimal.Decimal `json:"feeAmount"`
	NetAmount         decimal.Decimal `json:"netAmount"`
}

// Schedule lists every installment value; the last absorbs rounding drift.
func (q Quote) Schedule() []decimal.Decimal {
	return q.plan().Schedule()
}

func (q Quote) plan() pricing.InstallmentPlan {
	return pricing.InstallmentPlan{
		Installments:      q.Installments,
		InstallmentValue:  q.InstallmentValue,
		TotalWithInterest: q.TotalWithInterest,
		InterestAmount:    q.InterestAmount,
	}
}

// Quote previews the fee and installment economics of tendering amount in n
// installments. n of zero is read as a single installment.
func (m Method) Quote(amount decimal.Decimal, n int) (Quote, error) {
	if !amount.IsPositive() {
		return Quote{}, ErrInvalidAmount
	}
	n, err := m.installments(n)
	if err != nil {
		return Quote{}, err
	}
	fees := pricing.Fees(amount, m.FeePercentage)
	plan := pricing.Installments(amount, m.InterestRate, n)
	return Quote{
		Amount:            amount,
		Installments:      plan.Installments,
		InstallmentValue:  plan.InstallmentValue,
		TotalWithInterest: plan.TotalWithInterest,
		InterestAmount:    plan.InterestAmount,
		FeeAmount:         fees.FeeAmount,
		NetAmount:         fees.NetAmount,
	}, nil
}

// InstallmentOptions lists quotes for 1..MaxInstallments. Methods without
// installment support yield a single option.
func (m Method) InstallmentOptions(amount decimal.Decimal) ([]Quote, error) {
	limit := m.maxInstallments()
	out := make([]Quote, 0, limit)
	for n := 1; n <= limit; n++ {
		q, err := m.Quote(amount, n)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (m Method) installments(n int) (int, error) {
	switch {
	case n < 0:
		return 0, fmt.Errorf("installments %d: %w", n, ErrInvalidInstallments)
	case n <= 1:
		return 1, nil
	case !m.Type.SupportsInstallments():
		return 0, fmt.Errorf("%s does not accept installments: %w", m.Type, ErrInvalidInstallments)
	case n > m.maxInstallments():
		return 0, fmt.Errorf("%d installments above limit %d: %w", n, m.maxInstallments(), ErrInvalidInstallments)
	}
	return n, nil
}
