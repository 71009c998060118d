package payment

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/pricing"
)

// Entry is one applied payment. Entries are immutable once added.
type Entry struct {
	MethodID   uuid.UUID  `json:"paymentMethodId"`
	MethodName string     `json:"methodName"`
	MethodType MethodType `json:"methodType"`
	// Tendered is what the customer handed over. It only differs from Amount
	// for cash paid above the remaining balance.
	Tendered decimal.Decimal `json:"tendered"`
	Quote
}

// Change is the cash returned to the customer for this entry.
func (e Entry) Change() decimal.Decimal {
	return pricing.NonNegative(e.Tendered.Sub(e.Amount))
}

// Receipt is the outcome of applying a payment.
type Receipt struct {
	Entry     Entry           `json:"entry"`
	Change    decimal.Decimal `json:"change"`
	Remaining decimal.Decimal `json:"remaining"`
}

// SettledSale is the immutable record produced by Finalize.
type SettledSale struct {
	OriginalTotal decimal.Decimal `json:"originalTotal"`
	Target        decimal.Decimal `json:"target"`
	Entries       []Entry         `json:"entries"`
	Collected     decimal.Decimal `json:"collected"`
	Change        decimal.Decimal `json:"change"`
	FeeTotal      decimal.Decimal `json:"feeTotal"`
	NetTotal      decimal.Decimal `json:"netTotal"`
}

// Tendered is the cash the customer handed over across all entries.
func (s SettledSale) Tendered() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range s.Entries {
		if e.MethodType == Cash {
			sum = sum.Add(e.Tendered)
		}
	}
	return sum
}

// Settlement accumulates payments against a fixed target until the balance
// is within pricing.Tolerance. It moves from open to settled exactly once and
// is not safe for concurrent use.
type Settlement struct {
	original decimal.Decimal
	target   decimal.Decimal
	entries  []Entry
	settled  bool
}

// NewSettlement opens a settlement for total. A positive roundingStep rounds
// the target to that cash denomination; otherwise the target is total as is.
func NewSettlement(total, roundingStep decimal.Decimal) (*Settlement, error) {
	if total.IsNegative() {
		return nil, fmt.Errorf("total %s: %w", total, ErrInvalidAmount)
	}
	if roundingStep.IsNegative() {
		return nil, fmt.Errorf("rounding step %s: %w", roundingStep, ErrInvalidInput)
	}
	return &Settlement{
		original: total,
		target:   pricing.RoundToStep(total, roundingStep),
	}, nil
}

// Target is the amount to collect.
func (s *Settlement) Target() decimal.Decimal { return s.target }

// OriginalTotal is the cart total before denomination rounding.
func (s *Settlement) OriginalTotal() decimal.Decimal { return s.original }

// Entries returns a copy of the applied payments in order.
func (s *Settlement) Entries() []Entry { return slices.Clone(s.entries) }

// Settled reports whether Finalize has succeeded.
func (s *Settlement) Settled() bool { return s.settled }

// Collected is the sum of applied amounts.
func (s *Settlement) Collected() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range s.entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}

// Remaining is target minus collected. It is signed so callers can detect
// overpayment.
func (s *Settlement) Remaining() decimal.Decimal {
	return s.target.Sub(s.Collected())
}

// CanFinalize reports whether the remaining balance is within tolerance.
func (s *Settlement) CanFinalize() bool {
	return !s.settled && s.Remaining().LessThanOrEqual(pricing.Tolerance)
}

// AddEntry applies amount with method. For cash, amount is what was tendered:
// at most the remaining balance is applied and the excess is reported as
// change. Other methods apply exactly amount, which may not exceed the
// remaining balance. The settlement is unchanged when an error is returned.
func (s *Settlement) AddEntry(method Method, amount decimal.Decimal, installments int) (Receipt, error) {
	if s.settled {
		return Receipt{}, ErrSettled
	}
	if err := method.Validate(); err != nil {
		return Receipt{}, err
	}
	if !amount.IsPositive() {
		return Receipt{}, fmt.Errorf("amount %s: %w", amount, ErrInvalidAmount)
	}
	remaining := s.Remaining()
	if !remaining.IsPositive() {
		return Receipt{}, ErrNothingDue
	}

	applied := amount
	if method.Type == Cash {
		applied = decimal.Min(amount, remaining)
	} else if amount.GreaterThan(remaining) {
		return Receipt{}, fmt.Errorf("%s above %s: %w", amount, remaining, ErrExceedsRemaining)
	}

	quote, err := method.Quote(applied, installments)
	if err != nil {
		return Receipt{}, err
	}
	entry := Entry{
		MethodID:   method.ID,
		MethodName: method.Name,
		MethodType: method.Type,
		Tendered:   amount,
		Quote:      quote,
	}
	s.entries = append(s.entries, entry)
	return Receipt{Entry: entry, Change: entry.Change(), Remaining: s.Remaining()}, nil
}

// PayRemaining applies the whole remaining balance with method.
func (s *Settlement) PayRemaining(method Method, installments int) (Receipt, error) {
	if s.settled {
		return Receipt{}, ErrSettled
	}
	remaining := s.Remaining()
	if !remaining.IsPositive() {
		return Receipt{}, ErrNothingDue
	}
	return s.AddEntry(method, remaining, installments)
}

// RemoveEntry deletes the entry at index. Out of range indexes are ignored.
func (s *Settlement) RemoveEntry(index int) error {
	if s.settled {
		return ErrSettled
	}
	if index < 0 || index >= len(s.entries) {
		return nil
	}
	s.entries = slices.Delete(s.entries, index, index+1)
	return nil
}

// Finalize closes the settlement and returns its immutable record.
func (s *Settlement) Finalize() (SettledSale, error) {
	if s.settled {
		return SettledSale{}, ErrSettled
	}
	if !s.CanFinalize() {
		return SettledSale{}, fmt.Errorf("%s still due: %w", s.Remaining(), ErrSettlementIncomplete)
	}
	out := SettledSale{
		OriginalTotal: s.original,
		Target:        s.target,
		Entries:       slices.Clone(s.entries),
		Collected:     s.Collected(),
		Change:        decimal.Zero,
		FeeTotal:      decimal.Zero,
		NetTotal:      decimal.Zero,
	}
	for _, e := range s.entries {
		out.Change = out.Change.Add(e.Change())
		out.FeeTotal = out.FeeTotal.Add(e.FeeAmount)
		out.NetTotal = out.NetTotal.Add(e.NetAmount)
	}
	s.settled = true
	return out, nil
}
