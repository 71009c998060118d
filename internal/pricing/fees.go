package pricing

import "github.com/shopspring/decimal"

// FeeBreakdown is the acquirer fee withheld from a payment.
type FeeBreakdown struct {
	FeeAmount Money `json:"feeAmount"`
	NetAmount Money `json:"netAmount"`
}

// Fees computes the fee withheld on amount for a fee percentage.
func Fees(amount, feePercentage Money) FeeBreakdown {
	fee := Round(Percent(amount, feePercentage))
	return FeeBreakdown{
		FeeAmount: fee,
		NetAmount: Round(amount.Sub(fee)),
	}
}

// InstallmentPlan describes how a card payment is split into monthly
// installments with compound interest.
type InstallmentPlan struct {
	Installments      int   `json:"installments"`
	InstallmentValue  Money `json:"installmentValue"`
	TotalWithInterest Money `json:"totalWithInterest"`
	InterestAmount    Money `json:"interestAmount"`
}

// Installments computes the plan for amount paid in n monthly installments at
// monthlyRate percent compounded monthly. A single installment never accrues
// interest.
func Installments(amount, monthlyRate Money, n int) InstallmentPlan {
	if n <= 1 {
		return InstallmentPlan{
			Installments:      1,
			InstallmentValue:  amount,
			TotalWithInterest: amount,
			InterestAmount:    decimal.Zero,
		}
	}
	growth := decimal.NewFromInt(1).Add(Percent(decimal.NewFromInt(1), monthlyRate))
	factor := decimal.NewFromInt(1)
	for i := 0; i < n; i++ {
		factor = factor.Mul(growth)
	}
	total := Round(amount.Mul(factor))
	return InstallmentPlan{
		Installments:      n,
		InstallmentValue:  Round(total.Div(decimal.NewFromInt(int64(n)))),
		TotalWithInterest: total,
		InterestAmount:    total.Sub(amount),
	}
}

// Schedule lists the amount charged per installment. Every installment equals
// InstallmentValue except the last, which absorbs the rounding remainder so
// the schedule always sums to TotalWithInterest.
func (p InstallmentPlan) Schedule() []Money {
	n := p.Installments
	if n < 1 {
		n = 1
	}
	out := make([]Money, n)
	for i := 0; i < n-1; i++ {
		out[i] = p.InstallmentValue
	}
	out[n-1] = p.TotalWithInterest.Sub(p.InstallmentValue.Mul(decimal.NewFromInt(int64(n - 1))))
	return out
}
