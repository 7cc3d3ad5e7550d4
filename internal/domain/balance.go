package domain

import "github.com/shopspring/decimal"

// StartingBalance is the available balance a fresh (or reset) account holds.
var StartingBalance = decimal.NewFromInt(10000)

// Balance is the single-currency account ledger.
//
// MarginUsed is already netted out of Available when a position allocates it,
// so the ledger identity is Total = Available + Frozen + UnrealizedPnL.
type Balance struct {
	Available     decimal.Decimal `json:"available"`
	Frozen        decimal.Decimal `json:"frozen"`
	MarginUsed    decimal.Decimal `json:"margin_used"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Total         decimal.Decimal `json:"total"`
	TotalFeesPaid decimal.Decimal `json:"total_fees_paid"`
}

// NewBalance returns the fixed starting ledger.
func NewBalance() Balance {
	return Balance{
		Available:     StartingBalance,
		Frozen:        decimal.Zero,
		MarginUsed:    decimal.Zero,
		UnrealizedPnL: decimal.Zero,
		Total:         StartingBalance,
		TotalFeesPaid: decimal.Zero,
	}
}
