package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSide is the direction of the account's net exposure.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// DefaultLeverage is fixed at 1x: margin equals the full notional value.
const DefaultLeverage = 1

// Position is the account's net exposure in a single market. Amount stays
// strictly positive for as long as the record exists; a transition that would
// bring it to zero removes the position entirely.
type Position struct {
	Market        string          `json:"market"`
	Side          PositionSide    `json:"side"`
	Amount        decimal.Decimal `json:"amount"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	MarginUsed    decimal.Decimal `json:"margin_used"`
	Leverage      int             `json:"leverage"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MarkPnL returns the position's unrealized profit marked at price.
func (p *Position) MarkPnL(price decimal.Decimal) decimal.Decimal {
	if p.Side == PositionLong {
		return price.Sub(p.EntryPrice).Mul(p.Amount)
	}
	return p.EntryPrice.Sub(price).Mul(p.Amount)
}
