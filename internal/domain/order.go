package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// PositionSide returns the position side a fill on this order side produces.
func (s Side) PositionSide() PositionSide {
	if s == SideBuy {
		return PositionLong
	}
	return PositionShort
}

// OrderKind distinguishes resting limit orders from immediate market orders.
type OrderKind string

const (
	KindLimit  OrderKind = "limit"
	KindMarket OrderKind = "market"
)

// OrderStatus is the lifecycle state of an order.
// StatusFilled and StatusCancelled are terminal.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
)

var (
	// MinOrderSize is the smallest accepted order amount, in units of the
	// traded asset.
	MinOrderSize = decimal.RequireFromString("0.0001")

	// TakerFeeRate is charged on market fills, MakerFeeRate on limit fills.
	TakerFeeRate = decimal.RequireFromString("0.0005")
	MakerFeeRate = decimal.RequireFromString("0.0003")
)

// FeeRateFor returns the fee rate an order of the given kind pays when filled.
func FeeRateFor(kind OrderKind) decimal.Decimal {
	if kind == KindMarket {
		return TakerFeeRate
	}
	return MakerFeeRate
}

// Order is one requested trade against the simulated account.
//
// FrozenAmount is the margin reserved at placement time. It is immutable once
// set: cancelling or filling the order releases exactly this value, never a
// recomputation.
type Order struct {
	ID           int64           `json:"id"`
	Market       string          `json:"market"`
	Side         Side            `json:"side"`
	Kind         OrderKind       `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Price        decimal.Decimal `json:"price"`
	Status       OrderStatus     `json:"status"`
	FilledAmount decimal.Decimal `json:"filled_amount"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	FrozenAmount decimal.Decimal `json:"frozen_amount"`
	FeeRate      decimal.Decimal `json:"fee_rate"`
	FeeAmount    decimal.Decimal `json:"fee_amount"`
	ClientID     string          `json:"client_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Terminal reports whether the order has reached a final status.
func (o *Order) Terminal() bool {
	return o.Status != StatusPending
}
