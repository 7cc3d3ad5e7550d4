package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceSource delivers reference-price observations for a symbol.
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
