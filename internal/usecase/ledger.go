package usecase

import (
	"fmt"
	"time"

	"github.com/dkovalev/papertrade/internal/domain"
	"github.com/shopspring/decimal"
)

// Apply is the account state-transition function: it maps the current balance
// and position set plus one action to the next balance and position set. The
// input map is never mutated; callers receive a fresh position set each time.
// After every action the ledger identity holds:
// Total = Available + Frozen + UnrealizedPnL.
func Apply(balance domain.Balance, positions map[string]*domain.Position, action domain.Action) (domain.Balance, map[string]*domain.Position, error) {
	next := clonePositions(positions)

	switch a := action.(type) {
	case domain.PlaceOrder:
		frozen := RequiredMargin(a.Order, next)
		balance.Available = balance.Available.Sub(frozen)
		balance.Frozen = balance.Frozen.Add(frozen)

	case domain.CancelOrder:
		// The recorded amount, verbatim: the position may have changed since
		// placement, so recomputing would unfreeze the wrong value.
		balance.Frozen = balance.Frozen.Sub(a.Order.FrozenAmount)
		balance.Available = balance.Available.Add(a.Order.FrozenAmount)

	case domain.FillOrder:
		fee := fillFee(a.Order, a.FillPrice)

		balance.Frozen = balance.Frozen.Sub(a.Order.FrozenAmount)
		balance.Available = balance.Available.Add(a.Order.FrozenAmount).Sub(fee)
		balance.TotalFeesPaid = balance.TotalFeesPaid.Add(fee)

		realized := mergeFill(next, a.Order, a.FillPrice)

		marginTotal := totalMargin(next)
		marginDelta := marginTotal.Sub(balance.MarginUsed)
		balance.Available = balance.Available.Sub(marginDelta).Add(realized)
		balance.MarginUsed = marginTotal

		// Re-mark at the fill price so a closed position's stale PnL cannot
		// linger in the ledger; the next price observation marks at the live
		// price again.
		balance.UnrealizedPnL = markPositions(next, a.FillPrice)

	case domain.UpdatePrice:
		balance.UnrealizedPnL = markPositions(next, a.Price)

	default:
		return balance, next, fmt.Errorf("unknown action %T", action)
	}

	balance.Total = balance.Available.Add(balance.Frozen).Add(balance.UnrealizedPnL)
	return balance, next, nil
}

// RequiredMargin returns the balance an order must freeze at placement, given
// the current position set. Sibling pending orders are intentionally ignored:
// each order's freeze is self-contained and computed against the open
// position alone.
func RequiredMargin(order *domain.Order, positions map[string]*domain.Position) decimal.Decimal {
	notional := order.Amount.Mul(order.Price)

	pos, ok := positions[order.Market]
	if !ok {
		return notional
	}
	if pos.Side == order.Side.PositionSide() {
		return notional
	}
	// Opposing order: covered by the existing position up to its amount; only
	// the excess that would open exposure on the other side needs margin.
	if order.Amount.LessThanOrEqual(pos.Amount) {
		return decimal.Zero
	}
	return order.Amount.Sub(pos.Amount).Mul(order.Price)
}

// fillFee is the fee charged for filling the order at fillPrice, always
// computed on the actual fill value rather than the quoted order price.
func fillFee(order *domain.Order, fillPrice decimal.Decimal) decimal.Decimal {
	return order.Amount.Mul(fillPrice).Mul(domain.FeeRateFor(order.Kind))
}

// mergeFill folds a fill into the position set in place and returns the
// realized profit. The map must already be the caller's own copy.
func mergeFill(positions map[string]*domain.Position, order *domain.Order, fillPrice decimal.Decimal) decimal.Decimal {
	now := time.Now()
	side := order.Side.PositionSide()

	pos, ok := positions[order.Market]
	if !ok {
		positions[order.Market] = &domain.Position{
			Market:     order.Market,
			Side:       side,
			Amount:     order.Amount,
			EntryPrice: fillPrice,
			MarginUsed: order.Amount.Mul(fillPrice),
			Leverage:   domain.DefaultLeverage,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return decimal.Zero
	}

	if pos.Side == side {
		// Same direction: exposure grows, entry becomes the volume-weighted
		// average of the old position and the fill.
		newAmount := pos.Amount.Add(order.Amount)
		oldValue := pos.Amount.Mul(pos.EntryPrice)
		fillValue := order.Amount.Mul(fillPrice)
		pos.EntryPrice = oldValue.Add(fillValue).Div(newAmount)
		pos.Amount = newAmount
		pos.MarginUsed = pos.Amount.Mul(pos.EntryPrice)
		pos.UpdatedAt = now
		return decimal.Zero
	}

	// Opposing fill: reduce, close, or reverse.
	closed := decimal.Min(order.Amount, pos.Amount)
	realized := closed.Mul(fillPrice.Sub(pos.EntryPrice))
	if pos.Side == domain.PositionShort {
		realized = realized.Neg()
	}

	switch cmp := order.Amount.Cmp(pos.Amount); {
	case cmp < 0:
		pos.Amount = pos.Amount.Sub(order.Amount)
		pos.MarginUsed = pos.Amount.Mul(pos.EntryPrice)
		pos.UpdatedAt = now
	case cmp == 0:
		delete(positions, order.Market)
	default:
		// Reversal: the old position closes in full and the excess opens a
		// fresh position on the other side at the fill price.
		excess := order.Amount.Sub(pos.Amount)
		positions[order.Market] = &domain.Position{
			Market:     order.Market,
			Side:       side,
			Amount:     excess,
			EntryPrice: fillPrice,
			MarginUsed: excess.Mul(fillPrice),
			Leverage:   domain.DefaultLeverage,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	return realized
}

func totalMargin(positions map[string]*domain.Position) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range positions {
		total = total.Add(pos.MarginUsed)
	}
	return total
}

// markPositions recomputes each position's unrealized PnL at price and
// returns the sum.
func markPositions(positions map[string]*domain.Position, price decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range positions {
		pos.UnrealizedPnL = pos.MarkPnL(price)
		total = total.Add(pos.UnrealizedPnL)
	}
	return total
}

func clonePositions(positions map[string]*domain.Position) map[string]*domain.Position {
	next := make(map[string]*domain.Position, len(positions))
	for market, pos := range positions {
		copied := *pos
		next[market] = &copied
	}
	return next
}
