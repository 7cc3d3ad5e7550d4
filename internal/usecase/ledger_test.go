package usecase_test

import (
	"testing"

	"github.com/dkovalev/papertrade/internal/domain"
	"github.com/dkovalev/papertrade/internal/usecase"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func limitOrder(id int64, side domain.Side, amount, price string) *domain.Order {
	return &domain.Order{
		ID:     id,
		Market: "BTCUSDT",
		Side:   side,
		Kind:   domain.KindLimit,
		Amount: dec(amount),
		Price:  dec(price),
		Status: domain.StatusPending,
	}
}

func marketOrder(id int64, side domain.Side, amount, price string) *domain.Order {
	o := limitOrder(id, side, amount, price)
	o.Kind = domain.KindMarket
	return o
}

func longPosition(amount, entry string) map[string]*domain.Position {
	return map[string]*domain.Position{
		"BTCUSDT": {
			Market:     "BTCUSDT",
			Side:       domain.PositionLong,
			Amount:     dec(amount),
			EntryPrice: dec(entry),
			MarginUsed: dec(amount).Mul(dec(entry)),
			Leverage:   domain.DefaultLeverage,
		},
	}
}

func shortPosition(amount, entry string) map[string]*domain.Position {
	pos := longPosition(amount, entry)
	pos["BTCUSDT"].Side = domain.PositionShort
	return pos
}

func mustApply(t *testing.T, bal domain.Balance, pos map[string]*domain.Position, actions ...domain.Action) (domain.Balance, map[string]*domain.Position) {
	t.Helper()
	for _, a := range actions {
		var err error
		bal, pos, err = usecase.Apply(bal, pos, a)
		if err != nil {
			t.Fatalf("Apply(%T) failed: %v", a, err)
		}
		// The ledger identity must hold after every single action.
		want := bal.Available.Add(bal.Frozen).Add(bal.UnrealizedPnL)
		if !bal.Total.Equal(want) {
			t.Fatalf("ledger identity broken after %T: total %s, available+frozen+upnl %s", a, bal.Total, want)
		}
	}
	return bal, pos
}

func TestRequiredMargin(t *testing.T) {
	tests := []struct {
		name      string
		positions map[string]*domain.Position
		order     *domain.Order
		want      string
	}{
		{"no position, full notional", nil, limitOrder(1, domain.SideBuy, "0.1", "50000"), "5000"},
		{"same side adds exposure", longPosition("0.1", "50000"), limitOrder(1, domain.SideBuy, "0.02", "50000"), "1000"},
		{"opposing smaller than position", longPosition("0.1", "50000"), limitOrder(1, domain.SideSell, "0.05", "51000"), "0"},
		{"opposing equal to position", longPosition("0.1", "50000"), limitOrder(1, domain.SideSell, "0.1", "51000"), "0"},
		// Excess over the position: (0.15 - 0.1) * 51000 = 2550
		{"opposing larger than position", longPosition("0.1", "50000"), limitOrder(1, domain.SideSell, "0.15", "51000"), "2550"},
		{"buy against short covered", shortPosition("0.2", "50000"), limitOrder(1, domain.SideBuy, "0.2", "49000"), "0"},
		{"buy against short with excess", shortPosition("0.2", "50000"), limitOrder(1, domain.SideBuy, "0.3", "49000"), "4900"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := usecase.RequiredMargin(tt.order, tt.positions)
			if !got.Equal(dec(tt.want)) {
				t.Errorf("RequiredMargin() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPlaceFreezesAndCancelRestores(t *testing.T) {
	bal := domain.NewBalance()
	order := limitOrder(1, domain.SideBuy, "0.1", "50000")
	order.FrozenAmount = usecase.RequiredMargin(order, nil)

	bal, pos := mustApply(t, bal, nil, domain.PlaceOrder{Order: order})

	// 0.1 * 50000 = 5000 moves from available to frozen.
	if !bal.Available.Equal(dec("5000")) {
		t.Errorf("available after place = %s, want 5000", bal.Available)
	}
	if !bal.Frozen.Equal(dec("5000")) {
		t.Errorf("frozen after place = %s, want 5000", bal.Frozen)
	}
	if !bal.Total.Equal(dec("10000")) {
		t.Errorf("total after place = %s, want 10000", bal.Total)
	}

	bal, _ = mustApply(t, bal, pos, domain.CancelOrder{Order: order})

	if !bal.Available.Equal(dec("10000")) {
		t.Errorf("available after cancel = %s, want 10000", bal.Available)
	}
	if !bal.Frozen.IsZero() {
		t.Errorf("frozen after cancel = %s, want 0", bal.Frozen)
	}
}

func TestCancelUsesRecordedFreeze(t *testing.T) {
	// The sell froze 2550 while a long position covered most of it. The
	// position is gone by cancel time; the unfreeze must still be 2550, not
	// the 7650 a recomputation against the empty book would give.
	bal := domain.NewBalance()
	bal.Available = dec("7450")
	bal.Frozen = dec("2550")
	bal.Total = dec("10000")

	order := limitOrder(1, domain.SideSell, "0.15", "51000")
	order.FrozenAmount = dec("2550")

	bal, _ = mustApply(t, bal, nil, domain.CancelOrder{Order: order})

	if !bal.Frozen.IsZero() {
		t.Errorf("frozen after cancel = %s, want 0", bal.Frozen)
	}
	if !bal.Available.Equal(dec("10000")) {
		t.Errorf("available after cancel = %s, want 10000", bal.Available)
	}
}

func TestFillOpensPosition(t *testing.T) {
	bal := domain.NewBalance()
	order := marketOrder(1, domain.SideBuy, "0.01", "50000")
	order.FrozenAmount = usecase.RequiredMargin(order, nil)

	bal, pos := mustApply(t, bal, nil,
		domain.PlaceOrder{Order: order},
		domain.FillOrder{Order: order, FillPrice: dec("50000")},
	)

	// Taker fee: 0.01 * 50000 * 0.0005 = 0.25
	// Available: 10000 - 0.25 - 500 margin = 9499.75
	if !bal.Available.Equal(dec("9499.75")) {
		t.Errorf("available = %s, want 9499.75", bal.Available)
	}
	if !bal.Frozen.IsZero() {
		t.Errorf("frozen = %s, want 0", bal.Frozen)
	}
	if !bal.MarginUsed.Equal(dec("500")) {
		t.Errorf("margin used = %s, want 500", bal.MarginUsed)
	}
	if !bal.TotalFeesPaid.Equal(dec("0.25")) {
		t.Errorf("fees paid = %s, want 0.25", bal.TotalFeesPaid)
	}

	p, ok := pos["BTCUSDT"]
	if !ok {
		t.Fatal("expected a position after the fill")
	}
	if p.Side != domain.PositionLong {
		t.Errorf("position side = %s, want long", p.Side)
	}
	if !p.Amount.Equal(dec("0.01")) {
		t.Errorf("position amount = %s, want 0.01", p.Amount)
	}
	if !p.EntryPrice.Equal(dec("50000")) {
		t.Errorf("entry price = %s, want 50000", p.EntryPrice)
	}
}

func TestFillSameSideAveragesEntry(t *testing.T) {
	bal := domain.NewBalance()
	buy1 := marketOrder(1, domain.SideBuy, "0.05", "50000")
	buy1.FrozenAmount = dec("2500")
	buy2 := marketOrder(2, domain.SideBuy, "0.05", "51000")
	buy2.FrozenAmount = dec("2550")

	_, pos := mustApply(t, bal, nil,
		domain.PlaceOrder{Order: buy1},
		domain.FillOrder{Order: buy1, FillPrice: dec("50000")},
		domain.PlaceOrder{Order: buy2},
		domain.FillOrder{Order: buy2, FillPrice: dec("51000")},
	)

	p := pos["BTCUSDT"]
	if p == nil {
		t.Fatal("expected a position")
	}
	// (0.05*50000 + 0.05*51000) / 0.1 = 50500
	if !p.EntryPrice.Equal(dec("50500")) {
		t.Errorf("entry price = %s, want 50500", p.EntryPrice)
	}
	if !p.Amount.Equal(dec("0.1")) {
		t.Errorf("amount = %s, want 0.1", p.Amount)
	}
	if !p.MarginUsed.Equal(dec("5050")) {
		t.Errorf("margin = %s, want 5050", p.MarginUsed)
	}
}

func TestFillReducesPosition(t *testing.T) {
	bal := domain.NewBalance()
	bal.Available = dec("4997.5")
	bal.MarginUsed = dec("5000")
	bal.Total = dec("4997.5")

	sell := marketOrder(2, domain.SideSell, "0.05", "51000")
	sell.FrozenAmount = decimal.Zero

	bal, pos := mustApply(t, bal, longPosition("0.1", "50000"),
		domain.FillOrder{Order: sell, FillPrice: dec("51000")},
	)

	p := pos["BTCUSDT"]
	if p == nil {
		t.Fatal("expected the position to survive a partial close")
	}
	if !p.Amount.Equal(dec("0.05")) {
		t.Errorf("amount = %s, want 0.05", p.Amount)
	}
	// Entry price of the remainder does not move on a reduce.
	if !p.EntryPrice.Equal(dec("50000")) {
		t.Errorf("entry price = %s, want 50000", p.EntryPrice)
	}
	// Realized: 0.05 * (51000 - 50000) = 50
	// Fee: 0.05 * 51000 * 0.0005 = 1.275
	// Margin released: 5000 - 2500 = 2500
	// Available: 4997.5 - 1.275 + 2500 + 50 = 7546.225
	if !bal.Available.Equal(dec("7546.225")) {
		t.Errorf("available = %s, want 7546.225", bal.Available)
	}
	if !bal.MarginUsed.Equal(dec("2500")) {
		t.Errorf("margin used = %s, want 2500", bal.MarginUsed)
	}
}

func TestFillClosesPosition(t *testing.T) {
	bal := domain.NewBalance()
	bal.Available = dec("4997.5")
	bal.MarginUsed = dec("5000")
	bal.Total = dec("4997.5")

	sell := marketOrder(2, domain.SideSell, "0.1", "51000")
	sell.FrozenAmount = decimal.Zero

	bal, pos := mustApply(t, bal, longPosition("0.1", "50000"),
		domain.FillOrder{Order: sell, FillPrice: dec("51000")},
	)

	if len(pos) != 0 {
		t.Fatalf("expected no position after full close, got %d", len(pos))
	}
	// Realized: 0.1 * 1000 = 100, fee 0.1 * 51000 * 0.0005 = 2.55
	// Available: 4997.5 - 2.55 + 5000 + 100 = 10094.95
	if !bal.Available.Equal(dec("10094.95")) {
		t.Errorf("available = %s, want 10094.95", bal.Available)
	}
	if !bal.MarginUsed.IsZero() {
		t.Errorf("margin used = %s, want 0", bal.MarginUsed)
	}
	if !bal.UnrealizedPnL.IsZero() {
		t.Errorf("unrealized = %s, want 0", bal.UnrealizedPnL)
	}
}

func TestFillReversesPosition(t *testing.T) {
	// Long 0.1 @ 50000, then a maker sell of 0.15 fills at 51000: the long
	// closes with +100 realized and a short 0.05 @ 51000 opens.
	bal := domain.NewBalance()
	bal.Available = dec("2447.5")
	bal.Frozen = dec("2550")
	bal.MarginUsed = dec("5000")
	bal.Total = dec("4997.5")

	sell := limitOrder(2, domain.SideSell, "0.15", "51000")
	sell.FrozenAmount = dec("2550")

	bal, pos := mustApply(t, bal, longPosition("0.1", "50000"),
		domain.FillOrder{Order: sell, FillPrice: dec("51000")},
	)

	p := pos["BTCUSDT"]
	if p == nil {
		t.Fatal("expected a reversed position")
	}
	if p.Side != domain.PositionShort {
		t.Errorf("side = %s, want short", p.Side)
	}
	if !p.Amount.Equal(dec("0.05")) {
		t.Errorf("amount = %s, want 0.05", p.Amount)
	}
	if !p.EntryPrice.Equal(dec("51000")) {
		t.Errorf("entry price = %s, want 51000", p.EntryPrice)
	}

	// Maker fee: 0.15 * 51000 * 0.0003 = 2.295
	// Unfreeze 2550, realized +100, margin 5000 -> 2550 releases 2450.
	// Available: 2447.5 + 2550 - 2.295 + 2450 + 100 = 7545.205
	if !bal.Available.Equal(dec("7545.205")) {
		t.Errorf("available = %s, want 7545.205", bal.Available)
	}
	if !bal.MarginUsed.Equal(dec("2550")) {
		t.Errorf("margin used = %s, want 2550", bal.MarginUsed)
	}
	if !bal.Frozen.IsZero() {
		t.Errorf("frozen = %s, want 0", bal.Frozen)
	}
}

func TestFeeDependsOnOrderKind(t *testing.T) {
	tests := []struct {
		name    string
		order   *domain.Order
		wantFee string
	}{
		// 0.1 * 50000 * 0.0005 = 2.5
		{"taker", marketOrder(1, domain.SideBuy, "0.1", "50000"), "2.5"},
		// 0.1 * 50000 * 0.0003 = 1.5
		{"maker", limitOrder(1, domain.SideBuy, "0.1", "50000"), "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bal := domain.NewBalance()
			tt.order.FrozenAmount = dec("5000")
			bal, _ = mustApply(t, bal, nil,
				domain.PlaceOrder{Order: tt.order},
				domain.FillOrder{Order: tt.order, FillPrice: dec("50000")},
			)
			if !bal.TotalFeesPaid.Equal(dec(tt.wantFee)) {
				t.Errorf("fees paid = %s, want %s", bal.TotalFeesPaid, tt.wantFee)
			}
		})
	}
}

func TestFeeChargedOnFillPriceNotOrderPrice(t *testing.T) {
	// A resting buy at 50000 can fill when the market trades through it; the
	// fee is still based on the executed price.
	bal := domain.NewBalance()
	order := limitOrder(1, domain.SideBuy, "0.1", "50000")
	order.FrozenAmount = dec("5000")

	bal, _ = mustApply(t, bal, nil,
		domain.PlaceOrder{Order: order},
		domain.FillOrder{Order: order, FillPrice: dec("49000")},
	)

	// 0.1 * 49000 * 0.0003 = 1.47
	if !bal.TotalFeesPaid.Equal(dec("1.47")) {
		t.Errorf("fees paid = %s, want 1.47", bal.TotalFeesPaid)
	}
}

func TestUpdatePriceMarksPositions(t *testing.T) {
	tests := []struct {
		name      string
		positions map[string]*domain.Position
		price     string
		want      string
	}{
		{"long in profit", longPosition("0.1", "50000"), "52000", "200"},
		{"long in loss", longPosition("0.1", "50000"), "49000", "-100"},
		{"short in profit", shortPosition("0.1", "50000"), "49000", "100"},
		{"short in loss", shortPosition("0.1", "50000"), "52000", "-200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bal := domain.NewBalance()
			bal, pos := mustApply(t, bal, tt.positions, domain.UpdatePrice{Price: dec(tt.price)})
			if !bal.UnrealizedPnL.Equal(dec(tt.want)) {
				t.Errorf("unrealized = %s, want %s", bal.UnrealizedPnL, tt.want)
			}
			if !pos["BTCUSDT"].UnrealizedPnL.Equal(dec(tt.want)) {
				t.Errorf("position unrealized = %s, want %s", pos["BTCUSDT"].UnrealizedPnL, tt.want)
			}
		})
	}
}

func TestFillRemarksStaleUnrealized(t *testing.T) {
	// The book was last marked at 52000 (+200 unrealized). Closing the whole
	// position at 51000 must clear that mark, not bank it twice.
	bal := domain.NewBalance()
	bal.Available = dec("4997.5")
	bal.MarginUsed = dec("5000")

	bal, pos := mustApply(t, bal, longPosition("0.1", "50000"),
		domain.UpdatePrice{Price: dec("52000")},
	)
	if !bal.UnrealizedPnL.Equal(dec("200")) {
		t.Fatalf("unrealized before close = %s, want 200", bal.UnrealizedPnL)
	}

	sell := marketOrder(2, domain.SideSell, "0.1", "51000")
	sell.FrozenAmount = decimal.Zero

	bal, pos = mustApply(t, bal, pos, domain.FillOrder{Order: sell, FillPrice: dec("51000")})

	if !bal.UnrealizedPnL.IsZero() {
		t.Errorf("unrealized after close = %s, want 0", bal.UnrealizedPnL)
	}
	if len(pos) != 0 {
		t.Errorf("expected empty position set, got %d", len(pos))
	}
}

func TestApplyDoesNotMutateInputs(t *testing.T) {
	positions := longPosition("0.1", "50000")
	before := *positions["BTCUSDT"]

	_, next, err := usecase.Apply(domain.NewBalance(), positions, domain.UpdatePrice{Price: dec("52000")})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if !positions["BTCUSDT"].UnrealizedPnL.Equal(before.UnrealizedPnL) {
		t.Error("input position was mutated")
	}
	if next["BTCUSDT"] == positions["BTCUSDT"] {
		t.Error("expected a cloned position, got the same pointer")
	}
}

func TestCashAccountingAcrossSequence(t *testing.T) {
	// Available + Frozen + MarginUsed must always equal the starting balance
	// minus fees plus realized profit, whatever the order flow was.
	bal := domain.NewBalance()

	buy := marketOrder(1, domain.SideBuy, "0.1", "50000")
	buy.FrozenAmount = dec("5000")
	sell := limitOrder(2, domain.SideSell, "0.15", "51000")
	sell.FrozenAmount = dec("2550")

	bal, _ = mustApply(t, bal, nil,
		domain.PlaceOrder{Order: buy},
		domain.FillOrder{Order: buy, FillPrice: dec("50000")},
		domain.PlaceOrder{Order: sell},
		domain.UpdatePrice{Price: dec("51000")},
		domain.FillOrder{Order: sell, FillPrice: dec("51000")},
	)

	// Fees: 2.5 taker + 2.295 maker. Realized: +100.
	cash := bal.Available.Add(bal.Frozen).Add(bal.MarginUsed)
	want := dec("10000").Sub(dec("2.5")).Sub(dec("2.295")).Add(dec("100"))
	if !cash.Equal(want) {
		t.Errorf("cash accounting = %s, want %s", cash, want)
	}
}
