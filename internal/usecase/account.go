package usecase

import (
	"sort"
	"sync"
	"time"

	"github.com/dkovalev/papertrade/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AccountService owns all mutable state of the simulated account: the last
// observed reference price, the order and position tables, the balance and
// the order-id counter. Every operation is one atomic
// validate-transition-commit step under the mutex, so a rejected request
// leaves no trace.
type AccountService struct {
	logger *zap.Logger
	market string

	mu        sync.Mutex
	lastPrice decimal.NullDecimal
	orders    map[int64]*domain.Order
	positions map[string]*domain.Position
	balance   domain.Balance
	nextID    int64
}

func NewAccountService(market string, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		logger:    logger,
		market:    market,
		orders:    make(map[int64]*domain.Order),
		positions: make(map[string]*domain.Position),
		balance:   domain.NewBalance(),
		nextID:    1,
	}
}

// Market returns the single symbol this account trades.
func (s *AccountService) Market() string {
	return s.market
}

// SubmitLimitOrder validates and places a limit order. When the current
// reference price already satisfies the limit condition the order fills
// immediately at its own limit price; otherwise it rests as pending.
func (s *AccountService) SubmitLimitOrder(market string, side domain.Side, amount, price decimal.Decimal, clientID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submit(market, side, domain.KindLimit, amount, price, clientID)
}

// SubmitMarketOrder validates and places a market order, filling it
// immediately at the current reference price.
func (s *AccountService) SubmitMarketOrder(market string, side domain.Side, amount decimal.Decimal, clientID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submit(market, side, domain.KindMarket, amount, decimal.Zero, clientID)
}

func (s *AccountService) submit(market string, side domain.Side, kind domain.OrderKind, amount, price decimal.Decimal, clientID string) (*domain.Order, error) {
	if market != s.market {
		return nil, domain.ErrUnsupportedMarket
	}
	if !side.Valid() {
		return nil, domain.ErrInvalidSide
	}
	if amount.LessThan(domain.MinOrderSize) {
		return nil, domain.ErrInvalidAmount
	}
	switch kind {
	case domain.KindLimit:
		if price.LessThanOrEqual(decimal.Zero) {
			return nil, domain.ErrInvalidPrice
		}
	case domain.KindMarket:
		if !s.lastPrice.Valid {
			return nil, domain.ErrPriceUnavailable
		}
		// Market orders execute at the reference price, never a user price.
		price = s.lastPrice.Decimal
	}

	now := time.Now()
	order := &domain.Order{
		Market:    market,
		Side:      side,
		Kind:      kind,
		Amount:    amount,
		Price:     price,
		Status:    domain.StatusPending,
		ClientID:  clientID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	required := RequiredMargin(order, s.positions)
	if s.balance.Available.LessThan(required) {
		return nil, domain.ErrInsufficientBalance
	}

	// Validation passed: the order is now real and consumes an id.
	order.ID = s.nextID
	s.nextID++
	order.FrozenAmount = required

	balance, positions, err := Apply(s.balance, s.positions, domain.PlaceOrder{Order: order})
	if err != nil {
		return nil, err
	}
	s.balance, s.positions = balance, positions
	s.orders[order.ID] = order

	s.logger.Info("order placed",
		zap.Int64("order_id", order.ID),
		zap.String("side", string(side)),
		zap.String("type", string(kind)),
		zap.String("amount", amount.String()),
		zap.String("price", price.String()),
		zap.String("frozen", required.String()),
	)

	switch kind {
	case domain.KindMarket:
		if err := s.fill(order, s.lastPrice.Decimal); err != nil {
			return nil, err
		}
	case domain.KindLimit:
		if s.lastPrice.Valid && limitSatisfied(order, s.lastPrice.Decimal) {
			// Marketable on arrival: fills at its own limit price.
			if err := s.fill(order, order.Price); err != nil {
				return nil, err
			}
		}
	}

	return snapshotOrder(order), nil
}

// CancelOrder cancels a pending order and returns its frozen balance.
func (s *AccountService) CancelOrder(id int64) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if order.Terminal() {
		return nil, domain.ErrOrderNotCancellable
	}

	balance, positions, err := Apply(s.balance, s.positions, domain.CancelOrder{Order: order})
	if err != nil {
		return nil, err
	}
	s.balance, s.positions = balance, positions

	order.Status = domain.StatusCancelled
	order.UpdatedAt = time.Now()

	s.logger.Info("order cancelled",
		zap.Int64("order_id", id),
		zap.String("unfrozen", order.FrozenAmount.String()),
	)
	return snapshotOrder(order), nil
}

// OnPriceUpdate records a reference-price observation, re-marks the account
// and fills every pending limit order the new price makes marketable, in
// ascending id order, each at its own limit price. Non-positive prices are
// dropped.
func (s *AccountService) OnPriceUpdate(price decimal.Decimal) {
	if price.LessThanOrEqual(decimal.Zero) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastPrice = decimal.NullDecimal{Decimal: price, Valid: true}

	balance, positions, err := Apply(s.balance, s.positions, domain.UpdatePrice{Price: price})
	if err != nil {
		s.logger.Error("price update failed", zap.Error(err))
		return
	}
	s.balance, s.positions = balance, positions

	filled := 0
	for _, order := range s.pendingByID() {
		if !limitSatisfied(order, price) {
			continue
		}
		if err := s.fill(order, order.Price); err != nil {
			s.logger.Error("fill failed", zap.Int64("order_id", order.ID), zap.Error(err))
			continue
		}
		filled++
	}

	if filled > 0 {
		// Fills mark the book at their own limit prices; put the mark back
		// on the observed price.
		balance, positions, err = Apply(s.balance, s.positions, domain.UpdatePrice{Price: price})
		if err == nil {
			s.balance, s.positions = balance, positions
		}
	}
}

// fill executes the order's full amount at fillPrice and commits the result.
func (s *AccountService) fill(order *domain.Order, fillPrice decimal.Decimal) error {
	balance, positions, err := Apply(s.balance, s.positions, domain.FillOrder{Order: order, FillPrice: fillPrice})
	if err != nil {
		return err
	}
	s.balance, s.positions = balance, positions

	order.Status = domain.StatusFilled
	order.FilledAmount = order.Amount
	order.AvgPrice = fillPrice
	order.FeeRate = domain.FeeRateFor(order.Kind)
	order.FeeAmount = fillFee(order, fillPrice)
	order.UpdatedAt = time.Now()

	s.logger.Info("order filled",
		zap.Int64("order_id", order.ID),
		zap.String("fill_price", fillPrice.String()),
		zap.String("fee", order.FeeAmount.String()),
	)
	return nil
}

// CurrentPrice returns the last observed reference price; Valid is false
// until the first observation arrives.
func (s *AccountService) CurrentPrice() decimal.NullDecimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPrice
}

// Orders returns a copy of every order the account has seen, oldest first.
func (s *AccountService) Orders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		orders = append(orders, *order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders
}

// Positions returns a copy of the open position set.
func (s *AccountService) Positions() []domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions := make([]domain.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		positions = append(positions, *pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Market < positions[j].Market })
	return positions
}

// Balance returns the ledger with MarginUsed, UnrealizedPnL and Total derived
// fresh from the live position set rather than trusted from the stored copy.
func (s *AccountService) Balance() domain.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := s.balance
	view.MarginUsed = totalMargin(s.positions)
	if s.lastPrice.Valid {
		unrealized := decimal.Zero
		for _, pos := range s.positions {
			unrealized = unrealized.Add(pos.MarkPnL(s.lastPrice.Decimal))
		}
		view.UnrealizedPnL = unrealized
	}
	view.Total = view.Available.Add(view.Frozen).Add(view.UnrealizedPnL)
	return view
}

// Reset restores the fixed starting state: empty order and position tables,
// the starting balance, the id counter back at 1. The last observed price is
// upstream market data, not account state, and survives.
func (s *AccountService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = make(map[int64]*domain.Order)
	s.positions = make(map[string]*domain.Position)
	s.balance = domain.NewBalance()
	s.nextID = 1

	s.logger.Info("account reset")
}

func (s *AccountService) pendingByID() []*domain.Order {
	var pending []*domain.Order
	for _, order := range s.orders {
		if order.Status == domain.StatusPending {
			pending = append(pending, order)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	return pending
}

// limitSatisfied reports whether price meets the order's limit condition:
// buys fill at or below the limit, sells at or above it.
func limitSatisfied(order *domain.Order, price decimal.Decimal) bool {
	if order.Side == domain.SideBuy {
		return price.LessThanOrEqual(order.Price)
	}
	return price.GreaterThanOrEqual(order.Price)
}

func snapshotOrder(order *domain.Order) *domain.Order {
	copied := *order
	return &copied
}
