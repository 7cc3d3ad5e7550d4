package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dkovalev/papertrade/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Wire views. Money travels as decimal strings, timestamps as Unix seconds.

type orderView struct {
	ID           int64           `json:"id"`
	Market       string          `json:"market"`
	Side         string          `json:"side"`
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Price        decimal.Decimal `json:"price"`
	Status       string          `json:"status"`
	FilledAmount decimal.Decimal `json:"filled_amount"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	FrozenAmount decimal.Decimal `json:"frozen_amount"`
	FeeRate      decimal.Decimal `json:"fee_rate"`
	FeeAmount    decimal.Decimal `json:"fee_amount"`
	ClientID     string          `json:"client_id,omitempty"`
	CreatedAt    int64           `json:"created_at"`
	UpdatedAt    int64           `json:"updated_at"`
}

func newOrderView(o domain.Order) orderView {
	return orderView{
		ID:           o.ID,
		Market:       o.Market,
		Side:         string(o.Side),
		Type:         string(o.Kind),
		Amount:       o.Amount,
		Price:        o.Price,
		Status:       string(o.Status),
		FilledAmount: o.FilledAmount,
		AvgPrice:     o.AvgPrice,
		FrozenAmount: o.FrozenAmount,
		FeeRate:      o.FeeRate,
		FeeAmount:    o.FeeAmount,
		ClientID:     o.ClientID,
		CreatedAt:    o.CreatedAt.Unix(),
		UpdatedAt:    o.UpdatedAt.Unix(),
	}
}

type positionView struct {
	Market        string          `json:"market"`
	Side          string          `json:"side"`
	Amount        decimal.Decimal `json:"amount"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	MarginUsed    decimal.Decimal `json:"margin_used"`
	Leverage      int             `json:"leverage"`
	CreatedAt     int64           `json:"created_at"`
	UpdatedAt     int64           `json:"updated_at"`
}

func newPositionView(p domain.Position) positionView {
	return positionView{
		Market:        p.Market,
		Side:          string(p.Side),
		Amount:        p.Amount,
		EntryPrice:    p.EntryPrice,
		UnrealizedPnL: p.UnrealizedPnL,
		MarginUsed:    p.MarginUsed,
		Leverage:      p.Leverage,
		CreatedAt:     p.CreatedAt.Unix(),
		UpdatedAt:     p.UpdatedAt.Unix(),
	}
}

type balanceView struct {
	Available     decimal.Decimal `json:"available"`
	Frozen        decimal.Decimal `json:"frozen"`
	MarginUsed    decimal.Decimal `json:"margin_used"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Total         decimal.Decimal `json:"total"`
	TotalFeesPaid decimal.Decimal `json:"total_fees_paid"`
}

func newBalanceView(b domain.Balance) balanceView {
	return balanceView{
		Available:     b.Available,
		Frozen:        b.Frozen,
		MarginUsed:    b.MarginUsed,
		UnrealizedPnL: b.UnrealizedPnL,
		Total:         b.Total,
		TotalFeesPaid: b.TotalFeesPaid,
	}
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Market    string              `json:"market"`
		Balance   balanceView         `json:"balance"`
		LastPrice decimal.NullDecimal `json:"last_price"`
	}{
		Market:    s.account.Market(),
		Balance:   newBalanceView(s.account.Balance()),
		LastPrice: s.account.CurrentPrice(),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type createOrderRequest struct {
	Market   string          `json:"market"`
	Side     string          `json:"side"`
	Type     string          `json:"type"`
	Amount   decimal.Decimal `json:"amount"`
	Price    decimal.Decimal `json:"price"`
	ClientID string          `json:"client_id"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var (
		order *domain.Order
		err   error
	)
	switch domain.OrderKind(req.Type) {
	case domain.KindLimit:
		order, err = s.account.SubmitLimitOrder(req.Market, domain.Side(req.Side), req.Amount, req.Price, req.ClientID)
	case domain.KindMarket:
		order, err = s.account.SubmitMarketOrder(req.Market, domain.Side(req.Side), req.Amount, req.ClientID)
	default:
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "type must be limit or market"})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, newOrderView(*order))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.account.Orders()
	// Newest first on the wire.
	for i, j := 0, len(orders)-1; i < j; i, j = i+1, j-1 {
		orders[i], orders[j] = orders[j], orders[i]
	}

	limit, offset := paginate(r, len(orders))
	end := offset + limit
	if end > len(orders) {
		end = len(orders)
	}

	views := make([]orderView, 0, end-offset)
	for _, o := range orders[offset:end] {
		views = append(views, newOrderView(o))
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": views,
		"total":  len(orders),
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}

	order, err := s.account.CancelOrder(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, newOrderView(*order))
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions := s.account.Positions()

	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, newPositionView(p))
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": views,
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	// A missing price is state, not an error: the feed has not delivered yet.
	s.writeJSON(w, http.StatusOK, struct {
		Market string              `json:"market"`
		Price  decimal.NullDecimal `json:"price"`
	}{
		Market: s.account.Market(),
		Price:  s.account.CurrentPrice(),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.account.Reset()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func paginate(r *http.Request, total int) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	return limit, offset
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrOrderNotCancellable):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnsupportedMarket),
		errors.Is(err, domain.ErrInvalidSide),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrPriceUnavailable),
		errors.Is(err, domain.ErrInsufficientBalance):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
