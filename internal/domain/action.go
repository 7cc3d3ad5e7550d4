package domain

import "github.com/shopspring/decimal"

// Action is the closed set of operations the transition engine accepts.
// The unexported marker keeps the union sealed to this package.
type Action interface {
	isAction()
}

// PlaceOrder freezes the order's margin requirement.
type PlaceOrder struct {
	Order *Order
}

// CancelOrder releases the order's recorded frozen amount.
type CancelOrder struct {
	Order *Order
}

// FillOrder executes the order's entire amount at FillPrice.
type FillOrder struct {
	Order     *Order
	FillPrice decimal.Decimal
}

// UpdatePrice re-marks open positions at a new reference price.
type UpdatePrice struct {
	Price decimal.Decimal
}

func (PlaceOrder) isAction()  {}
func (CancelOrder) isAction() {}
func (FillOrder) isAction()   {}
func (UpdatePrice) isAction() {}
