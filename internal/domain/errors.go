package domain

import "errors"

// Rejections returned by the account controller. Every rejection is reported
// before any state mutation, so a failed request is never partially applied.
var (
	ErrUnsupportedMarket   = errors.New("unsupported market")
	ErrInvalidSide         = errors.New("invalid side")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidPrice        = errors.New("invalid price")
	ErrPriceUnavailable    = errors.New("price unavailable")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotCancellable = errors.New("order not cancellable")
)
