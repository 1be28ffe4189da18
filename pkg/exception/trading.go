package exception

import "errors"

// Trading errors. Rejections carry no state mutation: an order that
// fails with any of these leaves every balance untouched.
var (
	ErrInvalidPrice        = errors.New("trading: non-positive entry price")
	ErrInsufficientBalance = errors.New("trading: insufficient balance")
	ErrDuplicateTrade      = errors.New("trading: open trade already exists for market")
	ErrTradeSettled        = errors.New("trading: trade already settled")
	ErrTradeNotFound       = errors.New("trading: trade not found")
	ErrResolutionUnknown   = errors.New("trading: resolution outcome unknown")
	ErrTradingHalted       = errors.New("trading: trading halted")
)

// Collaborator errors, caught at the coordinator boundary.
var (
	ErrMissingOrderbook = errors.New("orderbook: side missing")
)
