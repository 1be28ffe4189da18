// Package engine prices, sizes, and books simulated orders against an
// authoritative balance.
package engine

import (
	"context"

	"main/internal/model"
	"main/internal/model/enum"
)

// Engine is the execution surface the coordinator drives. The paper
// variant simulates fills; a live variant would route real orders.
type Engine interface {
	// ExecuteOrder prices and books an order for the signal. A nil
	// trade with nil error means the signal was not actionable.
	ExecuteOrder(ctx context.Context, sig model.Signal, mkt model.Market, upBook, downBook model.OrderBook) (*model.Trade, error)

	// ResolutionPayout values a trade under a resolved outcome without
	// touching the balance. Settlement is two-phase: the caller
	// persists the result first, then lands the payout with Credit, so
	// a failed write can retry without paying twice.
	ResolutionPayout(trade model.Trade, outcome enum.Outcome) (float64, error)

	// Credit adds funds to the balance: a settled payout, or a debit
	// handed back after a rejected booking.
	Credit(amount float64)

	Balance() float64
	RestoreBalance(balance float64)
	Topup(amount float64)
}
