package model

import (
	"time"

	"main/internal/model/enum"
)

// Trade is a booked simulated order. Created by the execution engine,
// mutated exactly once by settlement (Open -> Settled), never deleted.
type Trade struct {
	ID       string
	MarketID string
	TokenID  string
	Kind     enum.SignalKind
	Side     enum.Direction

	// Amount is the committed stake. For arbitrage trades it is the
	// combined stake of both legs, split evenly.
	Amount float64

	// Price is the effective entry price (up leg for arbitrage).
	Price float64

	// AltPrice is the effective down-leg price for arbitrage trades.
	// Nil on directional trades; a pointer to 0.0 is a present price
	// and must never be replaced by a derived estimate.
	AltPrice *float64

	Fee    float64
	Status enum.TradeStatus
	Reason string

	// PnL is populated at settlement only.
	PnL       *float64
	CreatedAt time.Time
	SettledAt *time.Time
}

// Settled reports whether the trade has already been through settlement.
func (t Trade) Settled() bool {
	return t.Status == enum.TradeSettled
}
