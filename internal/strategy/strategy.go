// Package strategy turns market observations into trade signals.
package strategy

import "main/internal/model"

// Input bundles the read-only observations one evaluation consumes.
type Input struct {
	Market       model.Market
	UpBook       model.OrderBook
	DownBook     model.OrderBook
	PriceHistory []float64
}

// Strategy evaluates one market on one tick. Implementations are pure
// over their inputs and never mutate shared state, so they are safe to
// run concurrently.
type Strategy interface {
	Name() string
	Evaluate(in Input) model.Signal
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
