package model

import (
	"time"

	"main/internal/model/enum"
)

// Signal is one strategy's verdict for a single evaluation cycle.
type Signal struct {
	Kind       enum.SignalKind
	Direction  enum.Direction
	Confidence float64
	Source     string
	Reason     string
	At         time.Time

	// ArbDownAsk carries the real down-side best ask for arbitrage
	// signals so execution can size the down leg at its actual price
	// instead of assuming 1 - upAsk. Nil means absent; a pointer to
	// 0.0 is a present, valid price.
	ArbDownAsk *float64
}

// Skip builds a SKIP signal with the given source and reason.
func Skip(source, reason string) Signal {
	return Signal{
		Kind:   enum.SignalSkip,
		Source: source,
		Reason: reason,
		At:     time.Now().UTC(),
	}
}
