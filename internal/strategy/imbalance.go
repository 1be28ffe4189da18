package strategy

import (
	"fmt"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
)

// OrderbookImbalance reads directional bias from the bid/ask volume
// ratio of the up-side book. A one-sided book (either volume zero)
// yields SKIP rather than a signal derived from a division by zero.
type OrderbookImbalance struct {
	threshold float64
}

func NewOrderbookImbalance(threshold float64) *OrderbookImbalance {
	return &OrderbookImbalance{threshold: threshold}
}

func (s *OrderbookImbalance) Name() string { return "OrderbookImbalance" }

func (s *OrderbookImbalance) Evaluate(in Input) model.Signal {
	bidVol := in.UpBook.BidVolume()
	askVol := in.UpBook.AskVolume()

	if bidVol == 0 || askVol == 0 {
		return model.Skip(s.Name(), fmt.Sprintf("one-sided book (bidVol=%.1f askVol=%.1f)", bidVol, askVol))
	}

	ratio := bidVol / askVol
	switch {
	case ratio >= s.threshold:
		return s.signal(enum.DirectionUp, clamp01((ratio-1)/2), ratio)
	case ratio <= 1/s.threshold:
		return s.signal(enum.DirectionDown, clamp01((1/ratio-1)/2), ratio)
	default:
		return model.Skip(s.Name(), fmt.Sprintf("no imbalance (ratio=%.2f)", ratio))
	}
}

func (s *OrderbookImbalance) signal(dir enum.Direction, confidence, ratio float64) model.Signal {
	kind := enum.SignalBuyUp
	if dir == enum.DirectionDown {
		kind = enum.SignalBuyDown
	}
	return model.Signal{
		Kind:       kind,
		Direction:  dir,
		Confidence: confidence,
		Source:     s.Name(),
		Reason:     fmt.Sprintf("bid/ask=%.2f threshold=%.2f", ratio, s.threshold),
		At:         time.Now().UTC(),
	}
}
