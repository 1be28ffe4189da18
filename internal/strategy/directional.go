package strategy

import (
	"fmt"
	"math"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
)

const (
	_fastPeriod = 3
	_slowPeriod = 8
)

// Directional emits a signal when window momentum and the EMA(3)/EMA(8)
// crossover agree on a direction.
type Directional struct{}

func NewDirectional() *Directional { return &Directional{} }

func (s *Directional) Name() string { return "Directional" }

func (s *Directional) Evaluate(in Input) model.Signal {
	history := in.PriceHistory
	if len(history) < _slowPeriod {
		return model.Skip(s.Name(), fmt.Sprintf("insufficient price history (%d points)", len(history)))
	}

	start, end := history[0], history[len(history)-1]
	if start == 0 {
		return model.Skip(s.Name(), "zero start price")
	}
	momentum := (end - start) / start

	fast := ema(history, _fastPeriod)
	slow := ema(history, _slowPeriod)
	if slow == 0 {
		return model.Skip(s.Name(), "zero slow average")
	}
	// Separation normalized by the slow average so confidence is
	// comparable across price scales.
	emaDiff := (fast - slow) / slow

	switch {
	case momentum > 0 && emaDiff > 0:
		return s.signal(enum.DirectionUp, momentum, emaDiff)
	case momentum < 0 && emaDiff < 0:
		return s.signal(enum.DirectionDown, momentum, emaDiff)
	default:
		return model.Skip(s.Name(), fmt.Sprintf("no crossover agreement (momentum=%.4f emaDiff=%.4f)", momentum, emaDiff))
	}
}

func (s *Directional) signal(dir enum.Direction, momentum, emaDiff float64) model.Signal {
	kind := enum.SignalBuyUp
	if dir == enum.DirectionDown {
		kind = enum.SignalBuyDown
	}
	return model.Signal{
		Kind:       kind,
		Direction:  dir,
		Confidence: clamp01(math.Abs(momentum) + math.Abs(emaDiff)),
		Source:     s.Name(),
		Reason:     fmt.Sprintf("momentum=%.4f emaDiff=%.4f", momentum, emaDiff),
		At:         time.Now().UTC(),
	}
}

// ema returns the final value of an exponential moving average seeded
// with the first sample, k = 2/(period+1).
func ema(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	k := 2.0 / float64(period+1)
	current := values[0]
	for _, v := range values[1:] {
		current = v*k + current*(1-k)
	}
	return current
}
