package strategy

import (
	"testing"

	"main/internal/model/enum"

	"github.com/stretchr/testify/assert"
)

func TestDirectionalShortHistorySkips(t *testing.T) {
	s := NewDirectional()
	sig := s.Evaluate(Input{PriceHistory: []float64{100, 101, 102}})
	assert.Equal(t, enum.SignalSkip, sig.Kind)
}

func TestDirectionalUptrend(t *testing.T) {
	s := NewDirectional()
	history := []float64{100, 101, 102, 103, 104, 105, 106, 108}
	sig := s.Evaluate(Input{PriceHistory: history})

	assert.Equal(t, enum.SignalBuyUp, sig.Kind)
	assert.Equal(t, enum.DirectionUp, sig.Direction)
	assert.Greater(t, sig.Confidence, 0.0)
	assert.LessOrEqual(t, sig.Confidence, 1.0)
}

func TestDirectionalDowntrend(t *testing.T) {
	s := NewDirectional()
	history := []float64{108, 107, 106, 105, 104, 103, 102, 100}
	sig := s.Evaluate(Input{PriceHistory: history})

	assert.Equal(t, enum.SignalBuyDown, sig.Kind)
	assert.Equal(t, enum.DirectionDown, sig.Direction)
}

func TestDirectionalMixedSignalsSkip(t *testing.T) {
	s := NewDirectional()
	// Positive momentum overall but the recent samples pull the fast
	// average below the slow one.
	history := []float64{100, 108, 108, 108, 108, 104, 103, 102}
	sig := s.Evaluate(Input{PriceHistory: history})
	assert.Equal(t, enum.SignalSkip, sig.Kind)
}

func TestDirectionalZeroStartPriceSkips(t *testing.T) {
	s := NewDirectional()
	history := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	sig := s.Evaluate(Input{PriceHistory: history})
	assert.Equal(t, enum.SignalSkip, sig.Kind)
}

func TestEMAConverges(t *testing.T) {
	flat := []float64{50, 50, 50, 50, 50, 50, 50, 50}
	assert.InDelta(t, 50.0, ema(flat, 3), 1e-9)
	assert.InDelta(t, 50.0, ema(flat, 8), 1e-9)
}
