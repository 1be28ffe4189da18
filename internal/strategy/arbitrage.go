package strategy

import (
	"fmt"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
)

// Arbitrage fires when buying both sides costs less than the guaranteed
// $1 payout after fees on both legs.
type Arbitrage struct {
	feeRate   float64
	minProfit float64
}

func NewArbitrage(feeRate, minProfit float64) *Arbitrage {
	return &Arbitrage{feeRate: feeRate, minProfit: minProfit}
}

func (s *Arbitrage) Name() string { return "Arbitrage" }

func (s *Arbitrage) Evaluate(in Input) model.Signal {
	upAsk, upOK := in.UpBook.BestAsk()
	downAsk, downOK := in.DownBook.BestAsk()
	if !upOK || !downOK {
		return model.Skip(s.Name(), "missing best ask on one side")
	}

	combined := upAsk + downAsk
	rawProfit := 1.0 - combined
	feeEstimate := s.feeRate * combined * 2
	netProfit := rawProfit - feeEstimate

	if netProfit < s.minProfit {
		return model.Skip(s.Name(), fmt.Sprintf("no arbitrage (cost=%.4f net=%.4f)", combined, netProfit))
	}

	// The signal carries the real down-side ask so execution sizes the
	// down leg at its actual price, not the 1-upAsk estimate.
	downLeg := downAsk
	return model.Signal{
		Kind:       enum.SignalArbitrage,
		Confidence: clamp01(netProfit / 0.05),
		Source:     s.Name(),
		Reason:     fmt.Sprintf("upAsk=%.4f downAsk=%.4f net=%.4f", upAsk, downAsk, netProfit),
		At:         time.Now().UTC(),
		ArbDownAsk: &downLeg,
	}
}
