package model

import "time"

// PortfolioSnapshot is the persisted portfolio state. The latest row is
// the sole source of truth for restoration at startup.
type PortfolioSnapshot struct {
	Balance     float64
	PeakBalance float64
	TotalTrades int
	Wins        int
	Losses      int
	TotalPnL    float64
	MaxDrawdown float64

	// DailyLoss is the realized loss accumulated during DailyLossDay
	// (a calendar date in the configured trading timezone).
	DailyLoss    float64
	DailyLossDay string

	At time.Time
}

// WinRate returns wins over settled trades, zero when nothing settled.
func (s PortfolioSnapshot) WinRate() float64 {
	total := s.Wins + s.Losses
	if total == 0 {
		return 0
	}
	return float64(s.Wins) / float64(total)
}
