package trader

import (
	"fmt"

	"main/internal/notify"
)

var _ notify.Commands = (*Trader)(nil)

// Stop halts new entries. Open trades still settle.
func (t *Trader) Stop() string {
	t.ledger.Pause()
	return "trading halted; open trades will still settle"
}

// Resume clears the manual halt. A tripped breaker is asked to re-check
// its limits but stays latched while they are still breached.
func (t *Trader) Resume() string {
	t.ledger.Resume()
	if !t.ledger.TryResetBreaker() {
		_, reason := t.ledger.BreakerTripped()
		return "manual halt cleared, but breaker still tripped: " + reason
	}
	return "trading resumed"
}

// Status reports the portfolio at a glance.
func (t *Trader) Status() string {
	stats := t.ledger.Stats()
	halted, reason := t.ledger.Halted()

	state := "running"
	if halted {
		state = "halted: " + reason
	}
	return fmt.Sprintf(
		"state: %s\nbalance: %.2f (peak %.2f)\ntrades: %d (W%d/L%d, %.0f%%)\npnl: %+.2f\ndaily loss: %.2f\nmax drawdown: %.1f%%",
		state, stats.Balance, stats.PeakBalance,
		stats.TotalTrades, stats.Wins, stats.Losses, stats.WinRate()*100,
		stats.TotalPnL, stats.DailyLoss, stats.MaxDrawdown*100,
	)
}

// Topup credits paper capital to both the ledger and the engine so the
// two balances stay reconciled.
func (t *Trader) Topup(amount float64) string {
	balance := t.ledger.Topup(amount)
	t.engine.Topup(amount)
	return fmt.Sprintf("topped up %.2f, balance now %.2f", amount, balance)
}
