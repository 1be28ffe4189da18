// Package portfolio tracks the authoritative paper balance, settlement
// ledger, and the risk circuit breaker.
package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"main/internal/model"
	"main/internal/ops"
	"main/internal/repository"
	"main/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Trading days roll over on the Korea Standard Time calendar date.
var tradingDayZone = time.FixedZone("KST", 9*60*60)

// Ledger owns the portfolio state. Every mutation happens under one
// mutex so a trade debit and its breaker evaluation are a single step.
type Ledger struct {
	mu   sync.Mutex
	repo repository.Repository
	risk ops.RiskConfig

	balance     float64
	peak        float64
	totalPnL    float64
	maxDrawdown float64
	totalTrades int
	wins        int
	losses      int

	dailyLoss    float64
	dailyLossDay string

	manualHalt     bool
	breakerTripped bool
	breakerReason  string
}

func NewLedger(repo repository.Repository, risk ops.RiskConfig) *Ledger {
	return &Ledger{
		repo:    repo,
		risk:    risk,
		balance: risk.InitialCapital,
		peak:    risk.InitialCapital,
	}
}

// Restore loads the latest persisted snapshot, if any. Returns the
// restored balance and whether a snapshot was found.
func (l *Ledger) Restore(ctx context.Context) (float64, bool, error) {
	snap, err := l.repo.LatestSnapshot(ctx)
	if err != nil {
		return 0, false, errors.Wrap(err, "load latest snapshot")
	}
	if snap == nil {
		return l.Balance(), false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = snap.Balance
	l.peak = snap.PeakBalance
	l.totalTrades = snap.TotalTrades
	l.wins = snap.Wins
	l.losses = snap.Losses
	l.totalPnL = snap.TotalPnL
	l.maxDrawdown = snap.MaxDrawdown
	l.dailyLoss = snap.DailyLoss
	l.dailyLossDay = snap.DailyLossDay
	l.evaluateBreakerLocked(time.Now())

	logs.Infof("portfolio restored: balance=%.2f peak=%.2f trades=%d", l.balance, l.peak, l.totalTrades)
	return l.balance, true, nil
}

// RecordTrade books a freshly executed trade: debits the stake and fee,
// persists the trade, and re-evaluates the breaker. The coordinator
// gates entries already; the checks here are the hard invariant.
func (l *Ledger) RecordTrade(ctx context.Context, trade model.Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.manualHalt || l.breakerTripped {
		return exception.ErrTradingHalted
	}

	open, err := l.repo.OpenTradesForMarket(ctx, trade.MarketID)
	if err != nil {
		return errors.Wrap(err, "check open trades")
	}
	if len(open) > 0 {
		return exception.ErrDuplicateTrade
	}

	if err := l.repo.SaveTrade(ctx, trade); err != nil {
		return errors.Wrap(err, "persist trade")
	}

	l.balance -= trade.Amount + trade.Fee
	l.totalTrades++
	l.evaluateBreakerLocked(trade.CreatedAt)
	return nil
}

// HandleResolution settles a trade against its market outcome. The
// payout has already been credited to the execution engine; here it
// lands in the ledger and the pnl is realized. Settling a trade that is
// already settled is a no-op so replays cannot double-count.
func (l *Ledger) HandleResolution(ctx context.Context, trade model.Trade, payout float64, settledAt time.Time) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if trade.Settled() {
		return 0, nil
	}

	pnl := payout - trade.Amount - trade.Fee
	if err := l.repo.UpdateTradeSettled(ctx, trade.ID, pnl, settledAt); err != nil {
		return 0, errors.Wrap(err, "persist settlement")
	}

	l.balance += payout
	if l.balance > l.peak {
		l.peak = l.balance
	}
	l.totalPnL += pnl
	if pnl > 0 {
		l.wins++
	} else {
		l.losses++
	}

	l.rollTradingDayLocked(settledAt)
	if pnl < 0 {
		l.dailyLoss += -pnl
	}

	l.evaluateBreakerLocked(settledAt)
	return pnl, nil
}

// Halted reports whether trading is paused and why. Manual halts and
// the breaker are independent latches; either one blocks new entries.
func (l *Ledger) Halted() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.manualHalt:
		return true, "manual halt"
	case l.breakerTripped:
		return true, l.breakerReason
	default:
		return false, ""
	}
}

// Pause sets the manual halt latch.
func (l *Ledger) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.manualHalt = true
	logs.Info("trading manually paused")
}

// Resume clears the manual halt only. A tripped breaker stays tripped
// until its limits clear; use TryResetBreaker for that.
func (l *Ledger) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.manualHalt = false
	logs.Info("manual halt cleared")
}

// TryResetBreaker re-evaluates the breaker limits against the current
// state and clears the latch only when neither limit is still breached.
func (l *Ledger) TryResetBreaker() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.breakerTripped {
		return true
	}

	l.rollTradingDayLocked(time.Now())
	if tripped, _ := l.breachedLocked(); tripped {
		return false
	}

	l.breakerTripped = false
	l.breakerReason = ""
	logs.Info("circuit breaker reset")
	return true
}

// Topup credits extra paper capital.
func (l *Ledger) Topup(amount float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balance += amount
	if l.balance > l.peak {
		l.peak = l.balance
	}
	logs.Infof("portfolio topped up: +%.2f -> balance=%.2f", amount, l.balance)
	return l.balance
}

func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Stats returns a point-in-time copy of the portfolio state.
func (l *Ledger) Stats() model.PortfolioSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked(time.Now().UTC())
}

// Snapshot persists the current state as the newest restoration point.
func (l *Ledger) Snapshot(ctx context.Context) error {
	l.mu.Lock()
	snap := l.snapshotLocked(time.Now().UTC())
	l.mu.Unlock()

	return l.repo.SaveSnapshot(ctx, snap)
}

func (l *Ledger) snapshotLocked(at time.Time) model.PortfolioSnapshot {
	return model.PortfolioSnapshot{
		Balance:      l.balance,
		PeakBalance:  l.peak,
		TotalTrades:  l.totalTrades,
		Wins:         l.wins,
		Losses:       l.losses,
		TotalPnL:     l.totalPnL,
		MaxDrawdown:  l.maxDrawdown,
		DailyLoss:    l.dailyLoss,
		DailyLossDay: l.dailyLossDay,
		At:           at,
	}
}

// rollTradingDayLocked resets the daily loss accumulator when the KST
// calendar date has advanced.
func (l *Ledger) rollTradingDayLocked(at time.Time) {
	day := at.In(tradingDayZone).Format(time.DateOnly)
	if day != l.dailyLossDay {
		l.dailyLossDay = day
		l.dailyLoss = 0
	}
}

// drawdownLocked is the live decline from the balance peak, not the
// historical maximum.
func (l *Ledger) drawdownLocked() float64 {
	if l.peak <= 0 {
		return 0
	}
	return (l.peak - l.balance) / l.peak
}

func (l *Ledger) breachedLocked() (bool, string) {
	if dd := l.drawdownLocked(); dd >= l.risk.MaxDrawdownLimit {
		return true, fmt.Sprintf("drawdown %.1f%% reached limit %.1f%%", dd*100, l.risk.MaxDrawdownLimit*100)
	}
	if l.dailyLoss >= l.risk.MaxDailyLoss {
		return true, fmt.Sprintf("daily loss %.2f reached limit %.2f", l.dailyLoss, l.risk.MaxDailyLoss)
	}
	return false, ""
}

func (l *Ledger) evaluateBreakerLocked(at time.Time) {
	if dd := l.drawdownLocked(); dd > l.maxDrawdown {
		l.maxDrawdown = dd
	}
	if l.breakerTripped {
		return
	}
	if tripped, reason := l.breachedLocked(); tripped {
		l.breakerTripped = true
		l.breakerReason = reason
		logs.Errorf("circuit breaker tripped: %s", reason)
	}
}

// BreakerTripped reports the breaker latch alone, for status reporting.
func (l *Ledger) BreakerTripped() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.breakerTripped, l.breakerReason
}
