// Package trader runs the trading loop: discover markets, settle
// resolved trades, enforce the circuit breaker, and place new entries.
package trader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"main/internal/engine"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/portfolio"
	"main/internal/repository"
	"main/internal/strategy"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Entries need at least this many closes before momentum means anything.
const _minPriceHistory = 3

// A market whose books fail this many ticks in a row is evicted.
const _maxBookFailures = 3

// MarketSource discovers and tracks the short-lived markets.
type MarketSource interface {
	ScanOnce(ctx context.Context) ([]model.Market, error)
	// Probe re-tracks a single slot slug outside the regular scan
	// window.
	Probe(ctx context.Context, slug string) error
	Evict(marketID string)
}

// BookSource reads both outcome-token books for a market.
type BookSource interface {
	FetchPair(ctx context.Context, upTokenID, downTokenID string) (up, down model.OrderBook, err error)
}

// PriceSource provides the rolling BTC close window.
type PriceSource interface {
	History() []float64
}

// Notifier delivers operator alerts. Implementations must not block.
type Notifier interface {
	Notify(text string)
}

type Trader struct {
	cfg      ops.Config
	engine   engine.Engine
	ledger   *portfolio.Ledger
	repo     repository.Repository
	markets  MarketSource
	books    BookSource
	prices   PriceSource
	notifier Notifier

	ensemble  strategy.Strategy
	arbitrage strategy.Strategy

	ticking      atomic.Bool
	bookFailures map[string]int
	haltNotified bool
	healthPath   string
}

func New(
	cfg ops.Config,
	eng engine.Engine,
	ledger *portfolio.Ledger,
	repo repository.Repository,
	markets MarketSource,
	books BookSource,
	prices PriceSource,
	notifier Notifier,
	ensemble strategy.Strategy,
	arbitrage strategy.Strategy,
) *Trader {
	return &Trader{
		cfg:          cfg,
		engine:       eng,
		ledger:       ledger,
		repo:         repo,
		markets:      markets,
		books:        books,
		prices:       prices,
		notifier:     notifier,
		ensemble:     ensemble,
		arbitrage:    arbitrage,
		bookFailures: make(map[string]int),
		healthPath:   cfg.Loop.HealthFile,
	}
}

// Run restores persisted state and drives the tick loop until the
// context is done.
func (t *Trader) Run(ctx context.Context) error {
	balance, restored, err := t.ledger.Restore(ctx)
	if err != nil {
		return errors.Wrap(err, "restore portfolio")
	}
	if restored {
		t.engine.RestoreBalance(balance)
	}
	if err := t.reconcileOpenTrades(ctx); err != nil {
		logs.Errorf("reconcile open trades: %v", err)
	}

	if dir := filepath.Dir(t.healthPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create health dir")
		}
	}

	go t.dailySummaryLoop(ctx)

	ticker := time.NewTicker(t.cfg.ScanInterval())
	defer ticker.Stop()

	t.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			// Final snapshot on a fresh context; the loop's is gone.
			t.persistState(context.Background())
			return nil
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

// tick is one pass of the loop. Re-entry is refused so a slow pass
// cannot overlap the next one.
func (t *Trader) tick(ctx context.Context) {
	if !t.ticking.CompareAndSwap(false, true) {
		obs.TicksSkipped.Inc()
		logs.Info("previous tick still running, skipping")
		return
	}
	defer t.ticking.Store(false)

	started := time.Now()
	defer func() { obs.TickDuration.Observe(time.Since(started).Seconds()) }()

	t.touchHealthFile()

	markets, err := t.markets.ScanOnce(ctx)
	if err != nil {
		obs.FetchFailures.WithLabelValues("scanner").Inc()
		logs.Errorf("market scan failed: %v", err)
		return
	}

	for _, mkt := range markets {
		if err := t.repo.SaveMarket(ctx, mkt); err != nil {
			logs.Errorf("persist market %s: %v", mkt.Slug, err)
		}
	}

	// Settlement always runs, halted or not: held positions must be
	// released even while new entries are blocked.
	t.settle(ctx, markets)

	if halted := t.checkHalt(); halted {
		t.persistState(ctx)
		return
	}

	history := t.prices.History()
	if len(history) < _minPriceHistory {
		logs.Infof("price history warming up: %d/%d closes", len(history), _minPriceHistory)
		t.persistState(ctx)
		return
	}

	for _, mkt := range markets {
		if mkt.Status != enum.MarketActive {
			continue
		}
		t.evaluateMarket(ctx, mkt, history)
	}

	t.persistState(ctx)
}

// reconcileOpenTrades re-tracks every market that still holds an open
// trade, so positions persisted before a restart settle once their
// market resolves even after the slot fell out of the scan window.
func (t *Trader) reconcileOpenTrades(ctx context.Context) error {
	open, err := t.repo.OpenTrades(ctx)
	if err != nil {
		return errors.Wrap(err, "list open trades")
	}

	for _, trade := range open {
		mkt, err := t.repo.Market(ctx, trade.MarketID)
		if err != nil {
			logs.Errorf("load market %s: %v", trade.MarketID, err)
			continue
		}
		if mkt == nil {
			logs.Errorf("open trade %s has no persisted market %s", trade.ID, trade.MarketID)
			continue
		}
		if err := t.markets.Probe(ctx, mkt.Slug); err != nil {
			logs.Errorf("re-track %s: %v", mkt.Slug, err)
		}
	}
	return nil
}

func (t *Trader) evaluateMarket(ctx context.Context, mkt model.Market, history []float64) {
	// The tick-level halt gate ran before any booking; an earlier
	// booking in this same pass may have tripped the breaker since.
	if halted, _ := t.ledger.Halted(); halted {
		return
	}

	open, err := t.repo.OpenTradesForMarket(ctx, mkt.ID)
	if err != nil {
		logs.Errorf("load open trades for %s: %v", mkt.Slug, err)
		return
	}
	if len(open) > 0 {
		return
	}

	upBook, downBook, err := t.books.FetchPair(ctx, mkt.UpTokenID, mkt.DownTokenID)
	if err != nil {
		obs.FetchFailures.WithLabelValues("orderbook").Inc()
		t.bookFailures[mkt.ID]++
		logs.Errorf("fetch books for %s (%d/%d): %v", mkt.Slug, t.bookFailures[mkt.ID], _maxBookFailures, err)
		if t.bookFailures[mkt.ID] >= _maxBookFailures {
			logs.Errorf("evicting %s after repeated book failures", mkt.Slug)
			t.markets.Evict(mkt.ID)
			delete(t.bookFailures, mkt.ID)
		}
		return
	}
	delete(t.bookFailures, mkt.ID)

	in := strategy.Input{
		Market:       mkt,
		UpBook:       upBook,
		DownBook:     downBook,
		PriceHistory: history,
	}

	sig := t.ensemble.Evaluate(in)
	if !sig.Kind.IsTradable() {
		// Arbitrage is the fallback edge when the directional vote
		// stands down.
		sig = t.arbitrage.Evaluate(in)
	}
	if !sig.Kind.IsTradable() {
		return
	}

	// Every signal, arbitrage included, passes the same gates.
	if sig.Confidence < t.cfg.Trading.ConfidenceThreshold {
		return
	}
	if !t.entryPriceOK(sig, upBook, downBook) {
		return
	}

	trade, err := t.engine.ExecuteOrder(ctx, sig, mkt, upBook, downBook)
	if err != nil {
		logs.Errorf("execute %s on %s: %v", sig.Kind, mkt.Slug, err)
		return
	}
	if trade == nil {
		return
	}

	if err := t.ledger.RecordTrade(ctx, *trade); err != nil {
		// The engine debited at execution; hand the stake back so the
		// two balances stay reconciled.
		t.engine.Credit(trade.Amount + trade.Fee)
		logs.Errorf("record trade %s: %v", trade.ID, err)
		return
	}

	obs.TradesExecuted.WithLabelValues(trade.Kind.String()).Inc()
	logs.Infof("entered %s on %s: amount=%.2f price=%.4f (%s)",
		trade.Kind, mkt.Slug, trade.Amount, trade.Price, sig.Reason)
	t.notifier.Notify(fmt.Sprintf("📈 %s %s\namount: %.2f @ %.4f\n%s",
		trade.Kind, mkt.Question, trade.Amount, trade.Price, sig.Reason))
}

// entryPriceOK rejects entries priced above the configured ceiling,
// where the remaining upside no longer covers the fee drag. Directional
// entries check their own side; arbitrage checks the up leg.
func (t *Trader) entryPriceOK(sig model.Signal, upBook, downBook model.OrderBook) bool {
	book := upBook
	if sig.Kind == enum.SignalBuyDown {
		book = downBook
	}
	ask, ok := book.BestAsk()
	return ok && ask <= t.cfg.Trading.MaxEntryPrice
}

// settle releases every open trade whose market has resolved. Markets
// with an unknown resolution keep their trades open for a later pass.
func (t *Trader) settle(ctx context.Context, markets []model.Market) {
	now := time.Now().UTC()
	for _, mkt := range markets {
		if mkt.Status != enum.MarketResolved {
			continue
		}

		open, err := t.repo.OpenTradesForMarket(ctx, mkt.ID)
		if err != nil {
			logs.Errorf("load open trades for %s: %v", mkt.Slug, err)
			continue
		}

		settledAll := true
		for _, trade := range open {
			payout, err := t.engine.ResolutionPayout(trade, mkt.Outcome)
			if err != nil {
				settledAll = false
				logs.Errorf("value payout for %s: %v", trade.ID, err)
				continue
			}

			// Persist before crediting: a failed write leaves the trade
			// open and retries next tick without paying twice.
			pnl, err := t.ledger.HandleResolution(ctx, trade, payout, now)
			if err != nil {
				settledAll = false
				logs.Errorf("settle trade %s: %v", trade.ID, err)
				continue
			}
			t.engine.Credit(payout)

			result := "loss"
			if pnl > 0 {
				result = "win"
			}
			obs.TradesSettled.WithLabelValues(result).Inc()
			logs.Infof("settled %s on %s: outcome=%s payout=%.2f pnl=%+.2f",
				trade.ID, mkt.Slug, mkt.Outcome, payout, pnl)
			t.notifier.Notify(fmt.Sprintf("🏁 %s resolved %s\npayout: %.2f pnl: %+.2f",
				mkt.Question, mkt.Outcome, payout, pnl))
		}

		if settledAll {
			t.markets.Evict(mkt.ID)
			delete(t.bookFailures, mkt.ID)
		}
	}
}

// checkHalt reads the halt latch and notifies once per transition.
func (t *Trader) checkHalt() bool {
	halted, reason := t.ledger.Halted()
	if halted && !t.haltNotified {
		t.haltNotified = true
		if tripped, _ := t.ledger.BreakerTripped(); tripped {
			obs.BreakerTrips.Inc()
		}
		logs.Errorf("trading halted: %s", reason)
		t.notifier.Notify("🛑 trading halted: " + reason)
	}
	if !halted {
		t.haltNotified = false
	}
	return halted
}

func (t *Trader) persistState(ctx context.Context) {
	obs.PortfolioBalance.Set(t.ledger.Balance())
	if err := t.ledger.Snapshot(ctx); err != nil {
		logs.Errorf("persist snapshot: %v", err)
	}
}

func (t *Trader) touchHealthFile() {
	stamp := strconv.FormatInt(time.Now().Unix(), 10)
	if err := os.WriteFile(t.healthPath, []byte(stamp), 0o644); err != nil {
		logs.Errorf("touch health file: %v", err)
	}
}

// dailySummaryLoop sends a recap of the last day's trades at 15:00 UTC.
func (t *Trader) dailySummaryLoop(ctx context.Context) {
	for {
		wait := untilNextSummary(time.Now().UTC())
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			t.sendDailySummary(ctx)
		}
	}
}

func untilNextSummary(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 15, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

func (t *Trader) sendDailySummary(ctx context.Context) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	trades, err := t.repo.TradesSince(ctx, since)
	if err != nil {
		logs.Errorf("load trades for summary: %v", err)
		return
	}

	var wins, losses int
	var pnl float64
	for _, trade := range trades {
		if trade.PnL == nil {
			continue
		}
		pnl += *trade.PnL
		if *trade.PnL > 0 {
			wins++
		} else {
			losses++
		}
	}

	stats := t.ledger.Stats()
	t.notifier.Notify(fmt.Sprintf(
		"📊 daily summary\ntrades: %d (W%d/L%d)\npnl: %+.2f\nbalance: %.2f\nmax drawdown: %.1f%%",
		len(trades), wins, losses, pnl, stats.Balance, stats.MaxDrawdown*100,
	))
}
