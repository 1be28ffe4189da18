package trader

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"main/internal/engine"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/ops"
	"main/internal/portfolio"
	"main/internal/repository"
	"main/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMarkets struct {
	markets []model.Market
	known   map[string]model.Market
	scanErr error
	evicted []string
	probed  []string
}

func (s *stubMarkets) ScanOnce(ctx context.Context) ([]model.Market, error) {
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	return s.markets, nil
}

func (s *stubMarkets) Probe(ctx context.Context, slug string) error {
	s.probed = append(s.probed, slug)
	if mkt, ok := s.known[slug]; ok {
		s.markets = append(s.markets, mkt)
	}
	return nil
}

func (s *stubMarkets) Evict(marketID string) {
	s.evicted = append(s.evicted, marketID)
	kept := s.markets[:0]
	for _, mkt := range s.markets {
		if mkt.ID != marketID {
			kept = append(kept, mkt)
		}
	}
	s.markets = kept
}

type stubBooks struct {
	up, down model.OrderBook
	err      error
	calls    int
}

func (s *stubBooks) FetchPair(ctx context.Context, upTokenID, downTokenID string) (model.OrderBook, model.OrderBook, error) {
	s.calls++
	if s.err != nil {
		return model.OrderBook{}, model.OrderBook{}, s.err
	}
	return s.up, s.down, nil
}

type stubPrices struct{ history []float64 }

func (s stubPrices) History() []float64 { return s.history }

type stubNotifier struct{ messages []string }

func (s *stubNotifier) Notify(text string) { s.messages = append(s.messages, text) }

type fixedStrategy struct {
	name string
	sig  model.Signal
}

func (s fixedStrategy) Name() string                         { return s.name }
func (s fixedStrategy) Evaluate(strategy.Input) model.Signal { return s.sig }

// failingRepo injects write failures around an in-memory store.
type failingRepo struct {
	*repository.Memory
	saveTradeErr   error
	settleFailures int
}

func (r *failingRepo) SaveTrade(ctx context.Context, trade model.Trade) error {
	if r.saveTradeErr != nil {
		return r.saveTradeErr
	}
	return r.Memory.SaveTrade(ctx, trade)
}

func (r *failingRepo) UpdateTradeSettled(ctx context.Context, tradeID string, pnl float64, settledAt time.Time) error {
	if r.settleFailures > 0 {
		r.settleFailures--
		return assert.AnError
	}
	return r.Memory.UpdateTradeSettled(ctx, tradeID, pnl, settledAt)
}

type harness struct {
	trader   *Trader
	engine   *engine.Paper
	ledger   *portfolio.Ledger
	repo     repository.Repository
	markets  *stubMarkets
	books    *stubBooks
	notifier *stubNotifier
}

func activeMarket(id string) model.Market {
	return model.Market{
		ID:          id,
		Slug:        "btc-updown-5m-1756000000",
		Question:    "Bitcoin Up or Down?",
		Status:      enum.MarketActive,
		UpTokenID:   "tok-up-" + id,
		DownTokenID: "tok-down-" + id,
		EndTime:     time.Now().UTC().Add(5 * time.Minute),
	}
}

func askBook(price float64) model.OrderBook {
	return model.OrderBook{
		Bids: []model.BookLevel{{Price: price - 0.02, Size: 500}},
		Asks: []model.BookLevel{{Price: price, Size: 500}},
	}
}

func buyUpSignal(confidence float64) model.Signal {
	return model.Signal{
		Kind:       enum.SignalBuyUp,
		Direction:  enum.DirectionUp,
		Confidence: confidence,
		Source:     "test",
		Reason:     "test signal",
	}
}

func defaultCfg(t *testing.T) ops.Config {
	t.Helper()

	return ops.Config{
		Trading: ops.TradingConfig{
			ConfidenceThreshold: 0.6,
			MaxEntryPrice:       0.70,
			SizingMode:          ops.SizingFixed,
			BetSize:             10,
			MinBetSize:          1,
			MaxBetSize:          50,
			FeeRate:             0.01,
			SlippageRate:        0.005,
		},
		Risk: ops.RiskConfig{InitialCapital: 1000, MaxDrawdownLimit: 0.2, MaxDailyLoss: 50},
		Loop: ops.LoopConfig{ScanIntervalSec: 30, HealthFile: filepath.Join(t.TempDir(), "health")},
	}
}

func newHarness(t *testing.T, ensembleSig, arbSig model.Signal, markets ...model.Market) *harness {
	return newHarnessCfg(t, defaultCfg(t), repository.NewMemory(), ensembleSig, arbSig, markets...)
}

func newHarnessCfg(t *testing.T, cfg ops.Config, repo repository.Repository, ensembleSig, arbSig model.Signal, markets ...model.Market) *harness {
	t.Helper()

	eng := engine.NewPaper(cfg.Trading, cfg.Risk.InitialCapital)
	ledger := portfolio.NewLedger(repo, cfg.Risk)
	ms := &stubMarkets{markets: markets}
	books := &stubBooks{up: askBook(0.52), down: askBook(0.50)}
	notifier := &stubNotifier{}

	tr := New(cfg, eng, ledger, repo, ms, books, stubPrices{history: []float64{100, 101, 102}}, notifier,
		fixedStrategy{name: "ensemble", sig: ensembleSig},
		fixedStrategy{name: "arb", sig: arbSig},
	)
	return &harness{trader: tr, engine: eng, ledger: ledger, repo: repo, markets: ms, books: books, notifier: notifier}
}

func TestTickEntersOneTradePerMarket(t *testing.T) {
	h := newHarness(t, buyUpSignal(0.9), model.Skip("arb", "no edge"), activeMarket("m1"))
	ctx := context.Background()

	h.trader.tick(ctx)

	open, err := h.repo.OpenTradesForMarket(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, enum.SignalBuyUp, open[0].Kind)
	assert.InDelta(t, 1000-10.10, h.ledger.Balance(), 1e-9)
	assert.NotEmpty(t, h.notifier.messages)

	// A second tick sees the open trade and stands down.
	h.trader.tick(ctx)
	open, err = h.repo.OpenTradesForMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, open, 1)
	assert.InDelta(t, 1000-10.10, h.ledger.Balance(), 1e-9)
}

func TestTickSkipsLowConfidence(t *testing.T) {
	h := newHarness(t, buyUpSignal(0.5), model.Skip("arb", "no edge"), activeMarket("m1"))
	h.trader.tick(context.Background())

	open, err := h.repo.OpenTrades(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestTickSkipsExpensiveEntry(t *testing.T) {
	h := newHarness(t, buyUpSignal(0.9), model.Skip("arb", "no edge"), activeMarket("m1"))
	h.books.up = askBook(0.75) // above the 0.70 ceiling

	h.trader.tick(context.Background())

	open, err := h.repo.OpenTrades(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestTickFallsBackToArbitrage(t *testing.T) {
	downAsk := 0.50
	arbSig := model.Signal{
		Kind:       enum.SignalArbitrage,
		Confidence: 0.9,
		Source:     "arb",
		Reason:     "books sum below a dollar",
		ArbDownAsk: &downAsk,
	}
	h := newHarness(t, model.Skip("ensemble", "disagreement"), arbSig, activeMarket("m1"))
	h.books.up = askBook(0.45)

	h.trader.tick(context.Background())

	open, err := h.repo.OpenTrades(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, enum.SignalArbitrage, open[0].Kind)
}

func TestArbitrageBelowThresholdSkips(t *testing.T) {
	downAsk := 0.50
	arbSig := model.Signal{
		Kind:       enum.SignalArbitrage,
		Confidence: 0.2,
		Source:     "arb",
		Reason:     "thin edge",
		ArbDownAsk: &downAsk,
	}
	h := newHarness(t, model.Skip("ensemble", "disagreement"), arbSig, activeMarket("m1"))
	h.books.up = askBook(0.45)

	h.trader.tick(context.Background())

	open, err := h.repo.OpenTrades(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestArbitrageExpensiveUpLegSkips(t *testing.T) {
	downAsk := 0.20
	arbSig := model.Signal{
		Kind:       enum.SignalArbitrage,
		Confidence: 0.9,
		Source:     "arb",
		Reason:     "books sum below a dollar",
		ArbDownAsk: &downAsk,
	}
	h := newHarness(t, model.Skip("ensemble", "disagreement"), arbSig, activeMarket("m1"))
	h.books.up = askBook(0.75) // above the 0.70 ceiling

	h.trader.tick(context.Background())

	open, err := h.repo.OpenTrades(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestTickSettlesResolvedMarket(t *testing.T) {
	resolved := activeMarket("m1")
	resolved.Status = enum.MarketResolved
	resolved.Outcome = enum.OutcomeUp

	h := newHarness(t, model.Skip("ensemble", "idle"), model.Skip("arb", "idle"), resolved)
	ctx := context.Background()

	trade := model.Trade{
		ID: "t1", MarketID: "m1", TokenID: "tok-up-m1",
		Kind: enum.SignalBuyUp, Side: enum.DirectionUp,
		Amount: 10, Price: 0.5, Fee: 0.10,
		Status: enum.TradeOpen, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.ledger.RecordTrade(ctx, trade))
	engineBalance := h.engine.Balance()

	h.trader.tick(ctx)

	open, err := h.repo.OpenTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	// Winning payout: 10 / 0.5 = 20 shares at $1.
	assert.InDelta(t, 1000-10.10+20, h.ledger.Balance(), 1e-9)
	assert.InDelta(t, engineBalance+20, h.engine.Balance(), 1e-9)
	assert.Contains(t, h.markets.evicted, "m1")
}

func TestMidTickBreakerTripKeepsBalancesReconciled(t *testing.T) {
	cfg := defaultCfg(t)
	cfg.Trading.BetSize = 30
	cfg.Risk.MaxDrawdownLimit = 0.02
	h := newHarnessCfg(t, cfg, repository.NewMemory(), buyUpSignal(0.9), model.Skip("arb", "idle"),
		activeMarket("m1"), activeMarket("m2"))
	ctx := context.Background()

	h.trader.tick(ctx)

	// The first booking's 30.30 debit breaches the 2% drawdown limit,
	// so the second market must not execute.
	open, err := h.repo.OpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	halted, _ := h.ledger.Halted()
	assert.True(t, halted)
	assert.InDelta(t, 969.70, h.ledger.Balance(), 1e-9)
	assert.InDelta(t, h.ledger.Balance(), h.engine.Balance(), 1e-9)
}

func TestRecordFailureRefundsEngine(t *testing.T) {
	repo := &failingRepo{Memory: repository.NewMemory(), saveTradeErr: assert.AnError}
	h := newHarnessCfg(t, defaultCfg(t), repo, buyUpSignal(0.9), model.Skip("arb", "idle"), activeMarket("m1"))
	ctx := context.Background()

	h.trader.tick(ctx)

	open, err := h.repo.OpenTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.InDelta(t, 1000.0, h.engine.Balance(), 1e-9)
	assert.InDelta(t, 1000.0, h.ledger.Balance(), 1e-9)
}

func TestSettleRetriesAfterPersistFailure(t *testing.T) {
	resolved := activeMarket("m1")
	resolved.Status = enum.MarketResolved
	resolved.Outcome = enum.OutcomeUp

	repo := &failingRepo{Memory: repository.NewMemory(), settleFailures: 1}
	h := newHarnessCfg(t, defaultCfg(t), repo, model.Skip("ensemble", "idle"), model.Skip("arb", "idle"), resolved)
	ctx := context.Background()

	trade := model.Trade{
		ID: "t1", MarketID: "m1", TokenID: "tok-up-m1",
		Kind: enum.SignalBuyUp, Side: enum.DirectionUp,
		Amount: 10, Price: 0.5, Fee: 0.10,
		Status: enum.TradeOpen, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.ledger.RecordTrade(ctx, trade))
	engineBalance := h.engine.Balance()

	// The settlement write fails: nothing is credited, the trade stays
	// open, and the market is kept for a retry.
	h.trader.tick(ctx)
	assert.InDelta(t, engineBalance, h.engine.Balance(), 1e-9)
	open, err := h.repo.OpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Empty(t, h.markets.evicted)

	// The retry credits the payout exactly once.
	h.trader.tick(ctx)
	assert.InDelta(t, engineBalance+20, h.engine.Balance(), 1e-9)
	assert.InDelta(t, 1000-10.10+20, h.ledger.Balance(), 1e-9)
	assert.Contains(t, h.markets.evicted, "m1")
}

func TestReconcileOpenTradesRetracksMarket(t *testing.T) {
	resolved := activeMarket("m1")
	resolved.Status = enum.MarketResolved
	resolved.Outcome = enum.OutcomeUp

	h := newHarness(t, model.Skip("ensemble", "idle"), model.Skip("arb", "idle"))
	ctx := context.Background()

	// State from a previous run: the trade stayed open while its
	// market's slot fell out of the scan window.
	require.NoError(t, h.repo.SaveMarket(ctx, resolved))
	trade := model.Trade{
		ID: "t1", MarketID: "m1", TokenID: "tok-up-m1",
		Kind: enum.SignalBuyUp, Side: enum.DirectionUp,
		Amount: 10, Price: 0.5, Fee: 0.10,
		Status: enum.TradeOpen, CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, h.ledger.RecordTrade(ctx, trade))
	h.markets.known = map[string]model.Market{resolved.Slug: resolved}

	require.NoError(t, h.trader.reconcileOpenTrades(ctx))
	assert.Contains(t, h.markets.probed, resolved.Slug)

	h.trader.tick(ctx)

	open, err := h.repo.OpenTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.InDelta(t, 1000-10.10+20, h.ledger.Balance(), 1e-9)
}

func TestUnknownResolutionHoldsTrade(t *testing.T) {
	unknown := activeMarket("m1")
	unknown.Status = enum.MarketResolutionUnknown

	h := newHarness(t, model.Skip("ensemble", "idle"), model.Skip("arb", "idle"), unknown)
	ctx := context.Background()

	trade := model.Trade{
		ID: "t1", MarketID: "m1", TokenID: "tok-up-m1",
		Kind: enum.SignalBuyUp, Side: enum.DirectionUp,
		Amount: 10, Price: 0.5, Fee: 0.10,
		Status: enum.TradeOpen, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.ledger.RecordTrade(ctx, trade))
	balance := h.ledger.Balance()

	h.trader.tick(ctx)

	open, err := h.repo.OpenTrades(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
	assert.InDelta(t, balance, h.ledger.Balance(), 1e-9)
	assert.Empty(t, h.markets.evicted)
}

func TestManualHaltBlocksEntriesButSettles(t *testing.T) {
	resolved := activeMarket("m-done")
	resolved.Status = enum.MarketResolved
	resolved.Outcome = enum.OutcomeDown

	h := newHarness(t, buyUpSignal(0.9), model.Skip("arb", "idle"), resolved, activeMarket("m-live"))
	ctx := context.Background()

	trade := model.Trade{
		ID: "t1", MarketID: "m-done", TokenID: "tok-up-m-done",
		Kind: enum.SignalBuyUp, Side: enum.DirectionUp,
		Amount: 10, Price: 0.5, Fee: 0.10,
		Status: enum.TradeOpen, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.ledger.RecordTrade(ctx, trade))

	h.ledger.Pause()
	h.trader.tick(ctx)

	// The losing trade settled while the halt blocked new entries.
	open, err := h.repo.OpenTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	fresh, err := h.repo.OpenTradesForMarket(ctx, "m-live")
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestWarmupBlocksEntries(t *testing.T) {
	h := newHarness(t, buyUpSignal(0.9), model.Skip("arb", "idle"), activeMarket("m1"))
	h.trader.prices = stubPrices{history: []float64{100, 101}}

	h.trader.tick(context.Background())

	open, err := h.repo.OpenTrades(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestRepeatedBookFailuresEvict(t *testing.T) {
	h := newHarness(t, buyUpSignal(0.9), model.Skip("arb", "idle"), activeMarket("m1"))
	h.books.err = context.DeadlineExceeded
	ctx := context.Background()

	h.trader.tick(ctx)
	h.trader.tick(ctx)
	assert.Empty(t, h.markets.evicted)

	h.trader.tick(ctx)
	assert.Contains(t, h.markets.evicted, "m1")
}

func TestCommands(t *testing.T) {
	h := newHarness(t, model.Skip("ensemble", "idle"), model.Skip("arb", "idle"))

	assert.Contains(t, h.trader.Stop(), "halted")
	halted, _ := h.ledger.Halted()
	assert.True(t, halted)

	assert.Equal(t, "trading resumed", h.trader.Resume())
	halted, _ = h.ledger.Halted()
	assert.False(t, halted)

	status := h.trader.Status()
	assert.Contains(t, status, "balance: 1000.00")
	assert.Contains(t, status, "state: running")

	reply := h.trader.Topup(50)
	assert.Contains(t, reply, "1050.00")
	assert.InDelta(t, 1050.0, h.ledger.Balance(), 1e-9)
	assert.InDelta(t, 1050.0, h.engine.Balance(), 1e-9)
}

func TestTickNonReentrant(t *testing.T) {
	h := newHarness(t, buyUpSignal(0.9), model.Skip("arb", "idle"), activeMarket("m1"))

	h.trader.ticking.Store(true)
	h.trader.tick(context.Background())

	open, err := h.repo.OpenTrades(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
	h.trader.ticking.Store(false)
}

func TestUntilNextSummary(t *testing.T) {
	before := time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Hour, untilNextSummary(before))

	after := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	assert.Equal(t, 23*time.Hour, untilNextSummary(after))
}
