package engine

import (
	"context"
	"sync"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/ops"
	"main/pkg/exception"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

var _ Engine = (*Paper)(nil)

// Paper simulates execution: fills at best ask plus slippage, charges a
// taker fee, and debits an in-memory balance. Rejections never mutate
// the balance.
type Paper struct {
	mu      sync.Mutex
	balance float64
	cfg     ops.TradingConfig
}

func NewPaper(cfg ops.TradingConfig, initialBalance float64) *Paper {
	return &Paper{balance: initialBalance, cfg: cfg}
}

func (e *Paper) Balance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

func (e *Paper) RestoreBalance(balance float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	logs.Infof("restored engine balance: %.2f -> %.2f", e.balance, balance)
	e.balance = balance
}

func (e *Paper) Topup(amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balance += amount
	logs.Infof("paper engine topped up: +%.2f -> balance=%.2f", amount, e.balance)
}

func (e *Paper) ExecuteOrder(ctx context.Context, sig model.Signal, mkt model.Market, upBook, downBook model.OrderBook) (*model.Trade, error) {
	switch sig.Kind {
	case enum.SignalBuyUp, enum.SignalBuyDown:
		return e.executeDirectional(sig, mkt, upBook, downBook)
	case enum.SignalArbitrage:
		return e.executeArbitrage(sig, mkt, upBook, downBook)
	default:
		return nil, nil
	}
}

func (e *Paper) executeDirectional(sig model.Signal, mkt model.Market, upBook, downBook model.OrderBook) (*model.Trade, error) {
	book, tokenID, side := upBook, mkt.UpTokenID, enum.DirectionUp
	if sig.Kind == enum.SignalBuyDown {
		book, tokenID, side = downBook, mkt.DownTokenID, enum.DirectionDown
	}

	ask, ok := book.BestAsk()
	if !ok {
		return nil, errors.Wrap(exception.ErrMissingOrderbook, "directional entry").With("market", mkt.Slug)
	}
	if ask <= 0 {
		return nil, errors.Wrapf(exception.ErrInvalidPrice, "ask=%.4f", ask)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	amount, err := e.sizeLocked(sig.Confidence)
	if err != nil {
		return nil, err
	}
	fee := amount * e.cfg.FeeRate
	if amount+fee > e.balance {
		return nil, errors.Wrapf(exception.ErrInsufficientBalance, "need %.2f, have %.2f", amount+fee, e.balance)
	}
	e.balance -= amount + fee

	trade := &model.Trade{
		ID:        tradeID(),
		MarketID:  mkt.ID,
		TokenID:   tokenID,
		Kind:      sig.Kind,
		Side:      side,
		Amount:    amount,
		Price:     e.fillPrice(ask),
		Fee:       fee,
		Status:    enum.TradeOpen,
		Reason:    sig.Reason,
		CreatedAt: time.Now().UTC(),
	}
	logs.Infof("paper trade %s: %s %.2f @ %.4f (fee %.2f) balance=%.2f",
		trade.ID, side, amount, trade.Price, fee, e.balance)
	return trade, nil
}

func (e *Paper) executeArbitrage(sig model.Signal, mkt model.Market, upBook, downBook model.OrderBook) (*model.Trade, error) {
	upAsk, ok := upBook.BestAsk()
	if !ok {
		return nil, errors.Wrap(exception.ErrMissingOrderbook, "arbitrage up leg").With("market", mkt.Slug)
	}

	// The signal's down ask is the real counter-side price. A value of
	// 0.0 is present and must be validated, not replaced.
	var downAsk float64
	if sig.ArbDownAsk != nil {
		downAsk = *sig.ArbDownAsk
	} else {
		var found bool
		downAsk, found = downBook.BestAsk()
		if !found {
			return nil, errors.Wrap(exception.ErrMissingOrderbook, "arbitrage down leg").With("market", mkt.Slug)
		}
	}

	if upAsk <= 0 {
		return nil, errors.Wrapf(exception.ErrInvalidPrice, "up leg ask=%.4f", upAsk)
	}
	if downAsk <= 0 {
		return nil, errors.Wrapf(exception.ErrInvalidPrice, "down leg ask=%.4f", downAsk)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	amount, err := e.sizeLocked(sig.Confidence)
	if err != nil {
		return nil, err
	}
	fee := amount * e.cfg.FeeRate
	if amount+fee > e.balance {
		return nil, errors.Wrapf(exception.ErrInsufficientBalance, "need %.2f, have %.2f", amount+fee, e.balance)
	}
	e.balance -= amount + fee

	downFill := e.fillPrice(downAsk)
	trade := &model.Trade{
		ID:        tradeID(),
		MarketID:  mkt.ID,
		TokenID:   mkt.UpTokenID,
		Kind:      enum.SignalArbitrage,
		Side:      enum.DirectionUp,
		Amount:    amount,
		Price:     e.fillPrice(upAsk),
		AltPrice:  &downFill,
		Fee:       fee,
		Status:    enum.TradeOpen,
		Reason:    sig.Reason,
		CreatedAt: time.Now().UTC(),
	}
	logs.Infof("paper arb %s: both sides %.2f total (up %.4f / down %.4f, fee %.2f) balance=%.2f",
		trade.ID, amount, trade.Price, downFill, fee, e.balance)
	return trade, nil
}

func (e *Paper) ResolutionPayout(trade model.Trade, outcome enum.Outcome) (float64, error) {
	if trade.Settled() {
		return 0, exception.ErrTradeSettled
	}
	if !outcome.IsAvailable() {
		return 0, exception.ErrResolutionUnknown
	}
	return resolutionPayout(trade, outcome), nil
}

func (e *Paper) Credit(amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balance += amount
}

// resolutionPayout values a trade at $1 per winning share.
func resolutionPayout(trade model.Trade, outcome enum.Outcome) float64 {
	if trade.Kind == enum.SignalArbitrage {
		half := trade.Amount / 2
		legPrice := trade.Price
		if outcome == enum.OutcomeDown {
			// AltPrice is always recorded on arbitrage trades; a 0.0
			// leg simply holds no shares.
			legPrice = 0
			if trade.AltPrice != nil {
				legPrice = *trade.AltPrice
			}
		}
		if legPrice <= 0 {
			return 0
		}
		return half / legPrice
	}

	if !outcome.Matches(trade.Side) || trade.Price <= 0 {
		return 0
	}
	return trade.Amount / trade.Price
}

// sizeLocked computes the stake for one order. Percent mode scales the
// balance fraction by confidence mapped linearly onto [0.5, 1.0].
func (e *Paper) sizeLocked(confidence float64) (float64, error) {
	if e.cfg.SizingMode != ops.SizingPercent {
		amount := e.cfg.BetSize
		if amount > e.cfg.MaxBetSize {
			amount = e.cfg.MaxBetSize
		}
		return amount, nil
	}

	scale := confidenceScale(confidence, e.cfg.ConfidenceThreshold)
	amount := e.balance * e.cfg.PositionSizePct * scale
	if amount > e.cfg.MaxBetSize {
		amount = e.cfg.MaxBetSize
	}
	if amount < e.cfg.MinBetSize {
		// Raise to the floor rather than silently dropping the order;
		// the balance check afterwards rejects what the floor cannot
		// afford.
		amount = e.cfg.MinBetSize
	}
	return amount, nil
}

func confidenceScale(confidence, threshold float64) float64 {
	if threshold >= 1 {
		return 1
	}
	scale := 0.5 + 0.5*(confidence-threshold)/(1-threshold)
	if scale < 0.5 {
		return 0.5
	}
	if scale > 1 {
		return 1
	}
	return scale
}

// fillPrice applies slippage and caps at the $1 payout ceiling.
func (e *Paper) fillPrice(ask float64) float64 {
	price := ask * (1 + e.cfg.SlippageRate)
	if price > 1.0 {
		return 1.0
	}
	return price
}

func tradeID() string {
	return uuid.NewString()
}
