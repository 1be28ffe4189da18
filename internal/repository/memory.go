package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"

	"github.com/yanun0323/errors"
)

var _ Repository = (*Memory)(nil)

// Memory is an in-process Repository for paper runs without a database
// and for tests. State is lost on restart.
type Memory struct {
	mu        sync.RWMutex
	trades    map[string]model.Trade
	markets   map[string]model.Market
	snapshots []model.PortfolioSnapshot
}

func NewMemory() *Memory {
	return &Memory{
		trades:  make(map[string]model.Trade),
		markets: make(map[string]model.Market),
	}
}

func (m *Memory) Init(ctx context.Context) error { return nil }

func (m *Memory) SaveTrade(ctx context.Context, trade model.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[trade.ID] = trade
	return nil
}

func (m *Memory) UpdateTradeSettled(ctx context.Context, tradeID string, pnl float64, settledAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	trade, ok := m.trades[tradeID]
	if !ok {
		return errors.Wrapf(exception.ErrTradeNotFound, "trade %s", tradeID)
	}
	if trade.Settled() {
		return exception.ErrTradeSettled
	}

	trade.Status = enum.TradeSettled
	trade.PnL = &pnl
	trade.SettledAt = &settledAt
	m.trades[tradeID] = trade
	return nil
}

func (m *Memory) OpenTrades(ctx context.Context) ([]model.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var open []model.Trade
	for _, trade := range m.trades {
		if !trade.Settled() {
			open = append(open, trade)
		}
	}
	sortByCreated(open)
	return open, nil
}

func (m *Memory) OpenTradesForMarket(ctx context.Context, marketID string) ([]model.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var open []model.Trade
	for _, trade := range m.trades {
		if trade.MarketID == marketID && !trade.Settled() {
			open = append(open, trade)
		}
	}
	sortByCreated(open)
	return open, nil
}

func (m *Memory) TradesSince(ctx context.Context, since time.Time) ([]model.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Trade
	for _, trade := range m.trades {
		if !trade.CreatedAt.Before(since) {
			out = append(out, trade)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (m *Memory) RecentTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Trade, 0, len(m.trades))
	for _, trade := range m.trades {
		out = append(out, trade)
	}
	sortByCreated(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SaveSnapshot(ctx context.Context, snap model.PortfolioSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *Memory) LatestSnapshot(ctx context.Context) (*model.PortfolioSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.snapshots) == 0 {
		return nil, nil
	}
	snap := m.snapshots[len(m.snapshots)-1]
	return &snap, nil
}

func (m *Memory) SaveMarket(ctx context.Context, mkt model.Market) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markets[mkt.ID] = mkt
	return nil
}

func (m *Memory) Market(ctx context.Context, marketID string) (*model.Market, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mkt, ok := m.markets[marketID]
	if !ok {
		return nil, nil
	}
	return &mkt, nil
}

func (m *Memory) Close() error { return nil }

func sortByCreated(trades []model.Trade) {
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].CreatedAt.Equal(trades[j].CreatedAt) {
			return trades[i].ID < trades[j].ID
		}
		return trades[i].CreatedAt.Before(trades[j].CreatedAt)
	})
}
