// Package repository persists trades, markets, and portfolio snapshots.
//
// Writes are idempotent where the coordinator may replay them: saving a
// trade twice upserts, settling a settled trade is rejected. The ledger
// is append-only; trades are never deleted.
package repository

import (
	"context"
	"time"

	"main/internal/model"
)

type Repository interface {
	// Init prepares the backing store (schema migration for SQL
	// backends, no-op for memory).
	Init(ctx context.Context) error

	// SaveTrade inserts or replaces a trade by ID.
	SaveTrade(ctx context.Context, trade model.Trade) error

	// UpdateTradeSettled moves an open trade to settled, recording its
	// pnl. Settling an already settled trade is an error so replays
	// surface instead of double-counting.
	UpdateTradeSettled(ctx context.Context, tradeID string, pnl float64, settledAt time.Time) error

	OpenTrades(ctx context.Context) ([]model.Trade, error)
	OpenTradesForMarket(ctx context.Context, marketID string) ([]model.Trade, error)

	// TradesSince returns trades created at or after the given time,
	// oldest first.
	TradesSince(ctx context.Context, since time.Time) ([]model.Trade, error)

	// RecentTrades returns up to limit trades, newest first.
	RecentTrades(ctx context.Context, limit int) ([]model.Trade, error)

	SaveSnapshot(ctx context.Context, snap model.PortfolioSnapshot) error

	// LatestSnapshot returns the most recent snapshot, or nil when the
	// store is empty.
	LatestSnapshot(ctx context.Context) (*model.PortfolioSnapshot, error)

	// SaveMarket records a discovered market for audit.
	SaveMarket(ctx context.Context, mkt model.Market) error

	// Market returns a persisted market by ID, or nil when unknown.
	Market(ctx context.Context, marketID string) (*model.Market, error)

	Close() error
}
