package repository

import (
	"context"
	stderrors "errors"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/ops"
	"main/pkg/conn"
	"main/pkg/exception"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ Repository = (*Postgres)(nil)

// Postgres persists the ledger through gorm. Rows are flat mirrors of
// the model types so the models stay free of persistence tags.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(cfg ops.DatabaseConfig) (*Postgres, error) {
	db, err := conn.OpenPostgres(conn.PostgresOption{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	return &Postgres{db: db}, nil
}

type tradeRow struct {
	ID        string `gorm:"primaryKey"`
	MarketID  string `gorm:"index"`
	TokenID   string
	Kind      uint8
	Side      uint8
	Amount    float64
	Price     float64
	AltPrice  *float64
	Fee       float64
	Status    uint8 `gorm:"index"`
	Reason    string
	PnL       *float64  `gorm:"column:pnl"`
	CreatedAt time.Time `gorm:"index"`
	SettledAt *time.Time
}

func (tradeRow) TableName() string { return "trades" }

type snapshotRow struct {
	ID           uint `gorm:"primaryKey;autoIncrement"`
	Balance      float64
	PeakBalance  float64
	TotalTrades  int
	Wins         int
	Losses       int
	TotalPnL     float64
	MaxDrawdown  float64
	DailyLoss    float64
	DailyLossDay string
	At           time.Time `gorm:"index"`
}

func (snapshotRow) TableName() string { return "portfolio_snapshots" }

type marketRow struct {
	ID          string `gorm:"primaryKey"`
	Slug        string `gorm:"index"`
	Question    string
	Status      uint8
	UpTokenID   string
	DownTokenID string
	EndTime     time.Time
	Outcome     uint8
}

func (marketRow) TableName() string { return "markets" }

func (p *Postgres) Init(ctx context.Context) error {
	return p.db.WithContext(ctx).AutoMigrate(&tradeRow{}, &snapshotRow{}, &marketRow{})
}

func (p *Postgres) SaveTrade(ctx context.Context, trade model.Trade) error {
	row := toTradeRow(trade)
	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}

func (p *Postgres) UpdateTradeSettled(ctx context.Context, tradeID string, pnl float64, settledAt time.Time) error {
	res := p.db.WithContext(ctx).
		Model(&tradeRow{}).
		Where("id = ? AND status = ?", tradeID, uint8(enum.TradeOpen)).
		Updates(map[string]any{
			"status":     uint8(enum.TradeSettled),
			"pnl":        pnl,
			"settled_at": settledAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := p.db.WithContext(ctx).Model(&tradeRow{}).Where("id = ?", tradeID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errors.Wrapf(exception.ErrTradeNotFound, "trade %s", tradeID)
		}
		return exception.ErrTradeSettled
	}
	return nil
}

func (p *Postgres) OpenTrades(ctx context.Context) ([]model.Trade, error) {
	var rows []tradeRow
	err := p.db.WithContext(ctx).
		Where("status = ?", uint8(enum.TradeOpen)).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return fromTradeRows(rows), nil
}

func (p *Postgres) OpenTradesForMarket(ctx context.Context, marketID string) ([]model.Trade, error) {
	var rows []tradeRow
	err := p.db.WithContext(ctx).
		Where("market_id = ? AND status = ?", marketID, uint8(enum.TradeOpen)).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return fromTradeRows(rows), nil
}

func (p *Postgres) TradesSince(ctx context.Context, since time.Time) ([]model.Trade, error) {
	var rows []tradeRow
	err := p.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return fromTradeRows(rows), nil
}

func (p *Postgres) RecentTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	var rows []tradeRow
	q := p.db.WithContext(ctx).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromTradeRows(rows), nil
}

func (p *Postgres) SaveSnapshot(ctx context.Context, snap model.PortfolioSnapshot) error {
	row := snapshotRow{
		Balance:      snap.Balance,
		PeakBalance:  snap.PeakBalance,
		TotalTrades:  snap.TotalTrades,
		Wins:         snap.Wins,
		Losses:       snap.Losses,
		TotalPnL:     snap.TotalPnL,
		MaxDrawdown:  snap.MaxDrawdown,
		DailyLoss:    snap.DailyLoss,
		DailyLossDay: snap.DailyLossDay,
		At:           snap.At,
	}
	return p.db.WithContext(ctx).Create(&row).Error
}

func (p *Postgres) LatestSnapshot(ctx context.Context) (*model.PortfolioSnapshot, error) {
	var row snapshotRow
	err := p.db.WithContext(ctx).Order("at desc").First(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.PortfolioSnapshot{
		Balance:      row.Balance,
		PeakBalance:  row.PeakBalance,
		TotalTrades:  row.TotalTrades,
		Wins:         row.Wins,
		Losses:       row.Losses,
		TotalPnL:     row.TotalPnL,
		MaxDrawdown:  row.MaxDrawdown,
		DailyLoss:    row.DailyLoss,
		DailyLossDay: row.DailyLossDay,
		At:           row.At,
	}, nil
}

func (p *Postgres) SaveMarket(ctx context.Context, mkt model.Market) error {
	row := marketRow{
		ID:          mkt.ID,
		Slug:        mkt.Slug,
		Question:    mkt.Question,
		Status:      uint8(mkt.Status),
		UpTokenID:   mkt.UpTokenID,
		DownTokenID: mkt.DownTokenID,
		EndTime:     mkt.EndTime,
		Outcome:     uint8(mkt.Outcome),
	}
	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}

func (p *Postgres) Market(ctx context.Context, marketID string) (*model.Market, error) {
	var row marketRow
	err := p.db.WithContext(ctx).Where("id = ?", marketID).First(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &model.Market{
		ID:          row.ID,
		Slug:        row.Slug,
		Question:    row.Question,
		Status:      enum.MarketStatus(row.Status),
		UpTokenID:   row.UpTokenID,
		DownTokenID: row.DownTokenID,
		EndTime:     row.EndTime,
		Outcome:     enum.Outcome(row.Outcome),
	}, nil
}

func (p *Postgres) Close() error {
	return conn.ClosePostgres(p.db)
}

func toTradeRow(trade model.Trade) tradeRow {
	return tradeRow{
		ID:        trade.ID,
		MarketID:  trade.MarketID,
		TokenID:   trade.TokenID,
		Kind:      uint8(trade.Kind),
		Side:      uint8(trade.Side),
		Amount:    trade.Amount,
		Price:     trade.Price,
		AltPrice:  trade.AltPrice,
		Fee:       trade.Fee,
		Status:    uint8(trade.Status),
		Reason:    trade.Reason,
		PnL:       trade.PnL,
		CreatedAt: trade.CreatedAt,
		SettledAt: trade.SettledAt,
	}
}

func fromTradeRows(rows []tradeRow) []model.Trade {
	trades := make([]model.Trade, 0, len(rows))
	for _, row := range rows {
		trades = append(trades, model.Trade{
			ID:        row.ID,
			MarketID:  row.MarketID,
			TokenID:   row.TokenID,
			Kind:      enum.SignalKind(row.Kind),
			Side:      enum.Direction(row.Side),
			Amount:    row.Amount,
			Price:     row.Price,
			AltPrice:  row.AltPrice,
			Fee:       row.Fee,
			Status:    enum.TradeStatus(row.Status),
			Reason:    row.Reason,
			PnL:       row.PnL,
			CreatedAt: row.CreatedAt,
			SettledAt: row.SettledAt,
		})
	}
	return trades
}
