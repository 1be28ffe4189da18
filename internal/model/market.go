package model

import (
	"time"

	"main/internal/model/enum"
)

// Market is one short-lived Up/Down binary market.
//
// Discovery creates it; only the coordinator advances Status.
type Market struct {
	ID          string
	Slug        string
	Question    string
	Status      enum.MarketStatus
	UpTokenID   string
	DownTokenID string
	EndTime     time.Time
	UpPrice     float64
	DownPrice   float64

	// Outcome is meaningful only when Status == MarketResolved.
	Outcome enum.Outcome
}
