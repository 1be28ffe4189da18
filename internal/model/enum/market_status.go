package enum

// MarketStatus is the lifecycle state of a market.
//
// Discovered -> Active -> Closed -> Resolved is the normal path.
// A Closed market whose winning side cannot be determined yet stays in
// ResolutionUnknown and is re-checked on later ticks.
type MarketStatus uint8

const (
	_market_status_beg MarketStatus = iota
	MarketDiscovered
	MarketActive
	MarketClosed
	MarketResolved
	MarketResolutionUnknown
	_market_status_end
)

func (s MarketStatus) IsAvailable() bool {
	return s > _market_status_beg && s < _market_status_end
}

// IsTerminal reports whether the market needs no further lifecycle work.
func (s MarketStatus) IsTerminal() bool {
	return s == MarketResolved
}

func (s MarketStatus) String() string {
	switch s {
	case MarketDiscovered:
		return "discovered"
	case MarketActive:
		return "active"
	case MarketClosed:
		return "closed"
	case MarketResolved:
		return "resolved"
	case MarketResolutionUnknown:
		return "resolution_unknown"
	default:
		return "unknown"
	}
}
