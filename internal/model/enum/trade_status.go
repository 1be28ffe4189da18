package enum

// TradeStatus tracks the single allowed transition Open -> Settled.
type TradeStatus uint8

const (
	_trade_status_beg TradeStatus = iota
	TradeOpen
	TradeSettled
	_trade_status_end
)

func (s TradeStatus) IsAvailable() bool {
	return s > _trade_status_beg && s < _trade_status_end
}

func (s TradeStatus) String() string {
	switch s {
	case TradeOpen:
		return "open"
	case TradeSettled:
		return "settled"
	default:
		return "unknown"
	}
}
