package enum

// SignalKind is the action a strategy proposes.
type SignalKind uint8

const (
	_signal_kind_beg SignalKind = iota
	SignalSkip
	SignalBuyUp
	SignalBuyDown
	SignalArbitrage
	_signal_kind_end
)

func (k SignalKind) IsAvailable() bool {
	return k > _signal_kind_beg && k < _signal_kind_end
}

// IsTradable reports whether the signal should reach the execution engine.
func (k SignalKind) IsTradable() bool {
	return k == SignalBuyUp || k == SignalBuyDown || k == SignalArbitrage
}

func (k SignalKind) String() string {
	switch k {
	case SignalSkip:
		return "SKIP"
	case SignalBuyUp:
		return "BUY_UP"
	case SignalBuyDown:
		return "BUY_DOWN"
	case SignalArbitrage:
		return "ARBITRAGE_BUY"
	default:
		return "UNKNOWN"
	}
}
