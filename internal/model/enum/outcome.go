package enum

// Outcome is the resolved winning side of a market.
type Outcome uint8

const (
	OutcomeUnknown Outcome = iota
	OutcomeUp
	OutcomeDown
)

func (o Outcome) IsAvailable() bool {
	return o == OutcomeUp || o == OutcomeDown
}

// Matches reports whether a trade on the given side wins under this outcome.
func (o Outcome) Matches(d Direction) bool {
	return (o == OutcomeUp && d == DirectionUp) ||
		(o == OutcomeDown && d == DirectionDown)
}

func (o Outcome) String() string {
	switch o {
	case OutcomeUp:
		return "Up"
	case OutcomeDown:
		return "Down"
	default:
		return "unknown"
	}
}
