package enum

// Direction is the side of a binary-outcome market.
type Direction uint8

const (
	_direction_beg Direction = iota
	DirectionUp
	DirectionDown
	_direction_end
)

func (d Direction) IsAvailable() bool {
	return d > _direction_beg && d < _direction_end
}

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "Up"
	case DirectionDown:
		return "Down"
	default:
		return "Unknown"
	}
}
