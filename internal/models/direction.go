package models

// Direction is a bullish/bearish lean shared by pattern detection and the
// early-warning phases.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
	Neutral Direction = "NEUTRAL"
)

// Opposite returns the reversed direction; NEUTRAL is its own opposite.
func (d Direction) Opposite() Direction {
	switch d {
	case Bullish:
		return Bearish
	case Bearish:
		return Bullish
	default:
		return Neutral
	}
}
