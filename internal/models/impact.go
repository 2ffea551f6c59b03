package models

import "strings"

// Magnitude is the qualitative strength of an impact link.
type Magnitude int

const (
	MagnitudeNone Magnitude = iota
	MagnitudeLow
	MagnitudeMedium
	MagnitudeHigh
)

// ParseMagnitude maps a case-insensitive label to a Magnitude.
// Missing or unrecognised labels yield MagnitudeNone.
func ParseMagnitude(label string) Magnitude {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "low":
		return MagnitudeLow
	case "medium":
		return MagnitudeMedium
	case "high":
		return MagnitudeHigh
	default:
		return MagnitudeNone
	}
}

// Weight returns the normalized numeric weight of the magnitude.
func (m Magnitude) Weight() float64 {
	switch m {
	case MagnitudeLow:
		return 0.25
	case MagnitudeMedium:
		return 0.50
	case MagnitudeHigh:
		return 1.00
	default:
		return 0.0
	}
}

func (m Magnitude) String() string {
	switch m {
	case MagnitudeLow:
		return "low"
	case MagnitudeMedium:
		return "medium"
	case MagnitudeHigh:
		return "high"
	default:
		return ""
	}
}

// MarshalText encodes the magnitude as its label.
func (m Magnitude) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Direction is the sign of an impact link.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionIncrease
	DirectionDecrease
)

// ParseDirection maps a case-insensitive label to a Direction.
func ParseDirection(label string) Direction {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "increase":
		return DirectionIncrease
	case "decrease":
		return DirectionDecrease
	default:
		return DirectionUnknown
	}
}

// Valid reports whether the direction is one of increase or decrease.
func (d Direction) Valid() bool {
	return d == DirectionIncrease || d == DirectionDecrease
}

// Sign is +1 for an increase and -1 for anything else.
func (d Direction) Sign() float64 {
	if d == DirectionIncrease {
		return 1
	}
	return -1
}

func (d Direction) String() string {
	switch d {
	case DirectionIncrease:
		return "increase"
	case DirectionDecrease:
		return "decrease"
	default:
		return ""
	}
}

// MarshalText encodes the direction as its label.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
