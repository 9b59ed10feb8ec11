package sim

import (
	"fmt"
	"math"
)

// Position is an immutable 2D coordinate.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Distance returns the Euclidean distance between p and other.
func (p Position) Distance(other Position) float64 {
	return math.Hypot(p.X-other.X, p.Y-other.Y)
}

func (p Position) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// PositionPair is the payload of travel metrics: where a charger is and where it goes.
type PositionPair struct {
	From Position `json:"from"`
	To   Position `json:"to"`
}
