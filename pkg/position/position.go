// Package position holds the vector value exchanged by session participants.
package position

import (
	"fmt"
	"math"
)

// Position is a point in world space. Two-dimensional games leave Z at zero.
type Position struct {
	X float64 `json:"x" yaml:"x" mapstructure:"x"`
	Y float64 `json:"y" yaml:"y" mapstructure:"y"`
	Z float64 `json:"z" yaml:"z" mapstructure:"z"`
}

// Zero is the position every newly discovered peer starts at.
var Zero = Position{}

// New builds a Position from its components.
func New(x, y, z float64) Position {
	return Position{X: x, Y: y, Z: z}
}

// IsFinite reports whether no component is NaN or infinite.
func (p Position) IsFinite() bool {
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Sub returns p - q.
func (p Position) Sub(q Position) Position {
	return Position{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Distance returns the euclidean distance between p and q.
func (p Position) Distance(q Position) float64 {
	d := p.Sub(q)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}

func (p Position) String() string {
	return fmt.Sprintf("(%g, %g, %g)", p.X, p.Y, p.Z)
}

// Source supplies the live position of the local player.
type Source interface {
	Position() Position
}

// SourceFunc adapts a function to Source.
type SourceFunc func() Position

// Position calls f.
func (f SourceFunc) Position() Position {
	return f()
}

// Static always reports the same position.
type Static Position

// Position returns the fixed value.
func (s Static) Position() Position {
	return Position(s)
}
