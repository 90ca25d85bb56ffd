package main

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/posync/posync/pkg/position"
)

// orbitSource moves the local player on a horizontal circle so a demo
// session has something to sync without any input handling.
type orbitSource struct {
	center mgl64.Vec3
	radius float64
	period time.Duration
	phase  float64
	start  time.Time
	now    func() time.Time
}

func newOrbitSource(center position.Position, radius float64, period time.Duration, phase float64) *orbitSource {
	return &orbitSource{
		center: mgl64.Vec3{center.X, center.Y, center.Z},
		radius: radius,
		period: period,
		phase:  phase,
		start:  time.Now(),
		now:    time.Now,
	}
}

// Position returns the point on the orbit for the current time.
func (o *orbitSource) Position() position.Position {
	if o.radius == 0 || o.period <= 0 {
		return position.New(o.center.X(), o.center.Y(), o.center.Z())
	}
	elapsed := o.now().Sub(o.start)
	angle := o.phase + 2*math.Pi*float64(elapsed)/float64(o.period)

	offset := mgl64.Rotate3DY(angle).Mul3x1(mgl64.Vec3{o.radius, 0, 0})
	p := o.center.Add(offset)
	return position.New(p.X(), p.Y(), p.Z())
}
