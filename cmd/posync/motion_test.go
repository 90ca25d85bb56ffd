package main

import (
	"math"
	"testing"
	"time"

	"github.com/posync/posync/pkg/position"
)

func TestOrbitSource(t *testing.T) {
	center := position.New(1, 2, 3)
	orbit := newOrbitSource(center, 5, 4*time.Second, 0)

	start := time.Unix(1000, 0)
	orbit.start = start

	for _, elapsed := range []time.Duration{0, time.Second, 1500 * time.Millisecond, 3 * time.Second} {
		orbit.now = func() time.Time { return start.Add(elapsed) }
		p := orbit.Position()

		if d := p.Distance(center); math.Abs(d-5) > 1e-9 {
			t.Errorf("At %v: expected distance 5 from center, got %g", elapsed, d)
		}
		if p.Y != center.Y {
			t.Errorf("At %v: expected orbit to stay at y=%g, got %g", elapsed, center.Y, p.Y)
		}
	}

	orbit.now = func() time.Time { return start }
	if p := orbit.Position(); math.Abs(p.X-6) > 1e-9 || math.Abs(p.Z-3) > 1e-9 {
		t.Errorf("Expected orbit to start at (6, 2, 3), got %v", p)
	}

	// Half a period later the player is on the opposite side
	orbit.now = func() time.Time { return start.Add(2 * time.Second) }
	if p := orbit.Position(); math.Abs(p.X+4) > 1e-9 {
		t.Errorf("Expected x=-4 after half a period, got %v", p)
	}
}

func TestOrbitSourceStationary(t *testing.T) {
	center := position.New(1, 2, 3)
	if p := newOrbitSource(center, 0, time.Second, 0).Position(); p != center {
		t.Errorf("Expected zero radius to stay at center, got %v", p)
	}
}
