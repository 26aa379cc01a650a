// File: internal/executor/gesture.go
// Description: Pointer trajectory shaping. Drags follow a curved, eased path
// with Fitts's-law timing instead of teleporting, so target applications that
// track motion (drag thresholds, hover intents) behave as they would for a
// person.
package executor

import (
	"math"
	"math/rand"
	"time"
)

// Fitts's law coefficients in milliseconds, tuned for desktop distances.
const (
	fittsA = 120.0
	fittsB = 110.0
	// targetWidth is the assumed target width for the index of difficulty.
	targetWidth = 30.0
)

type vec struct{ x, y float64 }

func (v vec) add(o vec) vec      { return vec{v.x + o.x, v.y + o.y} }
func (v vec) sub(o vec) vec      { return vec{v.x - o.x, v.y - o.y} }
func (v vec) mul(s float64) vec  { return vec{v.x * s, v.y * s} }
func (v vec) dist(o vec) float64 { return math.Hypot(v.x-o.x, v.y-o.y) }

// easeInOutCubic gives a smooth acceleration and deceleration profile.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// gestureDuration models movement time with Fitts's law plus a +/- 15%
// randomization so repeated drags do not look machine-timed.
func gestureDuration(distance float64, rng *rand.Rand) time.Duration {
	id := math.Log2(1.0 + distance/targetWidth)
	mt := fittsA + fittsB*id
	mt += mt * (rng.Float64()*0.3 - 0.15)
	return time.Duration(mt) * time.Millisecond
}

// gesturePath generates a cubic Bezier trajectory from start to end. Control
// points sit at the thirds of the straight line, displaced perpendicular to
// the travel direction by a random fraction of the distance.
func gesturePath(start, end vec, rng *rand.Rand, numSteps int) []vec {
	dist := start.dist(end)
	if dist < 1.0 || numSteps <= 1 {
		return []vec{end}
	}

	dir := end.sub(start).mul(1.0 / dist)
	perp := vec{-dir.y, dir.x}

	bow := func() float64 { return (rng.Float64()*2 - 1) * dist * 0.08 }
	p0 := start
	p1 := start.add(dir.mul(dist / 3.0)).add(perp.mul(bow()))
	p2 := start.add(dir.mul(dist * 2.0 / 3.0)).add(perp.mul(bow()))
	p3 := end

	path := make([]vec, numSteps)
	for i := 0; i < numSteps; i++ {
		t := easeInOutCubic(float64(i) / float64(numSteps-1))
		omt := 1.0 - t
		omt2 := omt * omt
		omt3 := omt2 * omt
		t2 := t * t
		t3 := t2 * t
		path[i] = p0.mul(omt3).add(p1.mul(3 * omt2 * t)).add(p2.mul(3 * omt * t2)).add(p3.mul(t3))
	}
	// The endpoint must be exact regardless of easing rounding.
	path[numSteps-1] = end
	return path
}
