// File: internal/mapper/transform.go
// Description: The invertible affine map between real virtual-desktop
// coordinates and downsampled image coordinates, including per-monitor
// offset composition and seam attribution.
package mapper

import (
	"fmt"
	"image"
	"math"

	"github.com/Activer007/computer-use-ootb/api/schemas"
	"github.com/Activer007/computer-use-ootb/internal/display"
)

// Transform converts between real screen coordinates and the coordinates of
// one downsampled capture. Forward subtracts the capture origin then applies
// the uniform scale; Inverse reverses both steps and attributes the result to
// exactly one monitor.
type Transform struct {
	// Scale is downsampled pixels per real pixel, always <= 1.
	Scale float64
	// Origin is the captured region's top-left corner in virtual-desktop
	// coordinates.
	Origin image.Point
	// ImageW and ImageH are the downsampled dimensions.
	ImageW int
	ImageH int

	monitors []display.Monitor
}

// Forward maps a real virtual-desktop point into downsampled image space.
// The point must lie inside a captured monitor region.
func (t Transform) Forward(real image.Point) (image.Point, error) {
	if _, ok := t.monitorContaining(real); !ok {
		return image.Point{}, fmt.Errorf("%w: real point (%d, %d)",
			schemas.ErrOutOfBoundsCoordinate, real.X, real.Y)
	}
	p := image.Point{
		X: int(math.Round(float64(real.X-t.Origin.X) * t.Scale)),
		Y: int(math.Round(float64(real.Y-t.Origin.Y) * t.Scale)),
	}
	return clampPoint(p, t.ImageW, t.ImageH), nil
}

// Inverse maps a downsampled image point back to real screen coordinates and
// the monitor that owns it. Points that land outside every monitor region
// (blank gaps in non-contiguous layouts, or points outside the image) fail
// with OutOfBoundsCoordinate.
func (t Transform) Inverse(img image.Point) (image.Point, display.Monitor, error) {
	if img.X < 0 || img.Y < 0 || img.X >= t.ImageW || img.Y >= t.ImageH {
		return image.Point{}, display.Monitor{}, fmt.Errorf(
			"%w: image point (%d, %d) outside %dx%d",
			schemas.ErrOutOfBoundsCoordinate, img.X, img.Y, t.ImageW, t.ImageH)
	}

	real := image.Point{
		X: t.Origin.X + int(math.Round(float64(img.X)/t.Scale)),
		Y: t.Origin.Y + int(math.Round(float64(img.Y)/t.Scale)),
	}

	if m, ok := t.monitorContaining(real); ok {
		return real, m, nil
	}

	// Seam handling: rounding can push a boundary point just over a monitor
	// edge. Candidates whose closed bounds still contain the point compete,
	// and the larger monitor wins; layout order breaks remaining ties.
	if m, ok := t.seamMonitor(real); ok {
		return clampInto(real, m.Bounds), m, nil
	}

	return image.Point{}, display.Monitor{}, fmt.Errorf(
		"%w: real point (%d, %d)", schemas.ErrOutOfBoundsCoordinate, real.X, real.Y)
}

// ResolvePoint turns a model-returned point into integer image coordinates.
// Normalized points are fractions of the image and get clamped into [0,1]
// first; absolute points are used as-is and validated later by Inverse.
func (t Transform) ResolvePoint(p schemas.Point, normalized bool) image.Point {
	if normalized {
		x := math.Min(1, math.Max(0, p.X))
		y := math.Min(1, math.Max(0, p.Y))
		return clampPoint(image.Point{
			X: int(math.Round(x * float64(t.ImageW-1))),
			Y: int(math.Round(y * float64(t.ImageH-1))),
		}, t.ImageW, t.ImageH)
	}
	return image.Point{X: int(math.Round(p.X)), Y: int(math.Round(p.Y))}
}

// MapDecision translates every coordinate a decision carries into real screen
// space, producing the Action shape the executor accepts. Decisions without
// coordinates pass through unchanged.
func (t Transform) MapDecision(d schemas.Decision) (*schemas.Action, error) {
	a := &schemas.Action{
		Kind:  d.Kind,
		Text:  d.Text,
		Keys:  d.Keys,
		Delta: d.Delta,
	}

	if d.Point != nil {
		img := t.ResolvePoint(*d.Point, d.Normalized)
		real, mon, err := t.Inverse(img)
		if err != nil {
			return nil, err
		}
		a.Point = schemas.ScreenPoint{X: real.X, Y: real.Y}
		a.HasPoint = true
		a.MonitorID = mon.ID
	}
	if d.End != nil {
		img := t.ResolvePoint(*d.End, d.Normalized)
		real, _, err := t.Inverse(img)
		if err != nil {
			return nil, err
		}
		a.End = schemas.ScreenPoint{X: real.X, Y: real.Y}
	}
	return a, nil
}

func (t Transform) monitorContaining(p image.Point) (display.Monitor, bool) {
	for _, m := range t.monitors {
		if p.In(m.Bounds) {
			return m, true
		}
	}
	return display.Monitor{}, false
}

// seamMonitor deterministically assigns a point sitting on the boundary
// between adjacent monitors: the candidate with the larger area wins, and
// candidates are visited in layout order so equal areas resolve identically
// on every call.
func (t Transform) seamMonitor(p image.Point) (display.Monitor, bool) {
	var best display.Monitor
	found := false
	for _, m := range t.monitors {
		closed := image.Rect(m.Bounds.Min.X, m.Bounds.Min.Y, m.Bounds.Max.X+1, m.Bounds.Max.Y+1)
		if !p.In(closed) {
			continue
		}
		if !found || m.Area() > best.Area() {
			best = m
			found = true
		}
	}
	return best, found
}

func clampPoint(p image.Point, w, h int) image.Point {
	if p.X < 0 {
		p.X = 0
	}
	if p.X > w-1 {
		p.X = w - 1
	}
	if p.Y < 0 {
		p.Y = 0
	}
	if p.Y > h-1 {
		p.Y = h - 1
	}
	return p
}

func clampInto(p image.Point, r image.Rectangle) image.Point {
	if p.X < r.Min.X {
		p.X = r.Min.X
	}
	if p.X > r.Max.X-1 {
		p.X = r.Max.X - 1
	}
	if p.Y < r.Min.Y {
		p.Y = r.Min.Y
	}
	if p.Y > r.Max.Y-1 {
		p.Y = r.Max.Y - 1
	}
	return p
}
