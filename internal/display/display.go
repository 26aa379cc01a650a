// File: internal/display/display.go
// Description: Monitor enumeration and the immutable virtual-desktop layout
// snapshot the orchestrator takes at task start.
package display

import (
	"fmt"
	"image"
	"sort"

	"github.com/Activer007/computer-use-ootb/api/schemas"
)

// Monitor is one attached display, positioned in virtual-desktop pixels.
type Monitor struct {
	ID      int
	Bounds  image.Rectangle
	Primary bool
	// ScaleFactor is the OS HiDPI scale. Enumeration backends that cannot
	// report it leave it at 1.
	ScaleFactor float64
}

// Area is the monitor's pixel area, used for deterministic seam attribution.
func (m Monitor) Area() int {
	return m.Bounds.Dx() * m.Bounds.Dy()
}

// Provider abstracts the OS display enumeration so layouts can be built from
// fakes in tests.
type Provider interface {
	// NumDisplays returns the number of active displays. Index 0 is the
	// primary display.
	NumDisplays() int
	// Bounds returns the virtual-desktop bounds of display i.
	Bounds(i int) image.Rectangle
}

// Layout is an ordered, immutable snapshot of the attached monitors:
// primary first, then left-to-right, top-to-bottom by origin. Monitors may
// change between tasks, never mid-task, so a Layout is taken once per run.
type Layout struct {
	monitors []Monitor
}

// Snapshot enumerates displays through the provider and freezes them into a
// Layout. It fails with NoDisplayFound when nothing is attached and rejects
// overlapping monitors, which would make coordinate attribution ambiguous.
func Snapshot(p Provider) (*Layout, error) {
	n := p.NumDisplays()
	if n <= 0 {
		return nil, schemas.ErrNoDisplayFound
	}

	monitors := make([]Monitor, 0, n)
	for i := 0; i < n; i++ {
		b := p.Bounds(i)
		if b.Empty() {
			continue
		}
		monitors = append(monitors, Monitor{
			ID:          i,
			Bounds:      b,
			Primary:     i == 0,
			ScaleFactor: 1,
		})
	}
	if len(monitors) == 0 {
		return nil, schemas.ErrNoDisplayFound
	}

	sort.SliceStable(monitors, func(a, b int) bool {
		ma, mb := monitors[a], monitors[b]
		if ma.Primary != mb.Primary {
			return ma.Primary
		}
		if ma.Bounds.Min.X != mb.Bounds.Min.X {
			return ma.Bounds.Min.X < mb.Bounds.Min.X
		}
		return ma.Bounds.Min.Y < mb.Bounds.Min.Y
	})

	for i := 0; i < len(monitors); i++ {
		for j := i + 1; j < len(monitors); j++ {
			if monitors[i].Bounds.Overlaps(monitors[j].Bounds) {
				return nil, fmt.Errorf("monitors %d and %d overlap in the virtual desktop",
					monitors[i].ID, monitors[j].ID)
			}
		}
	}

	return &Layout{monitors: monitors}, nil
}

// Monitors returns a copy of the ordered monitor list.
func (l *Layout) Monitors() []Monitor {
	out := make([]Monitor, len(l.monitors))
	copy(out, l.monitors)
	return out
}

// Primary returns the primary monitor.
func (l *Layout) Primary() Monitor {
	return l.monitors[0]
}

// ByID looks up a monitor by its identifier.
func (l *Layout) ByID(id int) (Monitor, bool) {
	for _, m := range l.monitors {
		if m.ID == id {
			return m, true
		}
	}
	return Monitor{}, false
}

// Select returns the monitors matching ids in layout order; an empty ids
// slice selects every monitor.
func (l *Layout) Select(ids []int) ([]Monitor, error) {
	if len(ids) == 0 {
		return l.Monitors(), nil
	}
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]Monitor, 0, len(ids))
	for _, m := range l.monitors {
		if want[m.ID] {
			out = append(out, m)
			delete(want, m.ID)
		}
	}
	if len(want) > 0 {
		return nil, fmt.Errorf("unknown monitor selection: %v", ids)
	}
	return out, nil
}

// MonitorAt returns the monitor whose half-open bounds contain p in virtual
// desktop coordinates.
func (l *Layout) MonitorAt(p image.Point) (Monitor, bool) {
	for _, m := range l.monitors {
		if p.In(m.Bounds) {
			return m, true
		}
	}
	return Monitor{}, false
}

// Union returns the union bounds of the given monitors.
func Union(monitors []Monitor) image.Rectangle {
	var u image.Rectangle
	for _, m := range monitors {
		u = u.Union(m.Bounds)
	}
	return u
}
