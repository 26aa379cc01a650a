package mapper

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Activer007/computer-use-ootb/api/schemas"
	"github.com/Activer007/computer-use-ootb/internal/display"
)

func singleMonitorTransform(w, h int, scale float64, imgW, imgH int) Transform {
	return Transform{
		Scale:  scale,
		Origin: image.Point{},
		ImageW: imgW,
		ImageH: imgH,
		monitors: []display.Monitor{
			{ID: 0, Bounds: image.Rect(0, 0, w, h), Primary: true},
		},
	}
}

// The canonical scenario: a 1920x1080 display under a one-megapixel budget
// downsamples to 1000x562, and the image point (500, 281) lands on the real
// screen center (960, 540).
func TestInverse_FullHDScenario(t *testing.T) {
	tf := singleMonitorTransform(1920, 1080, 1000.0/1920.0, 1000, 562)

	real, mon, err := tf.Inverse(image.Pt(500, 281))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(960, 540), real)
	assert.Equal(t, 0, mon.ID)
}

func TestInverse_OutsideImageBounds(t *testing.T) {
	tf := singleMonitorTransform(1920, 1080, 1000.0/1920.0, 1000, 562)

	cases := []image.Point{
		{X: -1, Y: 10},
		{X: 10, Y: -1},
		{X: 1000, Y: 10},
		{X: 10, Y: 562},
	}
	for _, p := range cases {
		_, _, err := tf.Inverse(p)
		assert.ErrorIs(t, err, schemas.ErrOutOfBoundsCoordinate, "point %v", p)
	}
}

func TestForward_RejectsPointOutsideMonitors(t *testing.T) {
	tf := singleMonitorTransform(1920, 1080, 0.5, 960, 540)

	_, err := tf.Forward(image.Pt(5000, 5000))
	assert.ErrorIs(t, err, schemas.ErrOutOfBoundsCoordinate)
}

// Forward then Inverse must land within one real pixel of where it started,
// across budgets and monitor counts.
func TestRoundTrip_WithinOnePixel(t *testing.T) {
	layouts := map[string][]display.Monitor{
		"single": {
			{ID: 0, Bounds: image.Rect(0, 0, 1920, 1080), Primary: true},
		},
		"dual horizontal": {
			{ID: 0, Bounds: image.Rect(0, 0, 1920, 1080), Primary: true},
			{ID: 1, Bounds: image.Rect(1920, 0, 3840, 1080)},
		},
		"mixed sizes with negative origin": {
			{ID: 0, Bounds: image.Rect(0, 0, 2560, 1440), Primary: true},
			{ID: 1, Bounds: image.Rect(-1920, 200, 0, 1280)},
		},
		"four stacked": {
			{ID: 0, Bounds: image.Rect(0, 0, 1920, 1080), Primary: true},
			{ID: 1, Bounds: image.Rect(1920, 0, 3840, 1080)},
			{ID: 2, Bounds: image.Rect(0, 1080, 1920, 2160)},
			{ID: 3, Bounds: image.Rect(1920, 1080, 3840, 2160)},
		},
	}
	budgets := []int{250_000, 1_000_000, 4_000_000}

	for name, monitors := range layouts {
		for _, budget := range budgets {
			union := display.Union(monitors)
			tf := transformFor(monitors, union, budget)

			// Sample a grid of real points across every monitor.
			for _, m := range monitors {
				samples := []image.Point{
					m.Bounds.Min,
					{X: m.Bounds.Max.X - 1, Y: m.Bounds.Max.Y - 1},
					{X: (m.Bounds.Min.X + m.Bounds.Max.X) / 2, Y: (m.Bounds.Min.Y + m.Bounds.Max.Y) / 2},
					{X: m.Bounds.Min.X + 17, Y: m.Bounds.Max.Y - 13},
				}
				for _, p := range samples {
					img, err := tf.Forward(p)
					require.NoError(t, err, "%s budget=%d forward %v", name, budget, p)

					back, _, err := tf.Inverse(img)
					require.NoError(t, err, "%s budget=%d inverse %v", name, budget, img)

					maxErr := 1.0 / tf.Scale // one image pixel of real-space slack
					assert.InDelta(t, p.X, back.X, maxErr, "%s budget=%d X", name, budget)
					assert.InDelta(t, p.Y, back.Y, maxErr, "%s budget=%d Y", name, budget)
				}
			}
		}
	}
}

// transformFor builds the transform Downsample would produce for a layout,
// without composing actual pixels.
func transformFor(monitors []display.Monitor, union image.Rectangle, budget int) Transform {
	srcW, srcH := union.Dx(), union.Dy()
	side := 1.0
	for side*side < float64(budget) {
		side++
	}
	side-- // floor(sqrt(budget))
	maxDim := float64(srcW)
	if srcH > srcW {
		maxDim = float64(srcH)
	}
	scale := 1.0
	if maxDim > side {
		scale = side / maxDim
	}
	return Transform{
		Scale:    scale,
		Origin:   union.Min,
		ImageW:   maxInt(1, int(float64(srcW)*scale)),
		ImageH:   maxInt(1, int(float64(srcH)*scale)),
		monitors: monitors,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// In a side-by-side dual-monitor composition an image point in the right
// half inverts past the seam onto the second display.
func TestInverse_DualMonitorRightHalf(t *testing.T) {
	monitors := []display.Monitor{
		{ID: 0, Bounds: image.Rect(0, 0, 1920, 1080), Primary: true},
		{ID: 1, Bounds: image.Rect(1920, 0, 3840, 1080)},
	}
	tf := transformFor(monitors, display.Union(monitors), 1_000_000)

	back, mon, err := tf.Inverse(image.Pt(tf.ImageW*3/4, tf.ImageH/2))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, back.X, 1920)
	assert.Equal(t, 1, mon.ID)
}

// A point rounding onto the seam between two monitors must resolve to the
// same monitor on every call, with the larger display winning.
func TestInverse_SeamDeterminism(t *testing.T) {
	monitors := []display.Monitor{
		{ID: 0, Bounds: image.Rect(0, 0, 2560, 1440), Primary: true}, // larger
		{ID: 1, Bounds: image.Rect(2560, 0, 4480, 1080)},
	}
	tf := Transform{
		Scale:    0.5,
		Origin:   image.Point{},
		ImageW:   2240,
		ImageH:   720,
		monitors: monitors,
	}

	// Image X 1280 inverts to real X 2560: first column of monitor 1, also
	// the closed right edge of monitor 0. Half-open containment gives it to
	// monitor 1 outright. Y beyond monitor 1's height exercises the seam
	// path instead.
	_, mon, err := tf.Inverse(image.Pt(1280, 300))
	require.NoError(t, err)
	assert.Equal(t, 1, mon.ID)

	// Real (2560, 1200) is below monitor 1 and right of monitor 0: only
	// monitor 0's closed bounds contain it, so the seam rule clamps into it.
	first, firstMon, err := tf.Inverse(image.Pt(1280, 600))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		p, m, err := tf.Inverse(image.Pt(1280, 600))
		require.NoError(t, err)
		assert.Equal(t, first, p, "Inverse must be deterministic")
		assert.Equal(t, firstMon.ID, m.ID)
	}
	assert.Equal(t, 0, firstMon.ID)
	assert.True(t, first.In(monitors[0].Bounds), "seam result must be clamped inside the winner")
}

// A point in the blank gap of a non-contiguous layout maps to no monitor.
func TestInverse_GapIsOutOfBounds(t *testing.T) {
	monitors := []display.Monitor{
		{ID: 0, Bounds: image.Rect(0, 0, 1920, 1080), Primary: true},
		{ID: 1, Bounds: image.Rect(2400, 0, 4320, 1080)}, // 480px gap
	}
	tf := Transform{
		Scale:    0.5,
		Origin:   image.Point{},
		ImageW:   2160,
		ImageH:   540,
		monitors: monitors,
	}

	// Image X 1050 inverts to real X 2100, inside the gap.
	_, _, err := tf.Inverse(image.Pt(1050, 270))
	assert.ErrorIs(t, err, schemas.ErrOutOfBoundsCoordinate)
}

func TestResolvePoint_NormalizedAndAbsolute(t *testing.T) {
	tf := singleMonitorTransform(1920, 1080, 1000.0/1920.0, 1000, 562)

	assert.Equal(t, image.Pt(0, 0), tf.ResolvePoint(schemas.Point{X: 0, Y: 0}, true))
	assert.Equal(t, image.Pt(999, 561), tf.ResolvePoint(schemas.Point{X: 1, Y: 1}, true))
	assert.Equal(t, image.Pt(500, 281), tf.ResolvePoint(schemas.Point{X: 0.5005, Y: 0.5008}, true))

	// Normalized values outside [0,1] clamp instead of exploding.
	assert.Equal(t, image.Pt(999, 0), tf.ResolvePoint(schemas.Point{X: 1.4, Y: -0.2}, true))

	// Absolute points round and pass through.
	assert.Equal(t, image.Pt(500, 281), tf.ResolvePoint(schemas.Point{X: 500.2, Y: 280.6}, false))
}

func TestMapDecision(t *testing.T) {
	tf := singleMonitorTransform(1920, 1080, 1000.0/1920.0, 1000, 562)

	t.Run("click maps point and monitor", func(t *testing.T) {
		a, err := tf.MapDecision(schemas.Decision{
			Kind:  schemas.DecisionClick,
			Point: &schemas.Point{X: 500, Y: 281},
		})
		require.NoError(t, err)
		assert.Equal(t, schemas.ScreenPoint{X: 960, Y: 540}, a.Point)
		assert.True(t, a.HasPoint)
		assert.Equal(t, 0, a.MonitorID)
	})

	t.Run("scroll anchor at the origin stays an anchor", func(t *testing.T) {
		a, err := tf.MapDecision(schemas.Decision{
			Kind:  schemas.DecisionScroll,
			Point: &schemas.Point{X: 0, Y: 0},
			Delta: schemas.ScrollDelta{DY: 3},
		})
		require.NoError(t, err)
		assert.Equal(t, schemas.ScreenPoint{X: 0, Y: 0}, a.Point)
		assert.True(t, a.HasPoint, "a mapped (0,0) anchor must not read as anchorless")
	})

	t.Run("drag maps both endpoints", func(t *testing.T) {
		a, err := tf.MapDecision(schemas.Decision{
			Kind:  schemas.DecisionDrag,
			Point: &schemas.Point{X: 100, Y: 100},
			End:   &schemas.Point{X: 500, Y: 281},
		})
		require.NoError(t, err)
		assert.Equal(t, schemas.ScreenPoint{X: 960, Y: 540}, a.End)
		assert.NotEqual(t, a.Point, a.End)
	})

	t.Run("out of bounds point fails", func(t *testing.T) {
		_, err := tf.MapDecision(schemas.Decision{
			Kind:  schemas.DecisionClick,
			Point: &schemas.Point{X: 5000, Y: 10},
		})
		assert.ErrorIs(t, err, schemas.ErrOutOfBoundsCoordinate)
	})

	t.Run("coordinate-free decision passes through", func(t *testing.T) {
		a, err := tf.MapDecision(schemas.Decision{
			Kind: schemas.DecisionType,
			Text: "hello",
		})
		require.NoError(t, err)
		assert.Equal(t, "hello", a.Text)
		assert.Equal(t, schemas.ScreenPoint{}, a.Point)
		assert.False(t, a.HasPoint)
	})
}
