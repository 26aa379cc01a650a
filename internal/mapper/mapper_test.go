package mapper

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Activer007/computer-use-ootb/internal/capture"
	"github.com/Activer007/computer-use-ootb/internal/display"
)

func testCapture(w, h int) *capture.Capture {
	return &capture.Capture{
		ID:     "test-capture",
		Image:  image.NewRGBA(image.Rect(0, 0, w, h)),
		Bounds: image.Rect(0, 0, w, h),
		Monitors: []display.Monitor{
			{ID: 0, Bounds: image.Rect(0, 0, w, h), Primary: true},
		},
	}
}

func TestDownsample_FullHDUnderMegapixelBudget(t *testing.T) {
	sc, err := Downsample(testCapture(1920, 1080), 1_000_000)
	require.NoError(t, err)

	assert.Equal(t, 1000, sc.Width)
	assert.Equal(t, 562, sc.Height)
	assert.LessOrEqual(t, sc.Width*sc.Height, 1_000_000)
	assert.InDelta(t, 1000.0/1920.0, sc.Transform.Scale, 1e-9)
}

func TestDownsample_RespectsBudgetAndAspect(t *testing.T) {
	cases := []struct {
		w, h, budget int
	}{
		{1920, 1080, 250_000},
		{1920, 1080, 1_000_000},
		{3840, 2160, 1_000_000},
		{2560, 1440, 4_000_000},
		{3840, 1080, 500_000}, // ultrawide composite
		{1080, 1920, 1_000_000},
	}
	for _, c := range cases {
		sc, err := Downsample(testCapture(c.w, c.h), c.budget)
		require.NoError(t, err)

		assert.LessOrEqual(t, sc.Width*sc.Height, c.budget,
			"%dx%d budget=%d", c.w, c.h, c.budget)

		srcAspect := float64(c.w) / float64(c.h)
		dstAspect := float64(sc.Width) / float64(sc.Height)
		assert.InEpsilon(t, srcAspect, dstAspect, 0.01,
			"%dx%d budget=%d aspect drift", c.w, c.h, c.budget)
	}
}

func TestDownsample_NeverUpsamples(t *testing.T) {
	sc, err := Downsample(testCapture(800, 600), 4_000_000)
	require.NoError(t, err)

	assert.Equal(t, 800, sc.Width)
	assert.Equal(t, 600, sc.Height)
	assert.Equal(t, 1.0, sc.Transform.Scale)
}

func TestDownsample_RejectsBadInput(t *testing.T) {
	_, err := Downsample(testCapture(1920, 1080), 0)
	assert.Error(t, err)

	empty := testCapture(1920, 1080)
	empty.Bounds = image.Rectangle{}
	_, err = Downsample(empty, 1_000_000)
	assert.Error(t, err)
}

func TestEncodePNG_MatchesDimensions(t *testing.T) {
	sc, err := Downsample(testCapture(1920, 1080), 1_000_000)
	require.NoError(t, err)

	data, err := sc.EncodePNG()
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, sc.Width, decoded.Bounds().Dx())
	assert.Equal(t, sc.Height, decoded.Bounds().Dy())
}

func TestSavePNG_WritesCaptureIDFile(t *testing.T) {
	dir := t.TempDir()
	sc, err := Downsample(testCapture(640, 480), 1_000_000)
	require.NoError(t, err)

	path, err := sc.SavePNG(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "test-capture.png"), path)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
