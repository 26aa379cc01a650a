// File: internal/mapper/mapper.go
// Description: Pixel-budget downsampling of raw captures. The budget bounds
// per-call model image cost independent of the physical display resolution.
package mapper

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/Activer007/computer-use-ootb/internal/capture"
)

// ScaledCapture is a downsampled screenshot plus the transform back to real
// screen space.
type ScaledCapture struct {
	Capture   *capture.Capture
	Image     *image.RGBA
	Width     int
	Height    int
	Transform Transform
}

// Downsample chooses a uniform scale s <= 1 so the result fits inside a
// square of side sqrt(maxPixelBudget), which keeps downsampledWidth *
// downsampledHeight <= maxPixelBudget while preserving aspect ratio. It
// never upsamples: captures already under budget pass through at scale 1.
func Downsample(cap *capture.Capture, maxPixelBudget int) (*ScaledCapture, error) {
	if maxPixelBudget <= 0 {
		return nil, fmt.Errorf("pixel budget must be positive, got %d", maxPixelBudget)
	}

	srcW := cap.Bounds.Dx()
	srcH := cap.Bounds.Dy()
	if srcW <= 0 || srcH <= 0 {
		return nil, fmt.Errorf("capture has empty bounds %v", cap.Bounds)
	}

	side := math.Floor(math.Sqrt(float64(maxPixelBudget)))
	maxDim := float64(max(srcW, srcH))

	scale := 1.0
	if maxDim > side {
		scale = side / maxDim
	}

	dstW := max(1, int(math.Floor(float64(srcW)*scale)))
	dstH := max(1, int(math.Floor(float64(srcH)*scale)))

	var img *image.RGBA
	if scale == 1.0 {
		img = cap.Image
	} else {
		img = image.NewRGBA(image.Rect(0, 0, dstW, dstH))
		draw.CatmullRom.Scale(img, img.Bounds(), cap.Image, cap.Image.Bounds(), draw.Over, nil)
	}

	return &ScaledCapture{
		Capture: cap,
		Image:   img,
		Width:   dstW,
		Height:  dstH,
		Transform: Transform{
			Scale:    scale,
			Origin:   cap.Bounds.Min,
			ImageW:   dstW,
			ImageH:   dstH,
			monitors: cap.Monitors,
		},
	}, nil
}

// EncodePNG returns the downsampled frame as PNG bytes, the only image form
// handed to model clients.
func (sc *ScaledCapture) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, sc.Image); err != nil {
		return nil, fmt.Errorf("encode downsampled capture: %w", err)
	}
	return buf.Bytes(), nil
}

// SavePNG persists the downsampled frame as <dir>/<capture-id>.png and
// returns the path, used as the event stream's screenshot reference.
func (sc *ScaledCapture) SavePNG(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	data, err := sc.EncodePNG()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, sc.Capture.ID+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}
