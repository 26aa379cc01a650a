// File: internal/capture/capture.go
// Description: Raw desktop snapshots. Multi-monitor selections are composed
// into a single image laid out exactly like the virtual desktop.
package capture

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Activer007/computer-use-ootb/api/schemas"
	"github.com/Activer007/computer-use-ootb/internal/display"
)

// Capture is one raw full-desktop (or monitor-subset) snapshot. Immutable
// once produced; owned by the pipeline stage holding it until consumed.
type Capture struct {
	ID string
	// Image holds the composed pixels with Image.Bounds() anchored at (0,0).
	Image *image.RGBA
	// Bounds is the captured region in virtual-desktop coordinates; its size
	// equals the image size.
	Bounds   image.Rectangle
	Monitors []display.Monitor
	TakenAt  time.Time
}

// Grabber reads the pixels of one virtual-desktop rectangle. The production
// implementation talks to the OS; tests inject fakes.
type Grabber interface {
	Grab(bounds image.Rectangle) (*image.RGBA, error)
}

// Capturer produces Captures for a monitor selection.
type Capturer struct {
	grabber Grabber
	logger  *zap.Logger
}

// New creates a Capturer backed by the given grabber.
func New(grabber Grabber, logger *zap.Logger) *Capturer {
	return &Capturer{grabber: grabber, logger: logger.Named("capture")}
}

// Capture grabs each selected monitor and tiles the grabs at their real
// relative offsets. Gaps between non-contiguous monitors stay blank. A grab
// failure surfaces as CaptureUnavailable; retrying is the orchestrator's
// call, not ours.
func (c *Capturer) Capture(ctx context.Context, layout *display.Layout, monitorIDs []int) (*Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	monitors, err := layout.Select(monitorIDs)
	if err != nil {
		return nil, err
	}

	union := display.Union(monitors)
	composed := image.NewRGBA(image.Rect(0, 0, union.Dx(), union.Dy()))

	for _, m := range monitors {
		grab, err := c.grabber.Grab(m.Bounds)
		if err != nil {
			return nil, fmt.Errorf("%w: monitor %d: %v", schemas.ErrCaptureUnavailable, m.ID, err)
		}
		offset := m.Bounds.Min.Sub(union.Min)
		dst := image.Rectangle{Min: offset, Max: offset.Add(m.Bounds.Size())}
		draw.Draw(composed, dst, grab, grab.Bounds().Min, draw.Src)
	}

	cap := &Capture{
		ID:       uuid.NewString(),
		Image:    composed,
		Bounds:   union,
		Monitors: monitors,
		TakenAt:  time.Now(),
	}
	c.logger.Debug("captured desktop",
		zap.String("capture_id", cap.ID),
		zap.Int("monitors", len(monitors)),
		zap.Int("width", union.Dx()),
		zap.Int("height", union.Dy()),
	)
	return cap, nil
}
