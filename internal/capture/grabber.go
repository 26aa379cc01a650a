// File: internal/capture/grabber.go
package capture

import (
	"image"

	"github.com/kbinani/screenshot"
)

// OSGrabber reads real screen pixels through the screenshot library.
type OSGrabber struct{}

// NewOSGrabber returns the production grabber.
func NewOSGrabber() OSGrabber { return OSGrabber{} }

func (OSGrabber) Grab(bounds image.Rectangle) (*image.RGBA, error) {
	return screenshot.CaptureRect(bounds)
}
