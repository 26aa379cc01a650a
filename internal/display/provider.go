// File: internal/display/provider.go
package display

import (
	"image"

	"github.com/kbinani/screenshot"
)

// OSProvider enumerates displays through the screenshot library, which
// reports display 0 as the primary on every supported platform.
type OSProvider struct{}

// NewOSProvider returns the production display provider.
func NewOSProvider() OSProvider { return OSProvider{} }

func (OSProvider) NumDisplays() int { return screenshot.NumActiveDisplays() }

func (OSProvider) Bounds(i int) image.Rectangle { return screenshot.GetDisplayBounds(i) }
