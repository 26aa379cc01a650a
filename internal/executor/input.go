// File: internal/executor/input.go
package executor

import (
	"github.com/go-vgo/robotgo"
)

// Input is the OS input device boundary. The production implementation
// synthesizes real events; tests record them instead.
type Input interface {
	Move(x, y int) error
	// Toggle presses (down=true) or releases the given mouse button.
	Toggle(button string, down bool) error
	Click(button string, double bool) error
	TypeText(text string) error
	// KeyTap taps key while holding the modifiers.
	KeyTap(key string, modifiers []string) error
	// Scroll scrolls by wheel notches; positive dy scrolls down.
	Scroll(dx, dy int) error
}

// OSInput drives the real mouse and keyboard.
type OSInput struct{}

// NewOSInput returns the production input device.
func NewOSInput() OSInput { return OSInput{} }

func (OSInput) Move(x, y int) error {
	robotgo.Move(x, y)
	return nil
}

func (OSInput) Toggle(button string, down bool) error {
	state := "up"
	if down {
		state = "down"
	}
	return robotgo.Toggle(button, state)
}

func (OSInput) Click(button string, double bool) error {
	robotgo.Click(button, double)
	return nil
}

func (OSInput) TypeText(text string) error {
	robotgo.TypeStr(text)
	return nil
}

func (OSInput) KeyTap(key string, modifiers []string) error {
	args := make([]interface{}, len(modifiers))
	for i, m := range modifiers {
		args[i] = m
	}
	return robotgo.KeyTap(key, args...)
}

func (OSInput) Scroll(dx, dy int) error {
	robotgo.Scroll(dx, dy)
	return nil
}
