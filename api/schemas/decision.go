// File: api/schemas/decision.go
package schemas

import (
	"fmt"
	"strings"
)

// DecisionKind enumerates the canonical action vocabulary shared by every
// model provider after normalization.
type DecisionKind string

const (
	DecisionClick    DecisionKind = "click"
	DecisionDrag     DecisionKind = "drag"
	DecisionType     DecisionKind = "type"
	DecisionKeyCombo DecisionKind = "keyCombo"
	DecisionScroll   DecisionKind = "scroll"
	DecisionWait     DecisionKind = "wait"
	DecisionDone     DecisionKind = "done"
	DecisionReplan   DecisionKind = "replan"
	// DecisionPlan carries a planner's textual sub-instruction for the actor.
	// Planner-role clients emit only Plan, Done and Replan.
	DecisionPlan DecisionKind = "plan"
)

// Point is a coordinate in downsampled image space as returned by a model.
// When Normalized is set on the owning Decision, X and Y are fractions of the
// image dimensions in [0,1]. Points are never trusted as screen coordinates
// until the mapper inverts them.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ScrollDelta is a wheel displacement in notches. Positive DY scrolls down.
type ScrollDelta struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

// Decision is the canonical normalized output of any model call.
type Decision struct {
	Kind DecisionKind `json:"kind"`
	// Point anchors Click and Scroll, and is the start of a Drag.
	Point *Point `json:"point,omitempty"`
	// End is the destination of a Drag.
	End *Point `json:"end,omitempty"`
	// Text holds typed text, a Replan reason or a planner sub-instruction.
	Text string `json:"text,omitempty"`
	// Keys is a key combination, modifiers first, e.g. ["ctrl","shift","p"].
	Keys  []string    `json:"keys,omitempty"`
	Delta ScrollDelta `json:"delta,omitempty"`
	// Normalized marks Point/End as [0,1] fractions of the image instead of
	// image pixels.
	Normalized bool `json:"normalized,omitempty"`
}

// HasCoordinates reports whether the decision carries image-space points that
// must pass through the inverse transform before execution.
func (d Decision) HasCoordinates() bool {
	switch d.Kind {
	case DecisionClick, DecisionDrag:
		return true
	case DecisionScroll:
		return d.Point != nil
	default:
		return false
	}
}

// Terminal reports whether the decision ends the task.
func (d Decision) Terminal() bool { return d.Kind == DecisionDone }

// Validate checks that the variant-specific payload is present.
func (d Decision) Validate() error {
	switch d.Kind {
	case DecisionClick:
		if d.Point == nil {
			return fmt.Errorf("%w: click without point", ErrInferenceMalformed)
		}
	case DecisionDrag:
		if d.Point == nil || d.End == nil {
			return fmt.Errorf("%w: drag needs start and end points", ErrInferenceMalformed)
		}
	case DecisionType:
		if d.Text == "" {
			return fmt.Errorf("%w: type without text", ErrInferenceMalformed)
		}
	case DecisionKeyCombo:
		if len(d.Keys) == 0 {
			return fmt.Errorf("%w: key combo without keys", ErrInferenceMalformed)
		}
	case DecisionScroll:
		if d.Delta == (ScrollDelta{}) {
			return fmt.Errorf("%w: scroll without delta", ErrInferenceMalformed)
		}
	case DecisionPlan:
		if d.Text == "" {
			return fmt.Errorf("%w: plan without sub-instruction", ErrInferenceMalformed)
		}
	case DecisionWait, DecisionDone, DecisionReplan:
		// No payload required.
	default:
		return fmt.Errorf("%w: unknown decision kind %q", ErrInferenceMalformed, d.Kind)
	}
	return nil
}

// String renders a compact one-line form used for history prompts and logs.
func (d Decision) String() string {
	switch d.Kind {
	case DecisionClick:
		return fmt.Sprintf("click(%.1f, %.1f)", d.Point.X, d.Point.Y)
	case DecisionDrag:
		return fmt.Sprintf("drag(%.1f, %.1f -> %.1f, %.1f)", d.Point.X, d.Point.Y, d.End.X, d.End.Y)
	case DecisionType:
		return fmt.Sprintf("type(%q)", d.Text)
	case DecisionKeyCombo:
		return fmt.Sprintf("key(%s)", strings.Join(d.Keys, "+"))
	case DecisionScroll:
		return fmt.Sprintf("scroll(dx=%d, dy=%d)", d.Delta.DX, d.Delta.DY)
	case DecisionPlan, DecisionReplan:
		return fmt.Sprintf("%s(%q)", d.Kind, d.Text)
	default:
		return string(d.Kind)
	}
}

// ScreenPoint is a coordinate in real virtual-desktop pixels.
type ScreenPoint struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Action is a Decision whose points have been mapped into real screen
// coordinates. It is the only shape the action executor accepts.
type Action struct {
	Kind  DecisionKind `json:"kind"`
	Point ScreenPoint  `json:"point"`
	// HasPoint marks Point as a mapped model coordinate. A scroll anchored
	// at real (0, 0) is still anchored, so the zero Point alone cannot
	// signal "no anchor".
	HasPoint bool        `json:"hasPoint,omitempty"`
	End      ScreenPoint `json:"end"`
	Text     string      `json:"text,omitempty"`
	Keys     []string    `json:"keys,omitempty"`
	Delta    ScrollDelta `json:"delta,omitempty"`
	// MonitorID is the display the mapped point was attributed to.
	MonitorID int `json:"monitorId"`
}

// Executable reports whether the action kind maps to an OS input primitive.
func (a Action) Executable() bool {
	switch a.Kind {
	case DecisionClick, DecisionDrag, DecisionType, DecisionKeyCombo, DecisionScroll:
		return true
	}
	return false
}
