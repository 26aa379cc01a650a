// File: internal/executor/executor.go
// Description: Turns mapped Actions into OS input primitives. Executions are
// real-world side effects: never retried, and a Drag always releases the
// button it pressed.
package executor

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/Activer007/computer-use-ootb/api/schemas"
)

// Executor performs Actions on the local machine.
type Executor struct {
	input  Input
	logger *zap.Logger
	rng    *rand.Rand
}

// New creates an Executor on top of the given input device.
func New(input Input, logger *zap.Logger) *Executor {
	return &Executor{
		input:  input,
		logger: logger.Named("executor"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Execute performs exactly one action and reports the outcome. Cancellation
// is observed only before the gesture starts: an in-flight drag completes so
// input devices are never left in a pressed state.
func (e *Executor) Execute(ctx context.Context, a schemas.Action) schemas.Outcome {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return schemas.Outcome{OK: false, Reason: err.Error(), Duration: time.Since(start)}
	}
	if !a.Executable() && a.Kind != schemas.DecisionWait {
		return schemas.Outcome{
			OK:       false,
			Reason:   fmt.Sprintf("action kind %q is not executable", a.Kind),
			Duration: time.Since(start),
		}
	}

	var err error
	switch a.Kind {
	case schemas.DecisionClick:
		err = e.click(a)
	case schemas.DecisionDrag:
		err = e.drag(a)
	case schemas.DecisionType:
		err = e.input.TypeText(a.Text)
	case schemas.DecisionKeyCombo:
		err = e.keyCombo(a)
	case schemas.DecisionScroll:
		err = e.scroll(a)
	case schemas.DecisionWait:
		// The orchestrator owns the wait duration; nothing to do here.
	}

	outcome := schemas.Outcome{OK: err == nil, Duration: time.Since(start)}
	if err != nil {
		outcome.Reason = err.Error()
		e.logger.Warn("action failed",
			zap.String("kind", string(a.Kind)),
			zap.Error(err),
		)
	} else {
		e.logger.Debug("action executed",
			zap.String("kind", string(a.Kind)),
			zap.Int("x", a.Point.X),
			zap.Int("y", a.Point.Y),
			zap.Duration("took", outcome.Duration),
		)
	}
	return outcome
}

func (e *Executor) click(a schemas.Action) error {
	if err := e.input.Move(a.Point.X, a.Point.Y); err != nil {
		return fmt.Errorf("move to (%d, %d): %w", a.Point.X, a.Point.Y, err)
	}
	return e.input.Click("left", false)
}

// drag runs press, interpolated moves, release as one atomic sequence. The
// release is deferred so a mid-drag failure cannot leave the button stuck.
func (e *Executor) drag(a schemas.Action) (err error) {
	if err = e.input.Move(a.Point.X, a.Point.Y); err != nil {
		return fmt.Errorf("move to drag start: %w", err)
	}
	if err = e.input.Toggle("left", true); err != nil {
		return fmt.Errorf("press at drag start: %w", err)
	}
	defer func() {
		if rerr := e.input.Toggle("left", false); rerr != nil && err == nil {
			err = fmt.Errorf("release at drag end: %w", rerr)
		}
	}()

	start := vec{float64(a.Point.X), float64(a.Point.Y)}
	end := vec{float64(a.End.X), float64(a.End.Y)}
	duration := gestureDuration(start.dist(end), e.rng)
	numSteps := int(duration.Seconds() * 60)
	if numSteps < 2 {
		numSteps = 2
	}

	stepDelay := duration / time.Duration(numSteps)
	for i, p := range gesturePath(start, end, e.rng, numSteps) {
		x := int(math.Round(p.x))
		y := int(math.Round(p.y))
		if err = e.input.Move(x, y); err != nil {
			return fmt.Errorf("drag move step %d: %w", i, err)
		}
		time.Sleep(stepDelay)
	}
	return nil
}

func (e *Executor) keyCombo(a schemas.Action) error {
	tap, modifiers, err := NormalizeCombo(a.Keys)
	if err != nil {
		return err
	}
	return e.input.KeyTap(tap, modifiers)
}

func (e *Executor) scroll(a schemas.Action) error {
	if a.HasPoint {
		if err := e.input.Move(a.Point.X, a.Point.Y); err != nil {
			return fmt.Errorf("move to scroll anchor: %w", err)
		}
	}
	return e.input.Scroll(a.Delta.DX, a.Delta.DY)
}
