// File: internal/agent/orchestrator.go
// Description: The perception-inference-action loop. Owns one task at a time:
// capture the screen, downsample, ask the model, map the answer back into
// real coordinates, execute, observe, repeat until done or a cap trips.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/Activer007/computer-use-ootb/api/schemas"
	"github.com/Activer007/computer-use-ootb/internal/capture"
	"github.com/Activer007/computer-use-ootb/internal/config"
	"github.com/Activer007/computer-use-ootb/internal/display"
	"github.com/Activer007/computer-use-ootb/internal/mapper"
)

// Loop states, surfaced on every event.
const (
	StateIdle      = "idle"
	StateCapturing = "capturing"
	StateInferring = "inferring"
	StateMapping   = "mapping"
	StateExecuting = "executing"
	StateVerifying = "verifying"
)

// displayMu serializes tasks across orchestrator instances. Two loops driving
// one mouse corrupt each other's gestures.
var displayMu sync.Mutex

// Capturer grabs a composite screenshot of the selected monitors.
type Capturer interface {
	Capture(ctx context.Context, layout *display.Layout, monitorIDs []int) (*capture.Capture, error)
}

// Runner executes one mapped action against the OS.
type Runner interface {
	Execute(ctx context.Context, a schemas.Action) schemas.Outcome
}

// ModelRouter resolves the client answering for a role.
type ModelRouter interface {
	Unified() bool
	ForRole(role schemas.Role) (schemas.ModelClient, error)
}

// Orchestrator runs tasks. It is injected with fully configured components
// via interfaces, keeping the loop testable without a display server.
type Orchestrator struct {
	cfg      *config.Config
	logger   *zap.Logger
	displays display.Provider
	capturer Capturer
	runner   Runner
	models   ModelRouter

	// publish, when set, mirrors every event to an external feed.
	publish func(schemas.AgentEvent)

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// New creates an Orchestrator.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	displays display.Provider,
	capturer Capturer,
	runner Runner,
	models ModelRouter,
) (*Orchestrator, error) {
	if cfg == nil || logger == nil || displays == nil || capturer == nil || runner == nil || models == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger.Named("agent"),
		displays: displays,
		capturer: capturer,
		runner:   runner,
		models:   models,
	}, nil
}

// SetEventSink mirrors events to an external feed (the websocket hub). Must
// be called before RunTask.
func (o *Orchestrator) SetEventSink(fn func(schemas.AgentEvent)) { o.publish = fn }

// RunTask starts a task and returns its event stream. The stream carries one
// event per state transition and is closed after the terminal event. Only one
// task runs at a time per process; a second RunTask before the first
// finishes is an error.
func (o *Orchestrator) RunTask(ctx context.Context, instruction string) (<-chan schemas.AgentEvent, error) {
	if instruction == "" {
		return nil, fmt.Errorf("instruction must not be empty")
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, fmt.Errorf("a task is already running")
	}
	taskCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.mu.Unlock()

	events := make(chan schemas.AgentEvent, o.cfg.Agent.EventBuffer)
	sess := newSession(instruction, o.cfg.Agent)

	o.logger.Info("Task starting",
		zap.String("task_id", sess.id),
		zap.String("instruction", instruction))

	go func() {
		displayMu.Lock()
		defer displayMu.Unlock()
		defer close(events)
		defer func() {
			o.mu.Lock()
			o.running = false
			o.cancel = nil
			o.mu.Unlock()
			cancel()
		}()
		o.run(taskCtx, sess, events)
	}()

	return events, nil
}

// Cancel requests cooperative cancellation of the running task. The loop
// honors it at the next state transition; an in-flight gesture always
// completes so no button is left held down.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// loopEmitter tracks event sequencing for one task.
type loopEmitter struct {
	taskID  string
	seq     int
	events  chan<- schemas.AgentEvent
	publish func(schemas.AgentEvent)
}

func (em *loopEmitter) emit(state string, status schemas.TaskStatus, mut func(*schemas.AgentEvent)) {
	em.seq++
	ev := schemas.AgentEvent{
		TaskID: em.taskID,
		Seq:    em.seq,
		State:  state,
		Status: status,
		At:     time.Now(),
	}
	if mut != nil {
		mut(&ev)
	}
	em.events <- ev
	if em.publish != nil {
		em.publish(ev)
	}
}

// run drives the state machine to a terminal status.
func (o *Orchestrator) run(ctx context.Context, sess *session, events chan<- schemas.AgentEvent) {
	em := &loopEmitter{taskID: sess.id, events: events, publish: o.publish}
	em.emit(StateIdle, schemas.TaskRunning, nil)

	// The monitor set is frozen here. Displays may change between tasks,
	// never mid-task, so every capture and every inverse mapping in this
	// run sees the same geometry.
	layout, err := display.Snapshot(o.displays)
	if err != nil {
		o.fail(em, StateCapturing, err)
		return
	}
	sess.layout = layout

	for {
		// Hard caps trip before any further spend.
		if err := o.checkLimits(sess); err != nil {
			o.fail(em, StateIdle, err)
			return
		}
		if ctx.Err() != nil {
			o.cancelled(em, StateIdle)
			return
		}
		sess.iteration++

		// -- Capturing --
		scaled, ref, err := o.captureAndScale(ctx, sess.layout)
		if err != nil {
			if ctx.Err() != nil {
				o.cancelled(em, StateCapturing)
				return
			}
			o.fail(em, StateCapturing, err)
			return
		}
		em.emit(StateCapturing, schemas.TaskRunning, func(ev *schemas.AgentEvent) {
			ev.ScreenshotRef = ref
		})

		// -- Inferring --
		if ctx.Err() != nil {
			o.cancelled(em, StateInferring)
			return
		}
		decision, terminal, err := o.infer(ctx, sess, scaled, em, ref)
		if err != nil {
			if ctx.Err() != nil {
				o.cancelled(em, StateInferring)
				return
			}
			if schemas.IsStepFault(err) {
				// Absorbed: the model sees its own mistake next call.
				var d schemas.Decision
				if decision != nil {
					d = *decision
				}
				sess.recordFault(d, err)
				em.emit(StateInferring, schemas.TaskRunning, func(ev *schemas.AgentEvent) {
					ev.Err = err.Error()
				})
				continue
			}
			o.fail(em, StateInferring, err)
			return
		}
		if terminal {
			return
		}
		if decision == nil {
			// Non-executing control decision (replan/wait) already handled.
			continue
		}

		// -- Mapping --
		if ctx.Err() != nil {
			o.cancelled(em, StateMapping)
			return
		}
		action, err := scaled.Transform.MapDecision(*decision)
		if err != nil {
			sess.recordFault(*decision, err)
			em.emit(StateMapping, schemas.TaskRunning, func(ev *schemas.AgentEvent) {
				ev.Decision = decision
				ev.Err = err.Error()
			})
			continue
		}
		em.emit(StateMapping, schemas.TaskRunning, func(ev *schemas.AgentEvent) {
			ev.Decision = decision
			ev.Action = action
		})

		// -- Executing --
		if ctx.Err() != nil {
			o.cancelled(em, StateExecuting)
			return
		}
		outcome := o.runner.Execute(ctx, *action)
		sess.record(schemas.HistoryEntry{
			Decision: *decision,
			Action:   action,
			Outcome:  &outcome,
		})
		// The executed action consumes the current sub-instruction, so the
		// next frame goes back to the planner in split mode.
		sess.consumePlan()
		em.emit(StateExecuting, schemas.TaskRunning, func(ev *schemas.AgentEvent) {
			ev.Decision = decision
			ev.Action = action
			ev.Outcome = &outcome
		})

		// -- Verifying --
		// Verification is observational: the next capture shows whether the
		// action had its intended effect and the model judges it.
		em.emit(StateVerifying, schemas.TaskRunning, func(ev *schemas.AgentEvent) {
			ev.Outcome = &outcome
		})
	}
}

// checkLimits enforces the iteration, wall-clock and token caps.
func (o *Orchestrator) checkLimits(sess *session) error {
	cfg := o.cfg.Agent
	if cfg.MaxIterations > 0 && sess.iteration >= cfg.MaxIterations {
		return fmt.Errorf("%w: %d iterations", schemas.ErrLimitExceeded, sess.iteration)
	}
	if cfg.MaxElapsed > 0 && time.Since(sess.startedAt) >= cfg.MaxElapsed {
		return fmt.Errorf("%w: elapsed %s", schemas.ErrLimitExceeded, time.Since(sess.startedAt).Round(time.Second))
	}
	if cfg.MaxCostTokens > 0 && sess.tokensUsed >= cfg.MaxCostTokens {
		return fmt.Errorf("%w: %d tokens", schemas.ErrLimitExceeded, sess.tokensUsed)
	}
	return nil
}

// captureAndScale grabs the composite screenshot of the task's frozen layout
// with bounded retries and downsamples it to the pixel budget.
func (o *Orchestrator) captureAndScale(ctx context.Context, layout *display.Layout) (*mapper.ScaledCapture, string, error) {
	var shot *capture.Capture
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(500*time.Millisecond), uint64(o.cfg.Capture.MaxRetries)),
		ctx,
	)
	err := backoff.Retry(func() error {
		var grabErr error
		shot, grabErr = o.capturer.Capture(ctx, layout, o.cfg.Capture.Monitors)
		return grabErr
	}, policy)
	if err != nil {
		return nil, "", err
	}

	scaled, err := mapper.Downsample(shot, o.cfg.Capture.PixelBudget)
	if err != nil {
		return nil, "", fmt.Errorf("%w: downsampling: %v", schemas.ErrCaptureUnavailable, err)
	}

	ref := ""
	if o.cfg.Capture.SaveDir != "" {
		if ref, err = scaled.SavePNG(o.cfg.Capture.SaveDir); err != nil {
			// Persisting the frame is best-effort; the loop keeps going.
			o.logger.Warn("Failed to save screenshot", zap.Error(err))
			ref = ""
		}
	}
	return scaled, ref, nil
}

// infer runs the model phase of the iteration. In split mode the planner is
// consulted first when no sub-instruction is active; its Plan feeds the actor
// on the same screenshot. The returned decision is nil when the iteration was
// consumed by a control decision (replan, wait, plan-only). terminal=true
// means a final event was emitted and the loop must stop.
func (o *Orchestrator) infer(ctx context.Context, sess *session, scaled *mapper.ScaledCapture, em *loopEmitter, ref string) (*schemas.Decision, bool, error) {
	png, err := scaled.EncodePNG()
	if err != nil {
		return nil, false, fmt.Errorf("%w: encoding frame: %v", schemas.ErrCaptureUnavailable, err)
	}

	if !o.models.Unified() && sess.plan == "" {
		stop, err := o.consultPlanner(ctx, sess, png, scaled, em, ref)
		if err != nil || stop {
			return nil, stop, err
		}
	}

	role := schemas.RoleUnified
	if !o.models.Unified() {
		role = schemas.RoleActor
	}
	client, err := o.models.ForRole(role)
	if err != nil {
		return nil, false, err
	}

	result, err := client.Infer(ctx, schemas.InferRequest{
		ImagePNG:    png,
		ImageWidth:  scaled.Width,
		ImageHeight: scaled.Height,
		Instruction: sess.effectiveInstruction(),
		History:     sess.snapshot(),
	})
	if err != nil {
		return nil, false, err
	}
	sess.addTokens(result.TokensUsed)
	d := result.Decision

	o.logger.Debug("Decision received",
		zap.String("task_id", sess.id),
		zap.String("role", string(role)),
		zap.String("decision", d.String()))

	if err := checkCapability(client.Capabilities(), d); err != nil {
		return &d, false, err
	}

	switch d.Kind {
	case schemas.DecisionDone:
		if role == schemas.RoleActor {
			// The actor only finishes its sub-instruction. Whether the
			// whole task is complete is the planner's call on the next
			// frame.
			sess.record(schemas.HistoryEntry{Decision: d, Outcome: &schemas.Outcome{OK: true}})
			sess.consumePlan()
			em.emit(StateInferring, schemas.TaskRunning, func(ev *schemas.AgentEvent) {
				ev.Decision = &d
			})
			return nil, false, nil
		}
		sess.record(schemas.HistoryEntry{Decision: d})
		o.done(em, ref)
		return nil, true, nil

	case schemas.DecisionReplan:
		sess.record(schemas.HistoryEntry{Decision: d})
		sess.applyReplan()
		em.emit(StateInferring, schemas.TaskRunning, func(ev *schemas.AgentEvent) {
			ev.Decision = &d
		})
		return nil, false, nil

	case schemas.DecisionWait:
		sess.record(schemas.HistoryEntry{Decision: d, Outcome: &schemas.Outcome{OK: true}})
		em.emit(StateInferring, schemas.TaskRunning, func(ev *schemas.AgentEvent) {
			ev.Decision = &d
		})
		select {
		case <-time.After(o.cfg.Agent.WaitDuration):
		case <-ctx.Done():
		}
		return nil, false, nil

	case schemas.DecisionPlan:
		// Only the planner phase may plan. An actor or unified model
		// answering with a plan did not ground the step.
		err := fmt.Errorf("%w: %s role returned a plan", schemas.ErrInferenceMalformed, role)
		return &d, false, err

	default:
		em.emit(StateInferring, schemas.TaskRunning, func(ev *schemas.AgentEvent) {
			ev.Decision = &d
		})
		return &d, false, nil
	}
}

// checkCapability rejects a coordinate-bearing decision from a client whose
// declared capability set excludes coordinates. Role legality is enforced
// here against the declaration, never inside the client.
func checkCapability(caps schemas.Capabilities, d schemas.Decision) error {
	if d.HasCoordinates() && !caps.EmitsCoordinates {
		return fmt.Errorf("%w: %s client returned %s without the coordinate capability",
			schemas.ErrInferenceMalformed, caps.Role, d.Kind)
	}
	return nil
}

// consultPlanner asks the planner for the next sub-instruction. A planner
// that answers with coordinates violated its declared capabilities; that is
// absorbed as a step fault rather than executed blind.
func (o *Orchestrator) consultPlanner(ctx context.Context, sess *session, png []byte, scaled *mapper.ScaledCapture, em *loopEmitter, ref string) (bool, error) {
	client, err := o.models.ForRole(schemas.RolePlanner)
	if err != nil {
		return false, err
	}

	result, err := client.Infer(ctx, schemas.InferRequest{
		ImagePNG:    png,
		ImageWidth:  scaled.Width,
		ImageHeight: scaled.Height,
		Instruction: sess.instruction,
		History:     sess.snapshot(),
	})
	if err != nil {
		return false, err
	}
	sess.addTokens(result.TokensUsed)
	d := result.Decision

	if err := checkCapability(client.Capabilities(), d); err != nil {
		return false, err
	}

	switch d.Kind {
	case schemas.DecisionPlan:
		sess.plan = d.Text
		sess.record(schemas.HistoryEntry{Decision: d, Outcome: &schemas.Outcome{OK: true}})
		o.logger.Info("Plan updated",
			zap.String("task_id", sess.id),
			zap.String("plan", d.Text))
		return false, nil

	case schemas.DecisionDone:
		sess.record(schemas.HistoryEntry{Decision: d})
		o.done(em, ref)
		return true, nil

	case schemas.DecisionReplan:
		sess.record(schemas.HistoryEntry{Decision: d})
		sess.applyReplan()
		return false, nil

	default:
		return false, fmt.Errorf("%w: planner returned %q", schemas.ErrInferenceMalformed, d.Kind)
	}
}

func (o *Orchestrator) done(em *loopEmitter, ref string) {
	o.logger.Info("Task complete", zap.String("task_id", em.taskID))
	em.emit(StateIdle, schemas.TaskDone, func(ev *schemas.AgentEvent) {
		ev.ScreenshotRef = ref
	})
}

func (o *Orchestrator) fail(em *loopEmitter, state string, err error) {
	o.logger.Error("Task failed",
		zap.String("task_id", em.taskID),
		zap.String("state", state),
		zap.Error(err))
	em.emit(state, schemas.TaskFailed, func(ev *schemas.AgentEvent) {
		ev.Err = err.Error()
	})
}

func (o *Orchestrator) cancelled(em *loopEmitter, state string) {
	o.logger.Info("Task cancelled", zap.String("task_id", em.taskID))
	em.emit(state, schemas.TaskCancelled, nil)
}
