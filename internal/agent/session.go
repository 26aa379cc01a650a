// File: internal/agent/session.go
// Description: Per-task mutable state: bounded history, token accounting and
// the planner's current sub-instruction. Only the task goroutine touches a
// session, so no locking here.
package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/Activer007/computer-use-ootb/api/schemas"
	"github.com/Activer007/computer-use-ootb/internal/config"
	"github.com/Activer007/computer-use-ootb/internal/display"
)

// session tracks one task from start to a terminal state.
type session struct {
	id          string
	instruction string
	// layout is the monitor set frozen at task start. Every capture and
	// mapping in the run uses it; displays changing mid-task are not seen.
	layout *display.Layout
	// plan is the planner's current sub-instruction in split mode. Empty in
	// unified mode, and cleared again once the actor consumed it.
	plan string

	history []schemas.HistoryEntry
	window  int

	tokensUsed int
	iteration  int
	startedAt  time.Time

	replanPolicy config.ReplanPolicy
	replanKeep   int
}

func newSession(instruction string, cfg config.AgentConfig) *session {
	return &session{
		id:           uuid.New().String(),
		instruction:  instruction,
		window:       cfg.HistoryWindow,
		replanPolicy: cfg.ReplanPolicy,
		replanKeep:   cfg.ReplanKeepEntries,
		startedAt:    time.Now(),
	}
}

// record appends a completed step, evicting the oldest entries beyond the
// history window. The model only ever sees the window, never the full run.
func (s *session) record(entry schemas.HistoryEntry) {
	entry.At = time.Now()
	s.history = append(s.history, entry)
	if s.window > 0 && len(s.history) > s.window {
		s.history = s.history[len(s.history)-s.window:]
	}
}

// recordFault records a step that produced no executable action.
func (s *session) recordFault(d schemas.Decision, err error) {
	s.record(schemas.HistoryEntry{Decision: d, Err: err.Error()})
}

// snapshot returns the history to send with the next inference call.
func (s *session) snapshot() []schemas.HistoryEntry {
	if len(s.history) == 0 {
		return nil
	}
	out := make([]schemas.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// applyReplan resets session state according to the configured policy and
// installs the replan reason so the next planning call can see it.
func (s *session) applyReplan() {
	switch s.replanPolicy {
	case config.ReplanClear:
		s.history = nil
	case config.ReplanTrim:
		keep := s.replanKeep
		if keep > 0 && len(s.history) > keep {
			s.history = s.history[len(s.history)-keep:]
		}
	case config.ReplanKeep:
		// History carries over untouched.
	}
	s.plan = ""
}

// consumePlan drops the current sub-instruction after the actor acted on it,
// sending the next frame back to the planner.
func (s *session) consumePlan() {
	s.plan = ""
}

// addTokens accumulates model spend for the cost cap.
func (s *session) addTokens(n int) {
	if n > 0 {
		s.tokensUsed += n
	}
}

// effectiveInstruction is what the coordinate-emitting model is asked to do:
// the planner's current sub-instruction when one exists, the task otherwise.
func (s *session) effectiveInstruction() string {
	if s.plan != "" {
		return s.plan
	}
	return s.instruction
}
