// File: api/schemas/events.go
package schemas

import "time"

// Outcome is the result of executing a single Action. Executions are never
// retried; a failed outcome is recorded and the loop decides what to do next.
type Outcome struct {
	OK       bool          `json:"ok"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// HistoryEntry is one completed step of a session: what the model decided,
// what (if anything) was executed, and how it went. Failed steps are recorded
// with Err set so the model can self-correct on the next call.
type HistoryEntry struct {
	Decision Decision  `json:"decision"`
	Action   *Action   `json:"action,omitempty"`
	Outcome  *Outcome  `json:"outcome,omitempty"`
	Err      string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// TaskStatus is the terminal (or running) status carried on events.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskDone      TaskStatus = "done"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// AgentEvent is the read-only record emitted to observers for every step of a
// task, successful or not. The stream always carries enough to reconstruct
// why a task stopped: the last screenshot reference, decision and error.
type AgentEvent struct {
	TaskID        string     `json:"taskId"`
	Seq           int        `json:"seq"`
	State         string     `json:"state"`
	Status        TaskStatus `json:"status"`
	ScreenshotRef string     `json:"screenshotRef,omitempty"`
	Decision      *Decision  `json:"decision,omitempty"`
	Action        *Action    `json:"action,omitempty"`
	Outcome       *Outcome   `json:"outcome,omitempty"`
	Err           string     `json:"error,omitempty"`
	At            time.Time  `json:"at"`
}
