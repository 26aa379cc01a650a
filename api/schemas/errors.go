// File: api/schemas/errors.go
package schemas

import "errors"

// Fault taxonomy for the agent loop. Each class maps to a distinct recovery
// strategy in the orchestrator, so components must wrap (never replace) these
// sentinels.
var (
	// ErrNoDisplayFound means monitor enumeration returned nothing. Fatal.
	ErrNoDisplayFound = errors.New("no display found")

	// ErrCaptureUnavailable means the screen could not be read (permissions,
	// headless session, display server gone). Fatal after a bounded number of
	// capture retries.
	ErrCaptureUnavailable = errors.New("screen capture unavailable")

	// ErrInferenceUnavailable is a transport-level model failure. Transient;
	// retried with exponential backoff up to the configured attempt ceiling.
	ErrInferenceUnavailable = errors.New("inference unavailable")

	// ErrInferenceMalformed means the provider answered but the response did
	// not normalize into a Decision. Never retried; recorded as a failed step.
	ErrInferenceMalformed = errors.New("inference response malformed")

	// ErrOutOfBoundsCoordinate means a model-returned point mapped outside
	// every monitor region. A model error, not a system fault; the loop
	// continues.
	ErrOutOfBoundsCoordinate = errors.New("coordinate outside all monitor regions")

	// ErrLimitExceeded means an iteration, time or cost cap was hit. Always
	// terminates the task.
	ErrLimitExceeded = errors.New("task limit exceeded")
)

// IsFatal reports whether err belongs to a fault class that terminates the
// task rather than being absorbed as a failed step.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNoDisplayFound) ||
		errors.Is(err, ErrCaptureUnavailable) ||
		errors.Is(err, ErrLimitExceeded)
}

// IsStepFault reports whether err is absorbed into history as a failed step
// while the loop keeps going.
func IsStepFault(err error) bool {
	return errors.Is(err, ErrInferenceMalformed) ||
		errors.Is(err, ErrOutOfBoundsCoordinate)
}
