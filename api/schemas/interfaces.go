// File: api/schemas/interfaces.go
// Description: Shared component contracts. Keeping them here lets the agent,
// bridge and service packages depend on each other only through this package.
package schemas

import "context"

// Role identifies what subset of the Decision vocabulary a model instance is
// expected to emit. The orchestrator enforces the subset, not the client.
type Role string

const (
	// RolePlanner decides the next sub-goal or declares completion. It never
	// emits pixel coordinates.
	RolePlanner Role = "planner"
	// RoleActor turns a sub-goal into a coordinate- or text-bearing action.
	RoleActor Role = "actor"
	// RoleUnified does both in a single call.
	RoleUnified Role = "unified"
)

// Capabilities declares what a model instance may emit. One interface with a
// declared capability set per instance replaces a subclassing chain.
type Capabilities struct {
	Role Role `json:"role"`
	// EmitsCoordinates is false for planner-only clients; a coordinate-bearing
	// Decision from such a client is treated as a malformed response.
	EmitsCoordinates bool `json:"emitsCoordinates"`
}

// InferRequest carries one downsampled frame plus task context to a model.
// The image is always the downsampled encoding, never the raw capture, and
// History is already bounded to the configured rolling window.
type InferRequest struct {
	ImagePNG    []byte
	ImageWidth  int
	ImageHeight int
	Instruction string
	History     []HistoryEntry
}

// InferResult is a normalized model answer plus its token cost.
type InferResult struct {
	Decision   Decision
	TokensUsed int
	// Raw is the provider text before normalization, kept for logging.
	Raw string
}

// ModelClient wraps one remote or local inference endpoint. Implementations
// must return ErrInferenceUnavailable (wrapped) for transport failures and
// ErrInferenceMalformed (wrapped) for unparseable responses, since the two
// classes recover differently.
type ModelClient interface {
	Capabilities() Capabilities
	Infer(ctx context.Context, req InferRequest) (*InferResult, error)
}
