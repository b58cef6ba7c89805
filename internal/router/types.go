// Package router maps parsed intents onto backend calls: argument
// validation, per-intent preconditions against the last known fleet state,
// dependency inference between the commands of a batch and failure policy
// selection.
package router

import (
	"time"

	"github.com/aerolink/drone-mcp/internal/backend"
	"github.com/aerolink/drone-mcp/internal/fault"
	"github.com/aerolink/drone-mcp/internal/nlp"
)

// FailurePolicy governs how a batch reacts to a failing command.
type FailurePolicy string

const (
	// StopOnError fails the batch at the first error; pending commands are
	// skipped. The default.
	StopOnError FailurePolicy = "stop_on_error"
	// Continue runs every command regardless of earlier failures.
	Continue FailurePolicy = "continue"
	// Rollback behaves like StopOnError and additionally emits compensating
	// commands for the documented subset (land after a failed post-takeoff
	// move).
	Rollback FailurePolicy = "rollback"
)

// ExecutionMode governs how a batch's commands are scheduled.
type ExecutionMode string

const (
	// ModeSequential runs commands strictly in plan order; after a failure
	// under stop_on_error every later command is skipped. Single-drone
	// plans, including every multi-step utterance, are sequential.
	ModeSequential ExecutionMode = "sequential"
	// ModeParallel runs commands concurrently; no command depends on
	// another.
	ModeParallel ExecutionMode = "parallel"
	// ModeMixed orders commands along their dependency edges; independent
	// chains run concurrently.
	ModeMixed ExecutionMode = "mixed"
)

// Operational ranges enforced before any backend call.
const (
	MinDistanceCm = 20
	MaxDistanceCm = 500
	MinAngleDeg   = 1
	MaxAngleDeg   = 360
	MinAltitudeCm = 20
	MaxAltitudeCm = 300
)

// Command is one executable backend call derived from a ParsedIntent.
type Command struct {
	ID     string
	Intent nlp.ParsedIntent

	// Preconditions names the checks the router evaluated for this command.
	Preconditions []string
	// PreconditionErr is set when a precondition failed against the state
	// snapshot. The executor fails such commands without calling the backend.
	PreconditionErr *fault.Error

	Call       backend.Call
	Timeout    time.Duration
	Idempotent bool

	// DependsOn lists command IDs that must succeed before this command is
	// dispatched.
	DependsOn []string
}

// BatchPlan is an ordered set of commands with an execution mode, a
// dependency graph and a failure policy.
type BatchPlan struct {
	ID       string
	Commands []*Command
	Mode     ExecutionMode
	Policy   FailurePolicy
}
