package graph

import (
	"context"
	"errors"
	"time"

	"github.com/tailored-agentic-units/coursegraph/engine/checkpoint"
	"github.com/tailored-agentic-units/coursegraph/engine/review"
)

// Cloneable is the only requirement the engine places on shared state:
// stages and fan-out items receive private copies, never the engine's own
// reference, so state must know how to deep-copy itself.
type Cloneable[S any] interface {
	Clone() S
}

// RunStatus re-exports the persisted run lifecycle state.
type RunStatus = checkpoint.RunStatus

const (
	StatusPending   = checkpoint.StatusPending
	StatusRunning   = checkpoint.StatusRunning
	StatusSuspended = checkpoint.StatusSuspended
	StatusCompleted = checkpoint.StatusCompleted
	StatusFailed    = checkpoint.StatusFailed
)

// AwaitReview is the pseudo-successor a routing function returns to suspend
// the run pending an external decision. It is not a stage name.
const AwaitReview = "__await_review__"

// StageFunc is a named unit of work: a function from shared state to
// updated shared state, or an error. The engine passes each invocation a
// private clone; returning an error records it and fails the run without
// unwinding past the orchestrator.
type StageFunc[S Cloneable[S]] func(ctx context.Context, state S) (S, error)

// RouteFunc selects the successor stage after its stage completes. Routing
// functions must be pure and total over the states reachable at that point;
// returning AwaitReview suspends the run.
type RouteFunc[S Cloneable[S]] func(state S) string

// ApplyDecisionFunc folds a posted review decision into shared state before
// the run re-enters the graph — typically setting approval flags and
// feedback fields the regenerating stage consumes.
type ApplyDecisionFunc[S Cloneable[S]] func(state S, decision review.Decision) S

// ReviewSpec configures the suspension a stage's routing function can
// trigger by returning AwaitReview.
type ReviewSpec[S Cloneable[S]] struct {
	// Subject names what is under review (e.g. "structure").
	Subject string

	// Payload extracts the data under review from state for the pending
	// request. Optional.
	Payload func(state S) any

	// RetryStage is re-entered when the decision is reject, after the
	// stage's retry counter is incremented and checked against the bound.
	RetryStage string

	// ResumeStage is entered when the decision is approve or continue.
	ResumeStage string

	// TTL overrides the graph-level review deadline (0 = use config).
	TTL time.Duration
}

// RunResult is the outcome of Run, Resume, or ResumeOnTimeout.
//
// A Suspended result carries the pending review request; a Failed result
// carries the full error list. The state is a private copy — mutating it
// does not affect the checkpointed run.
type RunResult[S Cloneable[S]] struct {
	RunID  string
	Status RunStatus
	State  S
	Errors []string
	Review *review.Request
}

var (
	// ErrRunExists indicates Run was called with an identifier that
	// already has a checkpoint record.
	ErrRunExists = errors.New("run already exists")

	// ErrNotSuspended indicates Resume was called on a run that is not
	// awaiting a decision.
	ErrNotSuspended = errors.New("run is not suspended")

	// ErrRetryLimit records a generating stage rejected more times than
	// the configured bound.
	ErrRetryLimit = errors.New("retry limit exceeded")

	// ErrCheckpoint wraps checkpoint store failures. These are fatal:
	// proceeding with unpersisted state would silently lose resumability.
	ErrCheckpoint = errors.New("checkpoint save failed")
)
