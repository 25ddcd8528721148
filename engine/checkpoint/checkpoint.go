// Package checkpoint provides durable persistence of run state between
// stages, enabling process restart without losing completed work.
//
// A Record is written after every completed stage and whenever a run
// suspends for review. One current record is retained per run; each save
// supersedes the previous snapshot. Stores must support concurrent saves
// keyed by distinct run identifiers without cross-run interference.
package checkpoint

import (
	"errors"
	"time"

	"github.com/tailored-agentic-units/coursegraph/engine/review"
)

// RunStatus is the lifecycle state of a run.
//
// Pending → Running → {Suspended ⇄ Running} → {Completed | Failed}.
// Suspended is the only non-terminal status that survives process restart;
// Completed and Failed are absorbing.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusSuspended RunStatus = "suspended"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is absorbing.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record is the durable snapshot of one run.
//
// Invariant: a record is written only after a stage fully completes or a
// pause is established, so a crash between stages loses no completed work.
// Retry counts and the pending review request live here rather than in
// process memory so that rejection bounds and suspension survive restarts.
type Record[S any] struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`

	// Stage is the last fully completed stage.
	Stage string `json:"stage"`

	// Status is the run lifecycle state at snapshot time.
	Status RunStatus `json:"status"`

	// State is the shared state after Stage completed.
	State S `json:"state"`

	// Errors accumulates stage failures and fatal conditions, oldest first.
	Errors []string `json:"errors,omitempty"`

	// Retries counts rejection cycles per generating stage.
	Retries map[string]int `json:"retries,omitempty"`

	// Review is the pending request while Status is Suspended.
	Review *review.Request `json:"review,omitempty"`

	// Timestamp is when this snapshot was taken.
	Timestamp time.Time `json:"timestamp"`
}

// ErrNotFound indicates no checkpoint exists for the requested run.
var ErrNotFound = errors.New("checkpoint not found")

// Store persists run records keyed by run identifier.
//
// Implementations must be safe for concurrent use across runs. Save
// overwrites any existing record for the same run.
type Store[S any] interface {
	// Save persists the record, superseding any prior snapshot for its run.
	Save(record Record[S]) error

	// Load retrieves the current record for the run.
	// Returns ErrNotFound if no record exists.
	Load(runID string) (Record[S], error)

	// Delete removes the record for the run. No error if absent.
	Delete(runID string) error

	// List returns all run identifiers with stored records.
	List() ([]string, error)
}
