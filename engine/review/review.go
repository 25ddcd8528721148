// Package review implements the rendezvous point between a suspended run and
// an external decision-maker.
//
// When a validation gate routes a run to review, the orchestrator pauses the
// run and registers a Request with the Controller. External callers inspect
// the pending request and post exactly one Decision; the orchestrator then
// consumes the decision and re-enters the graph. Requests carry a deadline so
// that an unattended run can be resumed with a configurable default action
// instead of blocking forever.
//
// The Controller holds no stage logic and executes nothing itself. Pending
// requests are also persisted inside checkpoint records, so a restarted
// process rehydrates the controller from the checkpoint store.
package review

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action is the decision applied to a paused run.
type Action string

const (
	// ActionApprove accepts the reviewed output and continues forward.
	ActionApprove Action = "approve"
	// ActionReject sends the run back to the generating stage with feedback.
	ActionReject Action = "reject"
	// ActionContinue accepts the output as-is without endorsement.
	// It routes identically to approve.
	ActionContinue Action = "continue"
)

// ParseAction validates a string as an Action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionApprove, ActionReject, ActionContinue:
		return Action(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

// Decision is the external answer to a pending review request.
type Decision struct {
	// Subject names what was reviewed (e.g. "structure", "content", "quiz").
	Subject string `json:"subject"`

	// Action is the routing choice: approve, reject, or continue.
	Action Action `json:"action"`

	// Feedback carries reviewer guidance, consumed by the regenerating
	// stage on rejection.
	Feedback string `json:"feedback,omitempty"`

	// Synthesized marks decisions produced by the timeout policy rather
	// than a human reviewer.
	Synthesized bool `json:"synthesized,omitempty"`
}

// RequestStatus tracks the lifecycle of a review request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusResolved RequestStatus = "resolved"
	StatusExpired  RequestStatus = "expired"
)

// Request is a pending-decision record created when a run suspends.
//
// A request is created at pause, consumed exactly once at resume, and then
// discarded. The zero Deadline means the request never expires.
type Request struct {
	ID        string        `json:"id"`
	RunID     string        `json:"run_id"`
	Subject   string        `json:"subject"`
	Payload   any           `json:"payload,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Deadline  time.Time     `json:"deadline,omitzero"`
	Status    RequestStatus `json:"status"`
}

// Expired reports whether the request deadline has elapsed at the given time.
// Requests without a deadline never expire.
func (r *Request) Expired(now time.Time) bool {
	return !r.Deadline.IsZero() && now.After(r.Deadline)
}

var (
	// ErrNoPending indicates no review request is pending for the run.
	ErrNoPending = errors.New("no pending review request")
	// ErrAlreadyPending indicates the run already has an open review request.
	ErrAlreadyPending = errors.New("review request already pending")
	// ErrAlreadyResolved indicates a late or duplicate decision.
	ErrAlreadyResolved = errors.New("review request already resolved")
	// ErrNoDecision indicates resume was attempted before any decision.
	ErrNoDecision = errors.New("no decision posted")
	// ErrInvalidAction indicates an unrecognized decision action.
	ErrInvalidAction = errors.New("invalid decision action")
)

type pendingReview struct {
	request  *Request
	decision *Decision
}

// Controller mediates pause and resume for suspended runs.
//
// All methods are safe for concurrent use; independent runs are isolated by
// run identifier. One review request may be open per run at a time.
type Controller struct {
	mu      sync.Mutex
	pending map[string]*pendingReview
	now     func() time.Time
}

// NewController creates an empty Controller.
func NewController() *Controller {
	return &Controller{
		pending: make(map[string]*pendingReview),
		now:     time.Now,
	}
}

// NewControllerWithClock creates a Controller with an injected clock,
// used by tests to drive deadline expiry deterministically.
func NewControllerWithClock(now func() time.Time) *Controller {
	return &Controller{
		pending: make(map[string]*pendingReview),
		now:     now,
	}
}

// Pause registers a pending review request for the run and returns it.
//
// Returns ErrAlreadyPending if the run already has an open request: a run
// suspends at one checkpoint at a time.
func (c *Controller) Pause(runID, subject string, payload any, deadline time.Time) (*Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[runID]; exists {
		return nil, fmt.Errorf("%w: run %s", ErrAlreadyPending, runID)
	}

	req := &Request{
		ID:        "rev_" + uuid.New().String(),
		RunID:     runID,
		Subject:   subject,
		Payload:   payload,
		CreatedAt: c.now(),
		Deadline:  deadline,
		Status:    StatusPending,
	}
	c.pending[runID] = &pendingReview{request: req}
	return req, nil
}

// Rehydrate reinstalls a pending request recovered from a checkpoint record.
//
// Called before resuming a run in a freshly started process. A request that
// is already tracked, or not pending, is ignored.
func (c *Controller) Rehydrate(req *Request) {
	if req == nil || req.Status != StatusPending {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[req.RunID]; exists {
		return
	}
	c.pending[req.RunID] = &pendingReview{request: req}
}

// Get returns the pending request for the run, if any.
func (c *Controller) Get(runID string) (*Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, exists := c.pending[runID]
	if !exists {
		return nil, false
	}
	return p.request, true
}

// Decide posts a decision against a request by request identifier.
//
// Exactly one decision is honored per pause instance: posting against a
// request that already holds a decision returns ErrAlreadyResolved, and
// posting against an unknown (e.g. already-consumed) request returns
// ErrNoPending.
func (c *Controller) Decide(requestID string, decision Decision) error {
	if _, err := ParseAction(string(decision.Action)); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.pending {
		if p.request.ID != requestID {
			continue
		}
		if p.decision != nil {
			return fmt.Errorf("%w: request %s", ErrAlreadyResolved, requestID)
		}
		p.decision = &decision
		p.request.Status = StatusResolved
		return nil
	}

	return fmt.Errorf("%w: request %s", ErrNoPending, requestID)
}

// PollTimeout reports whether the run's pending request has passed its
// deadline without a decision.
func (c *Controller) PollTimeout(runID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, exists := c.pending[runID]
	if !exists || p.decision != nil {
		return false
	}
	return p.request.Expired(c.now())
}

// Expire synthesizes the fallback decision for a request whose deadline has
// elapsed. The synthesized decision counts as the one honored decision for
// the pause instance.
//
// Returns ErrNoPending if no request is open, ErrAlreadyResolved if a
// decision was posted first, and ErrNoDecision if the deadline has not
// actually passed.
func (c *Controller) Expire(runID string, fallback Action) (Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, exists := c.pending[runID]
	if !exists {
		return Decision{}, fmt.Errorf("%w: run %s", ErrNoPending, runID)
	}
	if p.decision != nil {
		return Decision{}, fmt.Errorf("%w: request %s", ErrAlreadyResolved, p.request.ID)
	}
	if !p.request.Expired(c.now()) {
		return Decision{}, fmt.Errorf("%w: deadline not reached for run %s", ErrNoDecision, runID)
	}

	decision := Decision{
		Subject:     p.request.Subject,
		Action:      fallback,
		Synthesized: true,
	}
	p.decision = &decision
	p.request.Status = StatusExpired
	return decision, nil
}

// Consume removes the run's request and returns its decision.
//
// Called by the orchestrator when re-entering the graph; after Consume the
// pause instance is gone and any further Decide calls for its request ID
// fail. Returns ErrNoDecision if no decision has been posted yet.
func (c *Controller) Consume(runID string) (*Request, Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, exists := c.pending[runID]
	if !exists {
		return nil, Decision{}, fmt.Errorf("%w: run %s", ErrNoPending, runID)
	}
	if p.decision == nil {
		return nil, Decision{}, fmt.Errorf("%w: run %s", ErrNoDecision, runID)
	}

	delete(c.pending, runID)
	return p.request, *p.decision, nil
}

// Discard drops the run's pending request without consuming a decision.
// Used when a run is abandoned or fails while suspended.
func (c *Controller) Discard(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, runID)
}
