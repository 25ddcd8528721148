// Package graph implements the workflow orchestrator: a directed graph of
// named stages with conditional edges, executed iteratively with a durable
// checkpoint after every completed stage.
//
// A run steps through the graph in topological order, suspends when a
// routing function returns AwaitReview, and resumes exactly where it left
// off — in the same process or after a restart — once a decision is posted
// or the review deadline elapses. Stage failures are recorded in the run's
// error list and drive the run to a Failed terminal state; the orchestrator
// itself never aborts mid-graph.
//
// Example workflow structure:
//
//	eng, err := graph.New(config.DefaultGraphConfig("builder"), store)
//	eng.AddStage("generate", generateStage)
//	eng.AddStage("validate", validateStage)
//	eng.AddStage("publish", publishStage)
//	eng.SetNext("generate", "validate")
//	eng.SetRoute("validate", routeOnVerdict)
//	eng.SetReview("validate", graph.ReviewSpec[State]{
//	    Subject:     "structure",
//	    RetryStage:  "generate",
//	    ResumeStage: "publish",
//	})
//	eng.SetEntry("generate")
//	eng.SetTerminal("publish")
//	result, err := eng.Run(ctx, runID, initial)
package graph

import (
	"fmt"

	"github.com/tailored-agentic-units/coursegraph/engine/checkpoint"
	"github.com/tailored-agentic-units/coursegraph/engine/config"
	"github.com/tailored-agentic-units/coursegraph/engine/progress"
	"github.com/tailored-agentic-units/coursegraph/engine/review"
	"github.com/tailored-agentic-units/coursegraph/observability"
)

type stage[S Cloneable[S]] struct {
	name     string
	fn       StageFunc[S]
	next     string
	route    RouteFunc[S]
	review   *ReviewSpec[S]
	terminal bool
}

// Engine executes one stage graph over shared state of type S.
//
// Stage-to-stage stepping is single-threaded per run; multiple independent
// runs may execute concurrently on one Engine, isolated by run identifier
// through the checkpoint store and review controller.
type Engine[S Cloneable[S]] struct {
	cfg           config.GraphConfig
	stages        map[string]*stage[S]
	entry         string
	observer      observability.Observer
	store         checkpoint.Store[S]
	reviews       *review.Controller
	sink          progress.Sink
	applyDecision ApplyDecisionFunc[S]
	loadCheck     func(S) error
}

// Option customizes Engine construction.
type Option[S Cloneable[S]] func(*Engine[S])

// WithObserver overrides the observer resolved from configuration.
func WithObserver[S Cloneable[S]](observer observability.Observer) Option[S] {
	return func(e *Engine[S]) {
		if observer != nil {
			e.observer = observer
		}
	}
}

// WithProgressSink sets the progress event sink (default: none).
func WithProgressSink[S Cloneable[S]](sink progress.Sink) Option[S] {
	return func(e *Engine[S]) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithController sets the review controller. Sharing one controller between
// an engine and a front end lets the front end poll pending requests and
// post decisions directly.
func WithController[S Cloneable[S]](ctrl *review.Controller) Option[S] {
	return func(e *Engine[S]) {
		if ctrl != nil {
			e.reviews = ctrl
		}
	}
}

// WithLoadCheck sets a validation hook applied to state rehydrated from the
// checkpoint store before the engine acts on it. A non-nil return rejects
// the checkpoint, so a snapshot written under an incompatible state schema
// fails loudly instead of being misread.
func WithLoadCheck[S Cloneable[S]](fn func(S) error) Option[S] {
	return func(e *Engine[S]) {
		e.loadCheck = fn
	}
}

// WithDecisionApplier sets the hook that folds review decisions into state.
// Required when any stage carries a ReviewSpec.
func WithDecisionApplier[S Cloneable[S]](fn ApplyDecisionFunc[S]) Option[S] {
	return func(e *Engine[S]) {
		e.applyDecision = fn
	}
}

// New creates an orchestrator from configuration and a checkpoint store.
//
// The store is mandatory: the engine checkpoints after every completed
// stage, and reports a stage complete only once its snapshot is durable.
// The observer is resolved from the configuration registry.
func New[S Cloneable[S]](
	cfg config.GraphConfig,
	store checkpoint.Store[S],
	opts ...Option[S],
) (*Engine[S], error) {
	if store == nil {
		return nil, fmt.Errorf("checkpoint store cannot be nil")
	}

	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}

	e := &Engine[S]{
		cfg:      cfg,
		stages:   make(map[string]*stage[S]),
		observer: observer,
		store:    store,
		reviews:  review.NewController(),
		sink:     progress.NoOpSink{},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Name returns the graph identifier for event metadata.
func (e *Engine[S]) Name() string {
	return e.cfg.Name
}

// Reviews returns the engine's review controller, the rendezvous point
// external callers use to inspect pending requests and post decisions.
func (e *Engine[S]) Reviews() *review.Controller {
	return e.reviews
}

// AddStage registers a unit of work in the graph.
//
// Stage names must be unique and must not collide with the AwaitReview
// pseudo-successor.
func (e *Engine[S]) AddStage(name string, fn StageFunc[S]) error {
	if name == "" {
		return fmt.Errorf("stage name cannot be empty")
	}

	if name == AwaitReview {
		return fmt.Errorf("stage name %s is reserved", AwaitReview)
	}

	if fn == nil {
		return fmt.Errorf("stage function cannot be nil")
	}

	if _, exists := e.stages[name]; exists {
		return fmt.Errorf("stage %s already exists", name)
	}

	e.stages[name] = &stage[S]{name: name, fn: fn}
	return nil
}

// SetNext declares an unconditional edge from one stage to its single
// successor. Both stages must exist.
func (e *Engine[S]) SetNext(from, to string) error {
	st, exists := e.stages[from]
	if !exists {
		return fmt.Errorf("stage %s does not exist", from)
	}

	if _, exists := e.stages[to]; !exists {
		return fmt.Errorf("stage %s does not exist", to)
	}

	if st.route != nil {
		return fmt.Errorf("stage %s already has a routing function", from)
	}

	st.next = to
	return nil
}

// SetRoute attaches a conditional routing function to a stage's outgoing
// edge. The function selects among named successors and may return
// AwaitReview to suspend the run.
func (e *Engine[S]) SetRoute(from string, route RouteFunc[S]) error {
	st, exists := e.stages[from]
	if !exists {
		return fmt.Errorf("stage %s does not exist", from)
	}

	if route == nil {
		return fmt.Errorf("routing function cannot be nil")
	}

	if st.next != "" {
		return fmt.Errorf("stage %s already has an unconditional successor", from)
	}

	st.route = route
	return nil
}

// SetReview attaches the review specification for a stage whose routing
// function may return AwaitReview.
func (e *Engine[S]) SetReview(name string, spec ReviewSpec[S]) error {
	st, exists := e.stages[name]
	if !exists {
		return fmt.Errorf("stage %s does not exist", name)
	}

	if spec.Subject == "" {
		return fmt.Errorf("review subject cannot be empty")
	}

	st.review = &spec
	return nil
}

// SetEntry defines the starting stage. Only one entry is allowed.
func (e *Engine[S]) SetEntry(name string) error {
	if e.entry != "" {
		return fmt.Errorf("entry already set to %s", e.entry)
	}

	if _, exists := e.stages[name]; !exists {
		return fmt.Errorf("stage %s does not exist", name)
	}

	e.entry = name
	return nil
}

// SetTerminal marks a stage as terminal: the run completes after it
// executes. Multiple terminal stages are supported.
func (e *Engine[S]) SetTerminal(name string) error {
	st, exists := e.stages[name]
	if !exists {
		return fmt.Errorf("stage %s does not exist", name)
	}

	st.terminal = true
	return nil
}

// Validate checks graph structure for configuration errors before any run:
// entry and at least one terminal stage set, every non-terminal stage has an
// outgoing edge, review specs reference existing stages, and a decision
// applier is present when any stage can suspend.
//
// Called internally by Run but exported for explicit pre-flight checks.
func (e *Engine[S]) Validate() error {
	if len(e.stages) == 0 {
		return fmt.Errorf("graph has no stages")
	}

	if e.entry == "" {
		return fmt.Errorf("entry stage not set")
	}

	hasTerminal := false
	hasReview := false
	for name, st := range e.stages {
		if st.terminal {
			hasTerminal = true
			continue
		}

		if st.next == "" && st.route == nil {
			return fmt.Errorf("stage %s has no outgoing edge and is not terminal", name)
		}

		if st.review != nil {
			hasReview = true
			if _, exists := e.stages[st.review.RetryStage]; !exists {
				return fmt.Errorf("review retry stage %s does not exist", st.review.RetryStage)
			}
			if _, exists := e.stages[st.review.ResumeStage]; !exists {
				return fmt.Errorf("review resume stage %s does not exist", st.review.ResumeStage)
			}
		}
	}

	if !hasTerminal {
		return fmt.Errorf("no terminal stage set")
	}

	if hasReview && e.applyDecision == nil {
		return fmt.Errorf("graph has review stages but no decision applier")
	}

	return nil
}
