package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/coursegraph/engine/checkpoint"
	"github.com/tailored-agentic-units/coursegraph/engine/progress"
	"github.com/tailored-agentic-units/coursegraph/engine/review"
	"github.com/tailored-agentic-units/coursegraph/observability"
)

// Run starts a new run of the graph with the given initial state and steps
// it until a terminal stage, a suspension, or a failure.
//
// An empty runID generates one. The returned error is nil for every outcome
// the run itself can absorb — including stage failures, which surface as a
// Failed result — and non-nil only for caller mistakes (duplicate run,
// invalid graph) and checkpoint store failures, which are fatal because an
// unpersisted run cannot be resumed.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (RunResult[S], error) {
	if err := e.Validate(); err != nil {
		return RunResult[S]{}, fmt.Errorf("graph validation failed: %w", err)
	}

	if runID == "" {
		runID = uuid.New().String()
	}

	if _, err := e.store.Load(runID); err == nil {
		return RunResult[S]{}, fmt.Errorf("%w: %s", ErrRunExists, runID)
	} else if !errors.Is(err, checkpoint.ErrNotFound) {
		return RunResult[S]{}, fmt.Errorf("failed to check for existing run: %w", err)
	}

	rec := checkpoint.Record[S]{
		RunID:     runID,
		Status:    checkpoint.StatusRunning,
		State:     initial.Clone(),
		Retries:   make(map[string]int),
		Timestamp: time.Now(),
	}

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventRunStart,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    e.cfg.Name,
		Data: map[string]any{
			"run_id": runID,
			"entry":  e.entry,
			"stages": len(e.stages),
		},
	})

	return e.loop(ctx, &rec, e.entry)
}

// Resume applies a posted decision to a suspended run and re-enters the
// graph at the stage the decision determines: forward on approve or
// continue, back to the generating stage on reject.
//
// Exactly one decision is honored per pause; a late or duplicate decision
// returns review.ErrAlreadyResolved with the run untouched.
func (e *Engine[S]) Resume(ctx context.Context, runID string, decision review.Decision) (RunResult[S], error) {
	rec, err := e.load(runID)
	if err != nil {
		return RunResult[S]{}, err
	}

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventCheckpointLoad,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    e.cfg.Name,
		Data: map[string]any{
			"run_id": runID,
			"stage":  rec.Stage,
			"status": string(rec.Status),
		},
	})

	if rec.Status != checkpoint.StatusSuspended || rec.Review == nil {
		return e.result(&rec), fmt.Errorf("%w: run %s is %s", ErrNotSuspended, runID, rec.Status)
	}

	e.reviews.Rehydrate(rec.Review)

	if decision.Subject == "" {
		decision.Subject = rec.Review.Subject
	}

	if err := e.reviews.Decide(rec.Review.ID, decision); err != nil {
		return e.result(&rec), err
	}

	return e.resumeConsumed(ctx, &rec)
}

// ResumeOnTimeout checks a suspended run's review deadline and, if it has
// elapsed with no posted decision, synthesizes the configured default
// decision and resumes the run. The boolean reports whether a resume took
// place.
//
// Safe to call repeatedly from a poller: before the deadline, and for runs
// that are not suspended, it returns the current result and false.
func (e *Engine[S]) ResumeOnTimeout(ctx context.Context, runID string) (RunResult[S], bool, error) {
	rec, err := e.load(runID)
	if err != nil {
		return RunResult[S]{}, false, err
	}

	if rec.Status != checkpoint.StatusSuspended || rec.Review == nil {
		return e.result(&rec), false, nil
	}

	e.reviews.Rehydrate(rec.Review)

	if !e.reviews.PollTimeout(runID) {
		return e.result(&rec), false, nil
	}

	fallback, err := review.ParseAction(e.cfg.Review.DefaultAction)
	if err != nil {
		return e.result(&rec), false, fmt.Errorf("invalid default review action: %w", err)
	}

	if _, err := e.reviews.Expire(runID, fallback); err != nil {
		// A decision raced in first; that decision drives the resume.
		if errors.Is(err, review.ErrAlreadyResolved) || errors.Is(err, review.ErrNoDecision) {
			return e.result(&rec), false, nil
		}
		return e.result(&rec), false, err
	}

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventReviewExpired,
		Level:     observability.LevelWarning,
		Timestamp: time.Now(),
		Source:    e.cfg.Name,
		Data: map[string]any{
			"run_id":  runID,
			"subject": rec.Review.Subject,
			"action":  string(fallback),
		},
	})

	result, err := e.resumeConsumed(ctx, &rec)
	return result, true, err
}

// Status reports the current persisted result of a run without advancing it.
func (e *Engine[S]) Status(runID string) (RunResult[S], error) {
	rec, err := e.load(runID)
	if err != nil {
		return RunResult[S]{}, err
	}
	return e.result(&rec), nil
}

// load rehydrates a run's checkpoint and applies the configured load check.
func (e *Engine[S]) load(runID string) (checkpoint.Record[S], error) {
	rec, err := e.store.Load(runID)
	if err != nil {
		return checkpoint.Record[S]{}, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if e.loadCheck != nil {
		if err := e.loadCheck(rec.State); err != nil {
			return checkpoint.Record[S]{}, fmt.Errorf("rejected checkpoint for run %s: %w", runID, err)
		}
	}
	return rec, nil
}

// resumeConsumed consumes the decision held by the controller and re-enters
// the loop at the stage it determines. rec.Stage is the gate stage that
// suspended the run, so its ReviewSpec names both directions.
func (e *Engine[S]) resumeConsumed(ctx context.Context, rec *checkpoint.Record[S]) (RunResult[S], error) {
	_, decision, err := e.reviews.Consume(rec.RunID)
	if err != nil {
		return e.result(rec), err
	}

	gate, exists := e.stages[rec.Stage]
	if !exists || gate.review == nil {
		return e.fail(ctx, rec, rec.Stage,
			fmt.Errorf("suspended at stage %s which has no review spec", rec.Stage))
	}
	spec := gate.review

	rec.Review = nil
	rec.State = e.applyDecision(rec.State.Clone(), decision)

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventRunResume,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    e.cfg.Name,
		Data: map[string]any{
			"run_id":      rec.RunID,
			"subject":     decision.Subject,
			"action":      string(decision.Action),
			"synthesized": decision.Synthesized,
		},
	})

	if decision.Action == review.ActionReject {
		if rec.Retries == nil {
			rec.Retries = make(map[string]int)
		}
		rec.Retries[spec.RetryStage]++
		count := rec.Retries[spec.RetryStage]

		e.observer.OnEvent(ctx, observability.Event{
			Type:      EventStageRetry,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    e.cfg.Name,
			Data: map[string]any{
				"run_id":      rec.RunID,
				"stage":       spec.RetryStage,
				"retry_count": count,
				"retry_limit": e.cfg.RetryLimit,
			},
		})

		if count > e.cfg.RetryLimit {
			return e.fail(ctx, rec, spec.RetryStage,
				fmt.Errorf("%w: stage %s rejected %d times (limit %d)",
					ErrRetryLimit, spec.RetryStage, count, e.cfg.RetryLimit))
		}

		rec.Status = checkpoint.StatusRunning
		return e.loop(ctx, rec, spec.RetryStage)
	}

	// Approve and continue-as-is route identically: forward.
	rec.Status = checkpoint.StatusRunning
	return e.loop(ctx, rec, spec.ResumeStage)
}

// loop is the iterative execution engine: pop current stage, invoke it,
// checkpoint, evaluate the outgoing edge, repeat until a terminal stage,
// a suspension, or a failure.
func (e *Engine[S]) loop(ctx context.Context, rec *checkpoint.Record[S], current string) (RunResult[S], error) {
	iterations := 0

	for {
		// Cooperative cancellation between stages.
		if err := ctx.Err(); err != nil {
			return e.fail(ctx, rec, current, fmt.Errorf("run cancelled: %w", err))
		}

		iterations++
		if iterations > e.cfg.MaxIterations {
			return e.fail(ctx, rec, current,
				fmt.Errorf("max iterations (%d) exceeded", e.cfg.MaxIterations))
		}

		st, exists := e.stages[current]
		if !exists {
			return e.fail(ctx, rec, current, fmt.Errorf("stage %s not found", current))
		}

		e.emitProgress(ctx, rec.RunID, current, progress.StatusStarted, "")
		e.observer.OnEvent(ctx, observability.Event{
			Type:      EventStageStart,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    e.cfg.Name,
			Data: map[string]any{
				"run_id":    rec.RunID,
				"stage":     current,
				"iteration": iterations,
			},
		})

		newState, err := st.fn(ctx, rec.State.Clone())

		e.observer.OnEvent(ctx, observability.Event{
			Type:      EventStageComplete,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    e.cfg.Name,
			Data: map[string]any{
				"run_id":    rec.RunID,
				"stage":     current,
				"iteration": iterations,
				"error":     err != nil,
			},
		})

		if err != nil {
			return e.fail(ctx, rec, current, fmt.Errorf("stage %s: %w", current, err))
		}

		rec.State = newState
		rec.Stage = current
		rec.Timestamp = time.Now()

		if st.terminal {
			rec.Status = checkpoint.StatusCompleted
			if err := e.save(ctx, rec); err != nil {
				return e.result(rec), err
			}
			e.emitProgress(ctx, rec.RunID, current, progress.StatusCompleted, "run completed")

			e.observer.OnEvent(ctx, observability.Event{
				Type:      EventRunComplete,
				Level:     observability.LevelInfo,
				Timestamp: time.Now(),
				Source:    e.cfg.Name,
				Data: map[string]any{
					"run_id":     rec.RunID,
					"terminal":   current,
					"iterations": iterations,
				},
			})

			result := e.result(rec)
			if !e.cfg.Checkpoint.Preserve {
				e.store.Delete(rec.RunID)
			}
			return result, nil
		}

		if err := e.save(ctx, rec); err != nil {
			return e.result(rec), err
		}
		e.emitProgress(ctx, rec.RunID, current, progress.StatusCompleted, "")

		next := st.next
		if st.route != nil {
			next = st.route(rec.State)
			e.observer.OnEvent(ctx, observability.Event{
				Type:      EventRouteEvaluate,
				Level:     observability.LevelVerbose,
				Timestamp: time.Now(),
				Source:    e.cfg.Name,
				Data: map[string]any{
					"run_id": rec.RunID,
					"from":   current,
					"to":     next,
				},
			})
		}

		if next == AwaitReview {
			return e.suspend(ctx, rec, st)
		}

		if _, exists := e.stages[next]; !exists {
			return e.fail(ctx, rec, current,
				fmt.Errorf("no valid transition from stage %s to %s", current, next))
		}

		current = next
	}
}

// suspend establishes the pause for a stage that routed to AwaitReview and
// persists the run as Suspended before returning control to the caller.
func (e *Engine[S]) suspend(ctx context.Context, rec *checkpoint.Record[S], gate *stage[S]) (RunResult[S], error) {
	if gate.review == nil {
		return e.fail(ctx, rec, gate.name,
			fmt.Errorf("stage %s routed to review without a review spec", gate.name))
	}
	spec := gate.review

	ttl := spec.TTL
	if ttl == 0 {
		ttl = e.cfg.Review.TTL()
	}
	var deadline time.Time
	if ttl > 0 {
		deadline = time.Now().Add(ttl)
	}

	var payload any
	if spec.Payload != nil {
		payload = spec.Payload(rec.State)
	}

	req, err := e.reviews.Pause(rec.RunID, spec.Subject, payload, deadline)
	if err != nil {
		return e.fail(ctx, rec, gate.name, fmt.Errorf("failed to pause run: %w", err))
	}

	rec.Status = checkpoint.StatusSuspended
	rec.Review = req
	rec.Timestamp = time.Now()

	if err := e.save(ctx, rec); err != nil {
		e.reviews.Discard(rec.RunID)
		return e.result(rec), err
	}

	e.emitProgress(ctx, rec.RunID, gate.name, progress.StatusAwaitingReview, spec.Subject)
	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventRunSuspend,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    e.cfg.Name,
		Data: map[string]any{
			"run_id":     rec.RunID,
			"stage":      gate.name,
			"subject":    spec.Subject,
			"request_id": req.ID,
		},
	})

	return e.result(rec), nil
}

// fail records the error, drives the run to the Failed terminal state, and
// persists the final record. Failed results return a nil error: failures
// never unwind past the orchestrator boundary.
func (e *Engine[S]) fail(ctx context.Context, rec *checkpoint.Record[S], stageName string, cause error) (RunResult[S], error) {
	rec.Errors = append(rec.Errors, cause.Error())
	rec.Status = checkpoint.StatusFailed
	rec.Review = nil
	rec.Timestamp = time.Now()
	e.reviews.Discard(rec.RunID)

	// Best-effort: the last good checkpoint remains if this save fails.
	e.store.Save(*rec)

	e.emitProgress(ctx, rec.RunID, stageName, progress.StatusFailed, cause.Error())
	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventRunFailed,
		Level:     observability.LevelError,
		Timestamp: time.Now(),
		Source:    e.cfg.Name,
		Data: map[string]any{
			"run_id": rec.RunID,
			"stage":  stageName,
			"error":  cause.Error(),
		},
	})

	return e.result(rec), nil
}

// save persists the record; failures are fatal to the run.
func (e *Engine[S]) save(ctx context.Context, rec *checkpoint.Record[S]) error {
	if err := e.store.Save(*rec); err != nil {
		rec.Errors = append(rec.Errors, err.Error())
		rec.Status = checkpoint.StatusFailed
		return fmt.Errorf("%w: run %s at stage %s: %w", ErrCheckpoint, rec.RunID, rec.Stage, err)
	}

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventCheckpointSave,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    e.cfg.Name,
		Data: map[string]any{
			"run_id": rec.RunID,
			"stage":  rec.Stage,
			"status": string(rec.Status),
		},
	})
	return nil
}

func (e *Engine[S]) emitProgress(ctx context.Context, runID, stage string, status progress.Status, detail string) {
	e.sink.Emit(ctx, progress.Event{
		RunID:     runID,
		Stage:     stage,
		Status:    status,
		Timestamp: time.Now(),
		Detail:    detail,
	})
}

func (e *Engine[S]) result(rec *checkpoint.Record[S]) RunResult[S] {
	result := RunResult[S]{
		RunID:  rec.RunID,
		Status: rec.Status,
		State:  rec.State.Clone(),
		Review: rec.Review,
	}
	if len(rec.Errors) > 0 {
		result.Errors = append([]string(nil), rec.Errors...)
	}
	return result
}
