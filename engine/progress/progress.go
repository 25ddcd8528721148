// Package progress defines the append-only event stream the orchestrator
// emits on every stage transition.
//
// Delivery is best-effort by contract: sinks never return errors and must
// never block the run. A sink that cannot write (full disk, closed pipe)
// drops the event.
package progress

import (
	"context"
	"time"
)

// Status is the stage transition being reported.
type Status string

const (
	StatusStarted        Status = "started"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusAwaitingReview Status = "awaiting_review"
)

// Event is one line of the progress stream, ordered by emission time.
type Event struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// Sink consumes progress events. Implementations must be safe for
// concurrent use across runs.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards all events.
type NoOpSink struct{}

func (NoOpSink) Emit(ctx context.Context, event Event) {}

// MultiSink forwards events to several sinks in order.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a MultiSink over all non-nil sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &MultiSink{sinks: filtered}
}

func (m *MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m.sinks {
		s.Emit(ctx, event)
	}
}
