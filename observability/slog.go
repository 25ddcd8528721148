package observability

import (
	"context"
	"log/slog"
)

// SlogObserver writes engine events to a structured logger.
//
// Each event is logged at the slog level derived from its severity, carrying
// the event type, source, and metadata as structured attributes. This enables
// debugging and monitoring of workflow execution through standard log
// aggregation tooling.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	observability.RegisterObserver("production", observability.NewSlogObserver(logger))
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates a SlogObserver with the specified logger.
//
// Pass slog.Default() for the default logger configuration, or a custom
// handler to control output destination and level filtering.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	return &SlogObserver{
		logger: logger,
	}
}

// OnEvent logs the event with structured fields.
//
// The context is propagated for cancellation and tracing integration.
func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	o.logger.LogAttrs(
		ctx,
		event.Level.SlogLevel(),
		"Event",
		slog.String("type", string(event.Type)),
		slog.String("source", event.Source),
		slog.Time("timestamp", event.Timestamp),
		slog.Any("data", event.Data),
	)
}
