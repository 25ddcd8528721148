package graph

import "github.com/tailored-agentic-units/coursegraph/observability"

// Orchestrator execution events
const (
	EventRunStart      observability.EventType = "run.start"
	EventRunComplete   observability.EventType = "run.complete"
	EventRunFailed     observability.EventType = "run.failed"
	EventRunSuspend    observability.EventType = "run.suspend"
	EventRunResume     observability.EventType = "run.resume"
	EventStageStart    observability.EventType = "stage.start"
	EventStageComplete observability.EventType = "stage.complete"
	EventRouteEvaluate observability.EventType = "route.evaluate"
	EventStageRetry    observability.EventType = "stage.retry"
	EventReviewExpired observability.EventType = "review.expired"

	EventCheckpointSave observability.EventType = "checkpoint.save"
	EventCheckpointLoad observability.EventType = "checkpoint.load"
)
