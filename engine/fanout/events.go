package fanout

import "github.com/tailored-agentic-units/coursegraph/observability"

// Fan-out execution events
const (
	EventFanOutStart    observability.EventType = "fanout.start"
	EventFanOutComplete observability.EventType = "fanout.complete"
	EventBatchStart     observability.EventType = "fanout.batch.start"
	EventBatchComplete  observability.EventType = "fanout.batch.complete"
	EventItemStart      observability.EventType = "fanout.item.start"
	EventItemComplete   observability.EventType = "fanout.item.complete"
)
