package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegraph_events_total",
			Help: "Total number of engine events by type and source",
		},
		[]string{"type", "source"},
	)

	errorEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegraph_error_events_total",
			Help: "Total number of error-level engine events by source",
		},
		[]string{"source"},
	)
)

// PrometheusObserver exports engine events as Prometheus counters.
//
// Every event increments coursegraph_events_total labeled by event type and
// source; events at error severity additionally increment
// coursegraph_error_events_total. The counters use the default Prometheus
// registerer, so exposing them is a matter of mounting promhttp.Handler()
// in whatever process embeds the engine.
//
// Example:
//
//	observability.RegisterObserver("prometheus", observability.NewPrometheusObserver())
//
//	cfg := config.DefaultGraphConfig("course-builder")
//	cfg.Observer = "prometheus"
type PrometheusObserver struct{}

// NewPrometheusObserver creates a PrometheusObserver. The underlying metric
// vectors are package-level and shared across instances.
func NewPrometheusObserver() *PrometheusObserver {
	return &PrometheusObserver{}
}

func (o *PrometheusObserver) OnEvent(ctx context.Context, event Event) {
	eventsTotal.WithLabelValues(string(event.Type), event.Source).Inc()
	if event.Level >= LevelError {
		errorEventsTotal.WithLabelValues(event.Source).Inc()
	}
}
