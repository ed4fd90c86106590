// Package observe exports turn metrics through OpenTelemetry. A Prometheus
// exporter bridge makes them scrapeable on /metrics.
//
// Tests should build [Metrics] with [NewMetrics] over their own
// [metric.MeterProvider] to avoid the global provider.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"iris/internal/turn"
)

// meterName is the instrumentation scope for all iris metrics.
const meterName = "iris"

// Metrics holds the metric instruments. It implements [turn.Observer].
type Metrics struct {
	// StageDuration is time spent per turn state. Attribute: stage.
	StageDuration metric.Float64Histogram

	// Turns counts finished turns. Attribute: outcome.
	Turns metric.Int64Counter

	// WakeDetections counts wake events. Attribute: keyword (index).
	WakeDetections metric.Int64Counter

	// DialogueFallbacks counts replies replaced by the fallback text.
	DialogueFallbacks metric.Int64Counter
}

// latencyBuckets in seconds. Idle and capture stages run much longer than
// network stages, hence the wide tail.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("iris.stage.duration",
		metric.WithDescription("Time spent in each turn stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("iris.turns",
		metric.WithDescription("Finished turns by outcome."),
	); err != nil {
		return nil, err
	}
	if met.WakeDetections, err = m.Int64Counter("iris.wake.detections",
		metric.WithDescription("Wake word detections."),
	); err != nil {
		return nil, err
	}
	if met.DialogueFallbacks, err = m.Int64Counter("iris.dialogue.fallbacks",
		metric.WithDescription("Replies substituted with the fallback text."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// Observe records one turn transition.
func (m *Metrics) Observe(e turn.Event) {
	ctx := context.Background()

	if e.State != e.Prev {
		m.StageDuration.Record(ctx, e.Elapsed.Seconds(),
			metric.WithAttributes(attribute.String("stage", e.Prev.String())))
	}
	if e.State == turn.WakeDetected {
		m.WakeDetections.Add(ctx, 1, metric.WithAttributes(attribute.Int("keyword", e.Keyword)))
	}
	if e.Outcome != turn.Pending {
		m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", e.Outcome.String())))
		if e.Outcome == turn.Fallback {
			m.DialogueFallbacks.Add(ctx, 1)
		}
	}
}
