package metrics

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OtelRecorder forwards observations to the global meter provider, exported
// over OTLP by job_tracer.InitTracer.
type OtelRecorder struct {
	queueOutcomes metric.Int64Counter
	buildDuration metric.Float64Histogram
	enqueued      metric.Int64Counter
	eligible      atomic.Int64
}

func NewOtelRecorder() (*OtelRecorder, error) {
	meter := otel.Meter("docbuilder")
	r := &OtelRecorder{}

	var err error
	r.queueOutcomes, err = meter.Int64Counter(
		"docbuilder.queue.outcomes",
		metric.WithDescription("Queue worker cycles by outcome"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue outcome counter: %w", err)
	}
	r.buildDuration, err = meter.Float64Histogram(
		"docbuilder.build.duration",
		metric.WithDescription("Duration of one package build"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create build duration histogram: %w", err)
	}
	r.enqueued, err = meter.Int64Counter(
		"docbuilder.enqueued",
		metric.WithDescription("Releases added to the build queue"),
		metric.WithUnit("{release}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create enqueued counter: %w", err)
	}
	_, err = meter.Int64ObservableGauge(
		"docbuilder.queue.eligible",
		metric.WithDescription("Queue entries still eligible for a build"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(r.eligible.Load())
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create eligible gauge: %w", err)
	}
	return r, nil
}

func (r *OtelRecorder) IncQueueOutcome(outcome OutcomeLabel) {
	r.queueOutcomes.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}

func (r *OtelRecorder) ObserveBuildDuration(status string, d time.Duration) {
	r.buildDuration.Record(context.Background(), d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

func (r *OtelRecorder) AddEnqueued(n int) {
	r.enqueued.Add(context.Background(), int64(n))
}

func (r *OtelRecorder) SetQueueEligible(n int64) {
	r.eligible.Store(n)
}
