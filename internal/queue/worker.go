package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ssuji15/docbuilder/internal/job_tracer"
	"github.com/ssuji15/docbuilder/internal/metrics"
	"github.com/ssuji15/docbuilder/internal/service/logger"
	"github.com/ssuji15/docbuilder/internal/util"
	"github.com/ssuji15/docbuilder/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Builder builds the documentation of one release.
type Builder interface {
	Build(ctx context.Context, name, version string) (model.BuildStatus, error)
}

// Publisher receives build outcomes. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, ev model.BuildEvent) error
}

type Worker struct {
	queue     Queue
	builder   Builder
	publisher Publisher
	recorder  metrics.Recorder
	heartbeat time.Duration
}

func NewWorker(q Queue, b Builder, p Publisher, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Worker{queue: q, builder: b, publisher: p, recorder: recorder}
}

// WithHeartbeat renews the claim on the entry being built every interval, so
// a build that outlives one lease is not claimed by another worker. Pick an
// interval well below the lease. Zero disables renewal.
func (w *Worker) WithHeartbeat(interval time.Duration) *Worker {
	w.heartbeat = interval
	return w
}

// RunOnce builds the next eligible entry. It reports false when the queue had
// nothing to offer. Build failures are recorded on the entry and never
// returned; the only error comes from claiming an entry.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	entry, err := w.queue.ClaimNext(ctx)
	if errors.Is(err, ErrQueueEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "Worker/RunOnce")
	defer span.End()
	span.AddEvent("queue.context",
		trace.WithAttributes(
			attribute.String("name", entry.Name),
			attribute.String("version", entry.Version),
			attribute.Int64("queue_id", entry.ID),
		),
	)

	ctx, log := logger.ForPackage(ctx, entry.Name, entry.Version)
	log = log.With().Int64("queue_id", entry.ID).Int("attempt", entry.Attempt).Logger()
	ctx = logger.WithContext(ctx, log)

	stop := w.keepClaimed(ctx, entry.ID)
	start := time.Now()
	status, buildErr := w.builder.Build(ctx, entry.Name, entry.Version)
	stop()
	if buildErr != nil {
		status = model.StatusFailed
		util.RecordSpanError(span, buildErr)
	}
	w.recorder.ObserveBuildDuration(string(status), time.Since(start))

	switch status {
	case model.StatusFailed:
		if err := w.queue.RecordFailure(ctx, entry.ID); err != nil {
			log.Error().Err(err).Msg("failed to record build failure")
		}
		if buildErr == nil {
			buildErr = fmt.Errorf("default target build failed")
		}
		log.Error().Err(buildErr).Msg("failed to build package")
		w.recorder.IncQueueOutcome(metrics.OutcomeFailed)
	default:
		if err := w.queue.RecordSuccess(ctx, entry.ID); err != nil {
			log.Warn().Err(err).Msg("failed to delete package from the queue")
		}
		log.Info().Str("status", string(status)).Msg("package processed")
		w.recorder.IncQueueOutcome(metrics.OutcomeLabel(status))
	}

	w.publish(ctx, entry, status, buildErr)
	return true, nil
}

// keepClaimed renews the claim on id until the returned function is called.
// The function waits for the renewal goroutine to exit.
func (w *Worker) keepClaimed(ctx context.Context, id int64) func() {
	if w.heartbeat <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(w.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.queue.ExtendClaim(ctx, id); err != nil && ctx.Err() == nil {
					logger.Ctx(ctx).Warn().Err(err).Msg("failed to extend queue claim")
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (w *Worker) publish(ctx context.Context, entry *model.QueueEntry, status model.BuildStatus, buildErr error) {
	if w.publisher == nil {
		return
	}
	ev := model.BuildEvent{
		Name:     entry.Name,
		Version:  entry.Version,
		Status:   status,
		Attempt:  entry.Attempt,
		Finished: time.Now().UTC(),
	}
	if buildErr != nil {
		ev.Error = buildErr.Error()
	}
	if err := w.publisher.Publish(ctx, ev); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to publish build event")
	}
}
