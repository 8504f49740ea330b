package queue

import (
	"context"
	"fmt"

	"github.com/ssuji15/docbuilder/internal/metrics"
	"github.com/ssuji15/docbuilder/internal/service/logger"
	"github.com/ssuji15/docbuilder/model"
)

// ChangeFeed yields the registry changes observed since the previous call.
type ChangeFeed interface {
	FetchChanges(ctx context.Context) ([]model.ChangeEvent, error)
}

type Enqueuer struct {
	queue    Queue
	feed     ChangeFeed
	recorder metrics.Recorder
}

func NewEnqueuer(q Queue, feed ChangeFeed, recorder metrics.Recorder) *Enqueuer {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Enqueuer{queue: q, feed: feed, recorder: recorder}
}

// Run fetches one batch of changes from the feed and enqueues it.
func (e *Enqueuer) Run(ctx context.Context) (int, error) {
	changes, err := e.feed.FetchChanges(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch registry changes: %w", err)
	}
	n := e.EnqueueChanges(ctx, changes)
	if count, err := e.queue.CountEligible(ctx); err == nil {
		e.recorder.SetQueueEligible(count)
	}
	return n, nil
}

// EnqueueChanges walks the batch from its last element to its first so that
// older releases of a package are queued ahead of newer ones. Yanked releases
// are dropped. Failed inserts are logged and skipped.
func (e *Enqueuer) EnqueueChanges(ctx context.Context, changes []model.ChangeEvent) int {
	log := logger.FromContext(ctx)
	added := 0
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		if c.Kind == model.ChangeYanked {
			continue
		}
		if err := e.queue.Enqueue(ctx, c.Name, c.Version, 0); err != nil {
			log.Error().Err(err).Str("name", c.Name).Str("version", c.Version).Msg("failed to add package into the queue")
			continue
		}
		log.Debug().Str("name", c.Name).Str("version", c.Version).Msg("package added into the queue")
		added++
	}
	e.recorder.AddEnqueued(added)
	return added
}
