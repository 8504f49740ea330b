// Package daemon runs the registry watcher and the queue worker on a schedule.
package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/ssuji15/docbuilder/internal/service/logger"
)

type Enqueuer interface {
	Run(ctx context.Context) (int, error)
}

type Worker interface {
	RunOnce(ctx context.Context) (bool, error)
}

type Intervals struct {
	Enqueue time.Duration
	Worker  time.Duration
}

type Daemon struct {
	scheduler gocron.Scheduler
	enqueuer  Enqueuer
	worker    Worker
	intervals Intervals
}

func New(enq Enqueuer, w Worker, intervals Intervals) (*Daemon, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Daemon{scheduler: s, enqueuer: enq, worker: w, intervals: intervals}, nil
}

// Start schedules both cycles and starts the scheduler. ctx bounds every
// scheduled run; cancel it before Stop to interrupt a running build.
func (d *Daemon) Start(ctx context.Context) error {
	if _, err := d.scheduler.NewJob(
		gocron.DurationJob(d.intervals.Enqueue),
		gocron.NewTask(d.enqueue, ctx),
		gocron.WithName("enqueue"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	); err != nil {
		return fmt.Errorf("failed to schedule enqueue job: %w", err)
	}
	// One worker job at a time: a tick that fires while a build runs is dropped.
	if _, err := d.scheduler.NewJob(
		gocron.DurationJob(d.intervals.Worker),
		gocron.NewTask(d.drain, ctx),
		gocron.WithName("build"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("failed to schedule build job: %w", err)
	}

	logger.Log.Info().
		Dur("enqueue_interval", d.intervals.Enqueue).
		Dur("worker_interval", d.intervals.Worker).
		Msg("starting scheduler")
	d.scheduler.Start()
	return nil
}

// Stop waits for running jobs and shuts the scheduler down.
func (d *Daemon) Stop() error {
	logger.Log.Info().Msg("stopping scheduler")
	return d.scheduler.Shutdown()
}

func (d *Daemon) enqueue(ctx context.Context) {
	n, err := d.enqueuer.Run(ctx)
	if err != nil {
		logger.Log.Error().Err(err).Msg("enqueue cycle failed")
		return
	}
	if n > 0 {
		logger.Log.Info().Int("count", n).Msg("enqueued releases")
	}
}

// drain builds queue entries until the queue is empty, ctx is done or claiming
// fails.
func (d *Daemon) drain(ctx context.Context) {
	for ctx.Err() == nil {
		built, err := d.worker.RunOnce(ctx)
		if err != nil {
			logger.Log.Error().Err(err).Msg("worker cycle failed")
			return
		}
		if !built {
			return
		}
	}
}
