package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ssuji15/docbuilder/internal/config"
	"github.com/ssuji15/docbuilder/internal/daemon"
	"github.com/ssuji15/docbuilder/internal/db"
	"github.com/ssuji15/docbuilder/internal/queue"
	"github.com/ssuji15/docbuilder/internal/registry"
	"github.com/ssuji15/docbuilder/internal/service/logger"
	"github.com/ssuji15/docbuilder/internal/web"
)

type MigrateCmd struct{}

func (c *MigrateCmd) Run(cli *CLI) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}
	logger.Init(cfg.SERVICE_NAME, cli.logLevel(cfg.LOG_LEVEL))

	pg, err := config.GetPostgresConfig()
	if err != nil {
		return err
	}
	if err := db.Migrate(pg.URL); err != nil {
		return err
	}
	logger.Log.Info().Msg("database migrated")
	return nil
}

type EnqueueCmd struct{}

func (c *EnqueueCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := newApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.close()

	q, _, err := a.queue()
	if err != nil {
		return err
	}
	enq, err := a.enqueuer(q)
	if err != nil {
		return err
	}
	n, err := enq.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("enqueued %d releases\n", n)
	return nil
}

type QueueCountCmd struct{}

func (c *QueueCountCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := newApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.close()

	q, _, err := a.queue()
	if err != nil {
		return err
	}
	n, err := q.CountEligible(ctx)
	if err != nil {
		return err
	}
	fmt.Println(n)
	return nil
}

type BuildNextCmd struct{}

func (c *BuildNextCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := newApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.close()

	q, qcfg, err := a.queue()
	if err != nil {
		return err
	}
	p, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	defer p.saveCompletion()
	pub, err := a.publisher()
	if err != nil {
		return err
	}

	built, err := queue.NewWorker(q, p.builder, pub, a.recorder).
		WithHeartbeat(qcfg.CLAIM_LEASE / 3).
		RunOnce(ctx)
	if err != nil {
		return err
	}
	if !built {
		fmt.Println("queue is empty")
	}
	return nil
}

type BuildCmd struct {
	Name    string `arg:"" help:"Package name"`
	Version string `arg:"" help:"Package version"`
}

func (c *BuildCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := newApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	defer p.saveCompletion()

	status, err := p.builder.Build(ctx, c.Name, c.Version)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s: %s\n", c.Name, c.Version, status)
	return nil
}

type BuildWorldCmd struct{}

func (c *BuildWorldCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := newApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	defer p.saveCompletion()

	index, err := registry.OpenIndex(a.builder.INDEX_PATH, a.builder.INDEX_BRANCH)
	if err != nil {
		return err
	}
	err = p.builder.BuildWorld(ctx, index)
	if errors.Is(err, context.Canceled) {
		logger.Log.Info().Msg("build-world interrupted")
		return nil
	}
	return err
}

type AddEssentialFilesCmd struct{}

func (c *AddEssentialFilesCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := newApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	v, err := p.toolchain.Detect(ctx)
	if err != nil {
		return err
	}
	return p.refresher.Refresh(ctx, v)
}

type DaemonCmd struct {
	NoEnqueue bool `help:"Only build the queue, do not watch the registry"`
}

func (c *DaemonCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := newApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.close()

	q, qcfg, err := a.queue()
	if err != nil {
		return err
	}
	p, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	defer p.saveCompletion()
	pub, err := a.publisher()
	if err != nil {
		return err
	}

	var enq daemon.Enqueuer = noopEnqueuer{}
	if !c.NoEnqueue {
		if enq, err = a.enqueuer(q); err != nil {
			return err
		}
	}
	w := queue.NewWorker(q, p.builder, pub, a.recorder).WithHeartbeat(qcfg.CLAIM_LEASE / 3)
	d, err := daemon.New(enq, w, daemon.Intervals{
		Enqueue: qcfg.ENQUEUE_INTERVAL,
		Worker:  qcfg.WORKER_INTERVAL,
	})
	if err != nil {
		return err
	}

	mcfg, err := config.GetMetricsConfig()
	if err != nil {
		return err
	}
	var srv *http.Server
	if mcfg.ADDR != "" {
		var metricsHandler http.Handler
		if a.prom != nil {
			metricsHandler = a.prom.Handler()
		}
		srv = &http.Server{
			Addr:         mcfg.ADDR,
			Handler:      web.NewServer(q, metricsHandler).Router(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Log.Info().Str("addr", mcfg.ADDR).Msg("status server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Error().Err(err).Msg("status server failed")
			}
		}()
	}

	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	logger.Log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.Stop(); err != nil {
			logger.Log.Error().Err(err).Msg("scheduler shutdown failed")
		}
	}()
	if srv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Log.Error().Err(err).Msg("status server shutdown failed")
			}
		}()
	}
	wg.Wait()
	return nil
}

type noopEnqueuer struct{}

func (noopEnqueuer) Run(context.Context) (int, error) { return 0, nil }
