package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ssuji15/docbuilder/internal/component"
	"github.com/ssuji15/docbuilder/internal/config"
	"github.com/ssuji15/docbuilder/internal/db"
	"github.com/ssuji15/docbuilder/internal/db/repository"
	"github.com/ssuji15/docbuilder/internal/docbuilder"
	"github.com/ssuji15/docbuilder/internal/events"
	"github.com/ssuji15/docbuilder/internal/job_tracer"
	"github.com/ssuji15/docbuilder/internal/metrics"
	"github.com/ssuji15/docbuilder/internal/queue"
	"github.com/ssuji15/docbuilder/internal/registry"
	"github.com/ssuji15/docbuilder/internal/service/logger"
	"github.com/ssuji15/docbuilder/internal/toolchain"
	"github.com/ssuji15/docbuilder/model"
)

// app owns the process wide clients of one command invocation.
type app struct {
	cfg      *config.Config
	builder  *config.BuilderConfig
	db       *db.DB
	recorder metrics.Recorder
	prom     *metrics.PrometheusRecorder
	closers  []func()
}

func newApp(ctx context.Context, cli *CLI) (*app, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.SERVICE_NAME, cli.logLevel(cfg.LOG_LEVEL))

	a := &app{cfg: cfg}
	if cfg.TRACE_URL != "" {
		shutdown, err := job_tracer.InitTracer(ctx, cfg.SERVICE_NAME, version, cfg.TRACE_URL)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { shutdown(context.WithoutCancel(ctx)) })
	}

	a.builder, err = config.GetBuilderConfig()
	if err != nil {
		a.close()
		return nil, err
	}

	pg, err := config.GetPostgresConfig()
	if err != nil {
		a.close()
		return nil, err
	}
	a.db, err = db.New(ctx, pg.URL)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	a.onClose(a.db.Close)

	a.recorder, a.prom, err = component.GetRecorder(cfg.METRICS_TYPE)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// close releases clients in reverse order of creation.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) queue() (*repository.QueueRepository, *config.QueueConfig, error) {
	qcfg, err := config.GetQueueConfig()
	if err != nil {
		return nil, nil, err
	}
	return repository.NewQueueRepository(a.db, qcfg.CLAIM_LEASE), qcfg, nil
}

func (a *app) enqueuer(q queue.Queue) (*queue.Enqueuer, error) {
	if err := a.builder.CheckPaths(); err != nil {
		return nil, err
	}
	feed, err := registry.NewChangeFeed(a.builder.INDEX_PATH, a.builder.INDEX_BRANCH, true)
	if err != nil {
		return nil, err
	}
	return queue.NewEnqueuer(q, feed, a.recorder), nil
}

func (a *app) publisher() (events.Publisher, error) {
	p, err := component.GetPublisher(a.cfg.EVENTS_TYPE)
	if err != nil {
		return nil, err
	}
	a.onClose(p.Close)
	return p, nil
}

// pipeline is the fully wired build pipeline.
type pipeline struct {
	builder    *docbuilder.Builder
	toolchain  *toolchain.Manager
	refresher  *docbuilder.AssetsRefresher
	completion *docbuilder.FileCompletionCache
}

// saveCompletion checkpoints the completion cache. Failures are logged.
func (p *pipeline) saveCompletion() {
	if err := p.completion.Save(); err != nil {
		logger.Log.Warn().Err(err).Msg("failed to save completion cache")
	}
}

func (a *app) pipeline(ctx context.Context) (*pipeline, error) {
	bcfg := a.builder
	if err := bcfg.CheckPaths(); err != nil {
		return nil, err
	}
	settings, err := config.LoadBuildSettings(bcfg.SETTINGS_FILE)
	if err != nil {
		return nil, err
	}
	lcfg, err := config.GetLimitsConfig()
	if err != nil {
		return nil, err
	}
	defaults := model.BuildLimits{
		MemoryBytes: lcfg.MEMORY_BYTES,
		Networking:  lcfg.NETWORKING,
		Timeout:     lcfg.TIMEOUT,
		MaxLogBytes: lcfg.MAX_LOG_BYTES,
	}

	c, err := component.GetCache(ctx, a.cfg.CACHE_TYPE)
	if err != nil {
		return nil, err
	}
	a.onClose(func() { _ = c.Close() })

	st, err := component.GetStorage(ctx, a.cfg.STORAGE_TYPE, filepath.Join(bcfg.PREFIX, "storage"))
	if err != nil {
		return nil, err
	}
	a.onClose(st.Close)

	sb, err := component.GetSandbox(a.cfg.SANDBOX_TYPE)
	if err != nil {
		return nil, err
	}
	a.onClose(func() { _ = sb.Close() })

	configRepo := repository.NewConfigRepository(a.db)
	stored := func(ctx context.Context) (string, error) {
		var v string
		err := configRepo.Get(ctx, docbuilder.RustcVersionKey, &v)
		if errors.Is(err, repository.ErrConfigNotFound) {
			return "", nil
		}
		return v, err
	}

	runner := toolchain.NewExecRunner(bcfg.WORKSPACE)
	tc := toolchain.NewManager(bcfg.TOOLCHAIN, settings.Targets, runner, stored)
	ws := docbuilder.NewWorkspace(bcfg.WORKSPACE)
	limits := docbuilder.NewCachedLimits(c, repository.NewLimitsRepository(a.db, defaults))
	fetcher := docbuilder.NewCrateFetcher(bcfg.DOWNLOAD_URL, ws, runner, bcfg.TOOLCHAIN)
	executor := docbuilder.NewExecutor(sb, tc, docbuilder.NewCargoMetadataLoader(runner, bcfg.TOOLCHAIN), docbuilder.ExecutorConfig{
		DefaultTarget:  settings.DefaultTarget,
		DocsBaseURL:    bcfg.DOCS_BASE_URL,
		ServiceVersion: version,
		CargoHome:      runner.CargoHome,
		RustupHome:     runner.RustupHome,
	})
	refresher := docbuilder.NewAssetsRefresher(ws, fetcher, executor, limits, st, configRepo)
	tc.SetAssetsRefresher(refresher)

	completion, err := docbuilder.LoadCompletionCache(bcfg.CacheFile())
	if err != nil {
		return nil, err
	}
	skip := docbuilder.NewSkipDecider(docbuilder.SkipOptions{
		Destination:     bcfg.DESTINATION,
		SkipIfExists:    bcfg.SKIP_IF_EXISTS,
		SkipIfLogExists: bcfg.SKIP_IF_LOG_EXISTS,
	}, completion)

	b := docbuilder.NewBuilder(docbuilder.Deps{
		Skip:         skip,
		Toolchain:    tc,
		Limits:       limits,
		Workspace:    ws,
		Fetcher:      fetcher,
		Executor:     executor,
		Storage:      st,
		Publisher:    docbuilder.NewDocPublisher(bcfg.DESTINATION, st, tc),
		Releases:     repository.NewReleaseRepository(a.db),
		Completion:   completion,
		Targets:      settings.Targets,
		KeepBuildDir: bcfg.KEEP_BUILD_DIRECTORY,
	})
	logger.Log.Info().
		Str("toolchain", bcfg.TOOLCHAIN).
		Str("default_target", settings.DefaultTarget).
		Int("targets", len(settings.Targets)).
		Int("completed", completion.Len()).
		Msg("build pipeline ready")

	return &pipeline{builder: b, toolchain: tc, refresher: refresher, completion: completion}, nil
}
