// Package docbuilder builds the documentation of registry releases.
package docbuilder

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ssuji15/docbuilder/internal/job_tracer"
	"github.com/ssuji15/docbuilder/internal/registry"
	"github.com/ssuji15/docbuilder/internal/service/logger"
	"github.com/ssuji15/docbuilder/internal/storage"
	"github.com/ssuji15/docbuilder/internal/util"
	"github.com/ssuji15/docbuilder/model"
	"go.opentelemetry.io/otel/attribute"
)

type ToolchainManager interface {
	EnsureCurrent(ctx context.Context) error
}

type ReleaseStore interface {
	AddPackage(ctx context.Context, rec model.ReleaseRecord) (int64, error)
	AddBuild(ctx context.Context, releaseID int64, res *model.BuildResult) error
}

// ReleaseSource enumerates every release of a registry snapshot.
type ReleaseSource interface {
	Releases(fn func(registry.Release) error) error
}

const checkpointEvery = 10

type Deps struct {
	Skip       SkipDecider
	Toolchain  ToolchainManager
	Limits     LimitsResolver
	Workspace  *Workspace
	Fetcher    SourceFetcher
	Executor   BuildExecutor
	Storage    storage.Storage
	Publisher  Publisher
	Releases   ReleaseStore
	Completion CompletionCache
	// Targets are built after the default build. A target equal to the
	// default one is built again with an explicit --target.
	Targets      []string
	KeepBuildDir bool
}

type Builder struct {
	Deps
}

func NewBuilder(d Deps) *Builder {
	return &Builder{Deps: d}
}

// Build documents one release. Skipped releases have no side effects. The
// returned status reflects the default-target build; errors are
// infrastructure failures.
func (b *Builder) Build(ctx context.Context, name, version string) (model.BuildStatus, error) {
	ctx, log := logger.ForPackage(ctx, name, version)
	ctx, span := job_tracer.GetTracer().Start(ctx, "Pipeline/Build")
	defer span.End()
	span.SetAttributes(attribute.String("package.name", name), attribute.String("package.version", version))

	if !b.Skip.ShouldBuild(ctx, name, version) {
		return model.StatusSkipped, nil
	}
	defer b.Completion.Add(name, version)

	status, err := b.build(ctx, name, version)
	if err != nil {
		util.RecordSpanError(span, err)
		return model.StatusFailed, err
	}
	log.Info().Str("status", string(status)).Msg("package processed")
	return status, nil
}

func (b *Builder) build(ctx context.Context, name, version string) (model.BuildStatus, error) {
	log := logger.FromContext(ctx)

	if err := b.Toolchain.EnsureCurrent(ctx); err != nil {
		return model.StatusFailed, fmt.Errorf("update toolchain: %w", err)
	}

	log.Info().Msg("building package")
	limits, err := b.Limits.LimitsFor(ctx, name)
	if err != nil {
		return model.StatusFailed, fmt.Errorf("limits for %s: %w", name, err)
	}

	build := b.Workspace.BuildDir(util.GetBuildDirName(name, version))
	if err := build.Purge(); err != nil {
		return model.StatusFailed, err
	}
	defer b.cleanup(ctx, build, name, version)

	if err := build.Prepare(); err != nil {
		return model.StatusFailed, err
	}
	if err := b.Fetcher.Fetch(ctx, name, version, build.SourceDir); err != nil {
		return model.StatusFailed, fmt.Errorf("fetch %s %s: %w", name, version, err)
	}

	res, err := b.Executor.Execute(ctx, "", build, limits)
	if err != nil {
		return model.StatusFailed, err
	}

	var files []model.StoredFile
	hasDocs := false
	if res.Successful {
		log.Debug().Msg("adding sources into storage")
		files, err = b.Storage.PutTree(ctx, util.GetSourcesPrefix(name, version), build.SourceDir)
		if err != nil {
			return model.StatusFailed, fmt.Errorf("store sources: %w", err)
		}
		hasDocs = util.IsDir(filepath.Join(build.DocDir(res.Target), util.GetModuleName(name)))
	}

	var docTargets []string
	if hasDocs {
		docTargets, err = b.publishAll(ctx, build, name, version, res.Target, limits)
		if err != nil {
			return model.StatusFailed, err
		}
	}

	meta, err := ReadPackageMetadata(build.SourceDir)
	if err != nil {
		return model.StatusFailed, err
	}
	rid, err := b.Releases.AddPackage(ctx, model.ReleaseRecord{
		Metadata:        res.CargoMetadata,
		PackageMetadata: meta,
		Result:          res,
		Files:           files,
		DocTargets:      docTargets,
		HasDocs:         hasDocs,
		HasExamples:     util.IsDir(filepath.Join(build.SourceDir, "examples")),
		SourceDirectory: build.SourceDir,
	})
	if err != nil {
		return model.StatusFailed, err
	}
	if err := b.Releases.AddBuild(ctx, rid, res); err != nil {
		return model.StatusFailed, err
	}

	if res.Successful {
		return model.StatusSucceeded, nil
	}
	return model.StatusFailed, nil
}

// publishAll publishes the default target, rebuilds every configured target
// (the default one included) and uploads the aggregated tree. It returns the
// targets that produced docs.
func (b *Builder) publishAll(ctx context.Context, build *BuildDir, name, version, defaultTarget string, limits model.BuildLimits) ([]string, error) {
	log := logger.FromContext(ctx)

	log.Debug().Str("target", defaultTarget).Msg("adding documentation for the default target")
	if err := b.Publisher.Publish(ctx, build.TargetDir, name, version, defaultTarget, true); err != nil {
		return nil, err
	}

	var targets []string
	for _, target := range b.Targets {
		log.Debug().Str("target", target).Msg("building package for target")
		res, err := b.Executor.Execute(ctx, target, build, limits)
		if err != nil {
			return nil, err
		}
		// cargo may succeed without generating anything for some targets.
		if !res.Successful || !util.IsDir(build.DocDir(target)) {
			continue
		}
		if err := b.Publisher.Publish(ctx, build.TargetDir, name, version, target, false); err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}

	if err := b.Publisher.Upload(ctx, name, version); err != nil {
		return nil, err
	}
	return targets, nil
}

func (b *Builder) cleanup(ctx context.Context, build *BuildDir, name, version string) {
	log := logger.FromContext(ctx)
	if !b.KeepBuildDir {
		if err := build.Purge(); err != nil {
			log.Warn().Err(err).Msg("failed to purge build dir")
		}
	}
	if err := b.Fetcher.Purge(name, version); err != nil {
		log.Warn().Err(err).Msg("failed to purge fetched sources")
	}
}

// BuildWorld builds every release of src. Per-package failures are logged
// and the walk continues. The completion cache is checkpointed every tenth
// successful build.
func (b *Builder) BuildWorld(ctx context.Context, src ReleaseSource) error {
	count := 0
	return src.Releases(func(r registry.Release) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.Yanked {
			return nil
		}
		status, err := b.Build(ctx, r.Name, r.Version)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("name", r.Name).Str("version", r.Version).Msg("failed to build package")
			return nil
		}
		count++
		if status == model.StatusSucceeded && count%checkpointEvery == 0 {
			if err := b.Completion.Save(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("failed to save completion cache")
			}
		}
		return nil
	})
}
