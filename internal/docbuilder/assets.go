package docbuilder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ssuji15/docbuilder/internal/job_tracer"
	"github.com/ssuji15/docbuilder/internal/service/logger"
	"github.com/ssuji15/docbuilder/internal/storage"
	"github.com/ssuji15/docbuilder/internal/toolchain"
	"github.com/ssuji15/docbuilder/internal/util"
	"github.com/ssuji15/docbuilder/model"
)

// The dummy package is an empty library that always builds.
const (
	DummyName    = "acme-client"
	DummyVersion = "0.0.0"

	RustcVersionKey = "rustc_version"
)

// AssetFile is one toolchain-shared documentation asset.
type AssetFile struct {
	BaseName  string
	Extension string
	Versioned bool
}

// FileName is the name rustdoc gives the asset for parsedVersion.
func (a AssetFile) FileName(parsedVersion string) string {
	if a.Versioned {
		return fmt.Sprintf("%s-%s.%s", a.BaseName, parsedVersion, a.Extension)
	}
	return a.BaseName + "." + a.Extension
}

var EssentialFiles = []AssetFile{
	{"brush", "svg", true},
	{"wheel", "svg", true},
	{"down-arrow", "svg", true},
	{"dark", "css", true},
	{"light", "css", true},
	{"main", "js", true},
	{"normalize", "css", true},
	{"rustdoc", "css", true},
	{"settings", "css", true},
	{"settings", "js", true},
	{"storage", "js", true},
	{"theme", "js", true},
	{"source-script", "js", true},
	{"noscript", "css", true},
	{"rust-logo", "png", true},
	{"FiraSans-Medium", "woff", false},
	{"FiraSans-Regular", "woff", false},
	{"SourceCodePro-Regular", "woff", false},
	{"SourceCodePro-Semibold", "woff", false},
	{"SourceSerifPro-Bold.ttf", "woff", false},
	{"SourceSerifPro-Regular.ttf", "woff", false},
	{"SourceSerifPro-It.ttf", "woff", false},
}

type BuildExecutor interface {
	Execute(ctx context.Context, target string, build *BuildDir, limits model.BuildLimits) (*model.BuildResult, error)
}

type ConfigStore interface {
	Upsert(ctx context.Context, key string, value any) error
}

// AssetsRefresher publishes the shared assets of a toolchain version at the
// root of the artifact store.
type AssetsRefresher struct {
	workspace *Workspace
	fetcher   SourceFetcher
	executor  BuildExecutor
	limits    LimitsResolver
	storage   storage.Storage
	config    ConfigStore
	files     []AssetFile
}

func NewAssetsRefresher(ws *Workspace, f SourceFetcher, ex BuildExecutor, l LimitsResolver, st storage.Storage, cfg ConfigStore) *AssetsRefresher {
	return &AssetsRefresher{
		workspace: ws,
		fetcher:   f,
		executor:  ex,
		limits:    l,
		storage:   st,
		config:    cfg,
		files:     EssentialFiles,
	}
}

func (r *AssetsRefresher) Refresh(ctx context.Context, version string) (err error) {
	ctx, span := job_tracer.GetTracer().Start(ctx, "Assets/Refresh")
	defer span.End()
	defer func() {
		if err != nil {
			util.RecordSpanError(span, err)
		}
	}()

	parsed, err := toolchain.ParseVersion(version)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	log.Info().Str("rustc", version).Msg("building a dummy crate to get essential files")

	limits, err := r.limits.LimitsFor(ctx, DummyName)
	if err != nil {
		return fmt.Errorf("limits for %s: %w", DummyName, err)
	}

	build := r.workspace.BuildDir("essential-files-" + parsed)
	if err := build.Purge(); err != nil {
		return err
	}
	defer func() {
		if perr := build.Purge(); perr != nil {
			log.Warn().Err(perr).Msg("failed to purge build dir")
		}
		if perr := r.fetcher.Purge(DummyName, DummyVersion); perr != nil {
			log.Warn().Err(perr).Msg("failed to purge fetched sources")
		}
	}()

	if err := build.Prepare(); err != nil {
		return err
	}
	if err := r.fetcher.Fetch(ctx, DummyName, DummyVersion, build.SourceDir); err != nil {
		return fmt.Errorf("fetch %s %s: %w", DummyName, DummyVersion, err)
	}

	res, err := r.executor.Execute(ctx, "", build, limits)
	if err != nil {
		return err
	}
	if !res.Successful {
		return fmt.Errorf("failed to build dummy crate for %s", version)
	}

	log.Info().Str("rustc", version).Msg("copying essential files")
	staging, err := os.MkdirTemp("", "essential-files")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	source := build.DocDir(res.Target)
	for _, f := range r.files {
		name := f.FileName(parsed)
		src, dst := filepath.Join(source, name), filepath.Join(staging, name)
		if err := util.CopyFile(src, dst); err != nil {
			return fmt.Errorf("couldn't copy '%s' to '%s': %w", src, dst, err)
		}
	}

	if _, err := r.storage.PutTree(ctx, "", staging); err != nil {
		return fmt.Errorf("store essential files: %w", err)
	}
	if err := r.config.Upsert(ctx, RustcVersionKey, version); err != nil {
		return err
	}
	return nil
}
