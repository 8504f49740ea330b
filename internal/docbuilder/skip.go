package docbuilder

import (
	"context"
	"path/filepath"

	"github.com/ssuji15/docbuilder/internal/service/logger"
	"github.com/ssuji15/docbuilder/internal/util"
)

type SkipDecider interface {
	ShouldBuild(ctx context.Context, name, version string) bool
}

type SkipOptions struct {
	Destination     string
	SkipIfExists    bool
	SkipIfLogExists bool
}

// OptionsSkipDecider skips releases that are already documented or already
// recorded in the completion cache, depending on the options.
type OptionsSkipDecider struct {
	opts       SkipOptions
	completion *FileCompletionCache
}

func NewSkipDecider(opts SkipOptions, completion *FileCompletionCache) *OptionsSkipDecider {
	return &OptionsSkipDecider{opts: opts, completion: completion}
}

func (d *OptionsSkipDecider) ShouldBuild(ctx context.Context, name, version string) bool {
	log := logger.FromContext(ctx)
	if d.opts.SkipIfExists && util.IsDir(filepath.Join(d.opts.Destination, name, version)) {
		log.Info().Msg("skipping, documentation already exists")
		return false
	}
	if d.opts.SkipIfLogExists && d.completion != nil && d.completion.Contains(name, version) {
		log.Info().Msg("skipping, build already processed")
		return false
	}
	return true
}
