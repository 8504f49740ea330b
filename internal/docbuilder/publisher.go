package docbuilder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ssuji15/docbuilder/internal/job_tracer"
	"github.com/ssuji15/docbuilder/internal/service/logger"
	"github.com/ssuji15/docbuilder/internal/storage"
	"github.com/ssuji15/docbuilder/internal/toolchain"
	"github.com/ssuji15/docbuilder/internal/util"
)

type Publisher interface {
	Publish(ctx context.Context, targetDir, name, version, target string, isDefault bool) error
	Upload(ctx context.Context, name, version string) error
}

// DocPublisher copies generated docs into the destination tree and uploads
// the tree of one release to the artifact store.
type DocPublisher struct {
	destination string
	storage     storage.Storage
	toolchain   ToolchainInfo
}

func NewDocPublisher(destination string, st storage.Storage, tc ToolchainInfo) *DocPublisher {
	return &DocPublisher{destination: destination, storage: st, toolchain: tc}
}

// Destination is where the docs of one target end up locally.
func (p *DocPublisher) Destination(name, version, target string, isDefault bool) string {
	return filepath.Join(p.destination, filepath.FromSlash(util.GetDocPath(name, version, target, isDefault)))
}

func (p *DocPublisher) Publish(ctx context.Context, targetDir, name, version, target string, isDefault bool) error {
	parsed, err := toolchain.ParseVersion(p.toolchain.Version())
	if err != nil {
		return err
	}
	source := filepath.Join(targetDir, target, "doc")
	dest := p.Destination(name, version, target, isDefault)
	logger.Ctx(ctx).Info().Str("source", source).Str("dest", dest).Msg("copying documentation")

	err = util.CopyTree(source, dest, func(rel string, _ os.DirEntry) bool {
		return !strings.ContainsRune(rel, filepath.Separator) && IsSharedFile(rel, parsed)
	})
	if err != nil {
		return fmt.Errorf("copy docs of %s %s for %s: %w", name, version, target, err)
	}
	return nil
}

func (p *DocPublisher) Upload(ctx context.Context, name, version string) error {
	ctx, span := job_tracer.GetTracer().Start(ctx, "Publisher/Upload")
	defer span.End()

	local := filepath.Join(p.destination, name, version)
	if _, err := p.storage.PutTree(ctx, util.GetRustdocPrefix(name, version), local); err != nil {
		util.RecordSpanError(span, err)
		return fmt.Errorf("upload docs of %s %s: %w", name, version, err)
	}
	return nil
}

// IsSharedFile reports whether a top-level doc file belongs to the
// toolchain-wide assets rather than to one package.
func IsSharedFile(fileName, parsedVersion string) bool {
	ext := filepath.Ext(fileName)
	switch ext {
	case ".lock", ".txt", ".woff":
		return true
	}
	if fileName == "main.js" {
		return true
	}
	if ext == ".css" || ext == ".js" {
		return strings.HasSuffix(strings.TrimSuffix(fileName, ext), "-"+parsedVersion)
	}
	return false
}
