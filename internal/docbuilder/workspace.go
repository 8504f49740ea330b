package docbuilder

import (
	"os"
	"path/filepath"

	"github.com/ssuji15/docbuilder/internal/util"
)

// Workspace is the on-disk area holding build dirs and fetched sources.
type Workspace struct {
	root string
}

func NewWorkspace(root string) *Workspace {
	return &Workspace{root: root}
}

func (w *Workspace) Root() string {
	return w.root
}

// BuildDir returns the build dir for name without touching the disk.
func (w *Workspace) BuildDir(name string) *BuildDir {
	root := filepath.Join(w.root, "builds", name)
	return &BuildDir{
		Name:      name,
		Root:      root,
		SourceDir: filepath.Join(root, "source"),
		TargetDir: filepath.Join(root, "target"),
		LogDir:    filepath.Join(root, "logs"),
	}
}

// SourceCacheDir is where the fetched sources of one release are unpacked.
func (w *Workspace) SourceCacheDir(name, version string) string {
	return filepath.Join(w.root, "cache", "sources", name, version)
}

func (w *Workspace) PurgeAllBuildDirs() error {
	return util.PurgeDir(filepath.Join(w.root, "builds"))
}

type BuildDir struct {
	Name      string
	Root      string
	SourceDir string
	TargetDir string
	LogDir    string
}

// Prepare creates the build dir layout. The target and log dirs are written
// by the unprivileged sandbox user.
func (b *BuildDir) Prepare() error {
	for _, dir := range []string{b.SourceDir, b.TargetDir, b.LogDir} {
		if err := util.EnsureDirExist(dir); err != nil {
			return err
		}
	}
	for _, dir := range []string{b.TargetDir, b.LogDir} {
		if err := os.Chmod(dir, 0777); err != nil {
			return err
		}
	}
	return nil
}

func (b *BuildDir) Purge() error {
	return util.PurgeDir(b.Root)
}

// DocDir is the rustdoc output dir of target.
func (b *BuildDir) DocDir(target string) string {
	return filepath.Join(b.TargetDir, target, "doc")
}
