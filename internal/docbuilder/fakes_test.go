package docbuilder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ssuji15/docbuilder/internal/registry"
	"github.com/ssuji15/docbuilder/internal/util"
	"github.com/ssuji15/docbuilder/model"
)

const (
	testVersion   = "rustc 1.80.0-nightly (a1b2c3d4e 2024-05-01)"
	testParsed    = "20240501-1.80.0-nightly-a1b2c3d4e"
	defaultTarget = "x86_64-unknown-linux-gnu"
)

type staticToolchain struct{ version string }

func (s staticToolchain) Name() string    { return "nightly" }
func (s staticToolchain) Version() string { return s.version }

type fakeToolchain struct {
	err   error
	calls int
}

func (f *fakeToolchain) EnsureCurrent(context.Context) error {
	f.calls++
	return f.err
}

type fakeSkip struct{ skip bool }

func (f fakeSkip) ShouldBuild(context.Context, string, string) bool { return !f.skip }

type fakeLimits struct {
	limits model.BuildLimits
	err    error
	calls  int
}

func (f *fakeLimits) LimitsFor(context.Context, string) (model.BuildLimits, error) {
	f.calls++
	return f.limits, f.err
}

type fakeFetcher struct {
	manifest    string
	withExample bool
	err         error
	purged      []string
}

func (f *fakeFetcher) Fetch(_ context.Context, name, version, dest string) error {
	if f.err != nil {
		return f.err
	}
	manifest := f.manifest
	if manifest == "" {
		manifest = "[package]\nname = \"" + name + "\"\nversion = \"" + version + "\"\n"
	}
	if err := os.WriteFile(filepath.Join(dest, "Cargo.toml"), []byte(manifest), 0644); err != nil {
		return err
	}
	if err := util.EnsureDirExist(filepath.Join(dest, "src")); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dest, "src", "lib.rs"), []byte("//! docs\n"), 0644); err != nil {
		return err
	}
	if f.withExample {
		return util.EnsureDirExist(filepath.Join(dest, "examples"))
	}
	return nil
}

func (f *fakeFetcher) Purge(name, version string) error {
	f.purged = append(f.purged, name+"-"+version)
	return nil
}

// targetOutcome drives fakeExecutor for one target.
type targetOutcome struct {
	fail   bool
	noDocs bool
}

type fakeExecutor struct {
	outcomes map[string]targetOutcome
	// files are created in the doc dir of every successful run.
	files   []string
	errFor  string
	targets []string
}

func (f *fakeExecutor) Execute(_ context.Context, target string, build *BuildDir, _ model.BuildLimits) (*model.BuildResult, error) {
	if f.errFor != "" && strings.HasPrefix(build.Name, f.errFor) {
		return nil, errors.New("sandbox unavailable")
	}
	if target == "" {
		target = defaultTarget
	}
	f.targets = append(f.targets, target)
	out := f.outcomes[target]
	if !out.fail && !out.noDocs {
		name := build.Name
		if i := strings.LastIndex(name, "-"); i > 0 {
			name = name[:i]
		}
		doc := build.DocDir(target)
		if err := util.EnsureDirExist(filepath.Join(doc, util.GetModuleName(name))); err != nil {
			return nil, err
		}
		for _, file := range f.files {
			if err := os.WriteFile(filepath.Join(doc, file), []byte(file), 0644); err != nil {
				return nil, err
			}
		}
	}
	return &model.BuildResult{
		ToolchainVersion: testVersion,
		BuildLog:         "log for " + target,
		Successful:       !out.fail,
		Target:           target,
		CargoMetadata:    model.CargoMetadata{Root: model.CargoPackage{Name: build.Name}},
	}, nil
}

type putTreeCall struct {
	prefix string
	files  []string
}

type fakeStorage struct {
	mu    sync.Mutex
	calls []putTreeCall
	err   error
}

func (s *fakeStorage) PutTree(_ context.Context, prefix, localPath string) ([]model.StoredFile, error) {
	if s.err != nil {
		return nil, s.err
	}
	var stored []model.StoredFile
	var names []string
	err := filepath.WalkDir(localPath, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(localPath, p)
		names = append(names, filepath.ToSlash(rel))
		stored = append(stored, model.StoredFile{Path: filepath.ToSlash(filepath.Join(prefix, rel)), Mime: "text/plain"})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.calls = append(s.calls, putTreeCall{prefix: prefix, files: names})
	s.mu.Unlock()
	return stored, nil
}

func (s *fakeStorage) Put(context.Context, string, []byte, string) error { return nil }
func (s *fakeStorage) Get(context.Context, string) ([]byte, error)       { return nil, nil }
func (s *fakeStorage) Close()                                            {}

func (s *fakeStorage) prefixes() []string {
	var out []string
	for _, c := range s.calls {
		out = append(out, c.prefix)
	}
	return out
}

type publishCall struct {
	target    string
	isDefault bool
}

type fakePublisher struct {
	published []publishCall
	uploads   int
}

func (p *fakePublisher) Publish(_ context.Context, _, _, _, target string, isDefault bool) error {
	p.published = append(p.published, publishCall{target: target, isDefault: isDefault})
	return nil
}

func (p *fakePublisher) Upload(context.Context, string, string) error {
	p.uploads++
	return nil
}

type fakeReleases struct {
	records []model.ReleaseRecord
	builds  []int64
}

func (r *fakeReleases) AddPackage(_ context.Context, rec model.ReleaseRecord) (int64, error) {
	r.records = append(r.records, rec)
	return 42, nil
}

func (r *fakeReleases) AddBuild(_ context.Context, rid int64, _ *model.BuildResult) error {
	r.builds = append(r.builds, rid)
	return nil
}

type fakeCompletion struct {
	added []string
	saves int
}

func (c *fakeCompletion) Add(name, version string) { c.added = append(c.added, name+"-"+version) }
func (c *fakeCompletion) Save() error              { c.saves++; return nil }

type fakeConfig struct {
	values map[string]any
}

func (c *fakeConfig) Upsert(_ context.Context, key string, value any) error {
	if c.values == nil {
		c.values = map[string]any{}
	}
	c.values[key] = value
	return nil
}

type sliceSource []registry.Release

func (s sliceSource) Releases(fn func(registry.Release) error) error {
	for _, r := range s {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}
