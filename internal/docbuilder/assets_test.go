package docbuilder

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/ssuji15/docbuilder/internal/util"
	"github.com/ssuji15/docbuilder/model"
	"github.com/stretchr/testify/require"
)

func essentialFileNames(parsed string) []string {
	names := make([]string, 0, len(EssentialFiles))
	for _, f := range EssentialFiles {
		names = append(names, f.FileName(parsed))
	}
	sort.Strings(names)
	return names
}

func TestAssetFile_FileName(t *testing.T) {
	require.Equal(t, "rustdoc-"+testParsed+".css", AssetFile{"rustdoc", "css", true}.FileName(testParsed))
	require.Equal(t, "SourceSerifPro-It.ttf.woff", AssetFile{"SourceSerifPro-It.ttf", "woff", false}.FileName(testParsed))
}

func TestAssetsRefresher_Refresh(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	fetcher := &fakeFetcher{}
	executor := &fakeExecutor{files: essentialFileNames(testParsed)}
	st := &fakeStorage{}
	cfg := &fakeConfig{}
	r := NewAssetsRefresher(ws, fetcher, executor, &fakeLimits{}, st, cfg)

	require.NoError(t, r.Refresh(context.Background(), testVersion))

	require.Len(t, st.calls, 1)
	require.Equal(t, "", st.calls[0].prefix)
	got := append([]string(nil), st.calls[0].files...)
	sort.Strings(got)
	require.Equal(t, essentialFileNames(testParsed), got)

	require.Equal(t, testVersion, cfg.values[RustcVersionKey])
	require.Equal(t, []string{DummyName + "-" + DummyVersion}, fetcher.purged)
	require.False(t, util.Exists(ws.BuildDir("essential-files-"+testParsed).Root))
}

func TestAssetsRefresher_Failures(t *testing.T) {
	tests := []struct {
		name     string
		executor *fakeExecutor
		errMsg   string
	}{
		{
			name:     "missing asset",
			executor: &fakeExecutor{files: essentialFileNames(testParsed)[1:]},
			errMsg:   "couldn't copy",
		},
		{
			name:     "dummy build fails",
			executor: &fakeExecutor{outcomes: map[string]targetOutcome{defaultTarget: {fail: true}}},
			errMsg:   "failed to build dummy crate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := NewWorkspace(t.TempDir())
			fetcher := &fakeFetcher{}
			st := &fakeStorage{}
			cfg := &fakeConfig{}
			r := NewAssetsRefresher(ws, fetcher, tt.executor, &fakeLimits{}, st, cfg)

			err := r.Refresh(context.Background(), testVersion)
			require.ErrorContains(t, err, tt.errMsg)
			require.Empty(t, st.calls)
			require.NotContains(t, cfg.values, RustcVersionKey)
			require.Len(t, fetcher.purged, 1)
			require.False(t, util.Exists(ws.BuildDir("essential-files-"+testParsed).Root))
		})
	}
}

func TestAssetsRefresher_PurgesStaleBuildDir(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	stale := ws.BuildDir("essential-files-" + testParsed)
	require.NoError(t, stale.Prepare())
	marker := filepath.Join(stale.TargetDir, "stale")
	require.NoError(t, os.WriteFile(marker, nil, 0644))

	executor := &fakeExecutor{files: essentialFileNames(testParsed)}
	var sawStale bool
	wrapped := executorFunc(func(ctx context.Context, target string, b *BuildDir, l model.BuildLimits) (*model.BuildResult, error) {
		sawStale = util.Exists(marker)
		return executor.Execute(ctx, target, b, l)
	})
	r := NewAssetsRefresher(ws, &fakeFetcher{}, wrapped, &fakeLimits{}, &fakeStorage{}, &fakeConfig{})

	require.NoError(t, r.Refresh(context.Background(), testVersion))
	require.False(t, sawStale)
}

func TestAssetsRefresher_UnparsableVersion(t *testing.T) {
	r := NewAssetsRefresher(NewWorkspace(t.TempDir()), &fakeFetcher{}, &fakeExecutor{}, &fakeLimits{}, &fakeStorage{}, &fakeConfig{})
	require.Error(t, r.Refresh(context.Background(), "not a version"))
}

type executorFunc func(ctx context.Context, target string, b *BuildDir, l model.BuildLimits) (*model.BuildResult, error)

func (f executorFunc) Execute(ctx context.Context, target string, b *BuildDir, l model.BuildLimits) (*model.BuildResult, error) {
	return f(ctx, target, b, l)
}
