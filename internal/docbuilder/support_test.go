package docbuilder

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ssuji15/docbuilder/internal/cache/freecache"
	"github.com/ssuji15/docbuilder/internal/config"
	"github.com/ssuji15/docbuilder/internal/util"
	"github.com/ssuji15/docbuilder/model"
	"github.com/stretchr/testify/require"
)

func TestLogStorage(t *testing.T) {
	s := NewLogStorage(16)
	n, err := s.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.False(t, s.Truncated())

	n, err = s.Write([]byte("abcdefghij"))
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.True(t, s.Truncated())

	_, _ = s.Write([]byte("dropped"))
	require.Equal(t, "0123456789abcdef\n"+truncatedNotice, s.String())
}

func TestLogStorage_LoggerKeepsInfoAndAbove(t *testing.T) {
	s := NewLogStorage(0)
	log := s.Logger()
	log.Debug().Msg("hidden")
	log.Info().Msg("visible")
	log.Error().Msg("broken")

	out := s.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "visible")
	require.Contains(t, out, "broken")
}

func TestFileCompletionCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefix", "cache")

	c, err := LoadCompletionCache(path)
	require.NoError(t, err)
	require.Zero(t, c.Len())

	c.Add("serde", "1.0.0")
	c.Add("rand", "0.8.5")
	c.Add("serde", "1.0.0")
	require.True(t, c.Contains("serde", "1.0.0"))
	require.False(t, c.Contains("serde", "1.0.1"))
	require.NoError(t, c.Save())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "rand-0.8.5\nserde-1.0.0\n", string(b))

	reloaded, err := LoadCompletionCache(path)
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.Len())
	require.True(t, reloaded.Contains("rand", "0.8.5"))
}

func TestSkipDecider(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, util.EnsureDirExist(filepath.Join(dest, "serde", "1.0.0")))
	completion, err := LoadCompletionCache(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	completion.Add("rand", "0.8.5")

	tests := []struct {
		name    string
		opts    SkipOptions
		pkg     string
		version string
		want    bool
	}{
		{"no options", SkipOptions{Destination: dest}, "serde", "1.0.0", true},
		{"docs exist", SkipOptions{Destination: dest, SkipIfExists: true}, "serde", "1.0.0", false},
		{"docs missing", SkipOptions{Destination: dest, SkipIfExists: true}, "serde", "1.0.1", true},
		{"already processed", SkipOptions{Destination: dest, SkipIfLogExists: true}, "rand", "0.8.5", false},
		{"not processed", SkipOptions{Destination: dest, SkipIfLogExists: true}, "rand", "0.8.6", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewSkipDecider(tt.opts, completion)
			require.Equal(t, tt.want, d.ShouldBuild(context.Background(), tt.pkg, tt.version))
		})
	}
}

func TestCachedLimits(t *testing.T) {
	c := freecache.NewFreeCache(&config.FreeCacheConfig{SIZE_BYTES: 1 << 20, TTL: 60})
	want := model.BuildLimits{MemoryBytes: 1 << 30, Timeout: 15 * time.Minute, MaxLogBytes: 100}
	next := &fakeLimits{limits: want}
	l := NewCachedLimits(c, next)

	for i := 0; i < 3; i++ {
		got, err := l.LimitsFor(context.Background(), "serde")
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.Equal(t, 1, next.calls)

	next.err = errors.New("db down")
	_, err := l.LimitsFor(context.Background(), "rand")
	require.Error(t, err)
}

func TestReadPackageMetadata(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte(metadataManifest+"default-target = \"x86_64-apple-darwin\"\nno-default-features = true\n"), 0644))

	md, err := ReadPackageMetadata(dir)
	require.NoError(t, err)
	require.Equal(t, model.PackageMetadata{
		DefaultTarget:     "x86_64-apple-darwin",
		RustdocArgs:       []string{"--cfg", "docsrs"},
		RustcArgs:         []string{"--cfg", "foo"},
		Features:          []string{"derive", "std"},
		AllFeatures:       true,
		NoDefaultFeatures: true,
	}, md)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[package]\nname = \"plain\"\n"), 0644))
	md, err = ReadPackageMetadata(dir)
	require.NoError(t, err)
	require.Equal(t, model.PackageMetadata{}, md)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[package\n"), 0644))
	_, err = ReadPackageMetadata(dir)
	require.Error(t, err)
}

const cargoMetadataJSON = `{
  "packages": [
    {"id": "foo 1.0.0", "name": "foo", "version": "1.0.0", "description": "Foo", "license": "MIT",
     "keywords": ["a"], "authors": ["me"],
     "targets": [{"name": "foo_lib", "kind": ["lib"]}, {"name": "foo", "kind": ["bin"]}],
     "dependencies": [{"name": "serde", "req": "^1", "kind": null}, {"name": "rand", "req": "^0.8", "kind": "dev"}]},
    {"id": "serde 1.0.200", "name": "serde", "version": "1.0.200", "targets": [], "dependencies": []},
    {"id": "rand 0.8.5", "name": "rand", "version": "0.8.5", "targets": [], "dependencies": []}
  ],
  "resolve": {
    "root": "foo 1.0.0",
    "nodes": [
      {"id": "foo 1.0.0", "deps": [{"pkg": "serde 1.0.200"}, {"pkg": "rand 0.8.5"}]},
      {"id": "serde 1.0.200", "deps": []}
    ]
  }
}`

func TestParseCargoMetadata(t *testing.T) {
	md, err := ParseCargoMetadata([]byte(cargoMetadataJSON))
	require.NoError(t, err)
	require.Equal(t, "foo", md.Root.Name)
	require.Equal(t, "foo_lib", md.Root.LibName)
	require.Equal(t, "MIT", md.Root.License)
	require.Equal(t, []model.Dependency{
		{Name: "serde", Version: "^1"},
		{Name: "rand", Version: "^0.8", Kind: "dev"},
	}, md.Root.Dependencies)
	require.Equal(t, []model.Dependency{
		{Name: "serde", Version: "1.0.200"},
		{Name: "rand", Version: "0.8.5"},
	}, md.RootDependencies)

	_, err = ParseCargoMetadata([]byte(`{"packages": [], "resolve": {"root": "missing"}}`))
	require.Error(t, err)
}

func crateArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestUnpack(t *testing.T) {
	dest := t.TempDir()
	archive := crateArchive(t, map[string]string{
		"foo-1.0.0/Cargo.toml": "[package]\n",
		"foo-1.0.0/src/lib.rs": "//! foo\n",
	})
	require.NoError(t, Unpack(bytes.NewReader(archive), dest))
	require.FileExists(t, filepath.Join(dest, "Cargo.toml"))
	require.FileExists(t, filepath.Join(dest, "src", "lib.rs"))

	evil := crateArchive(t, map[string]string{"foo-1.0.0/../../evil": "x"})
	require.Error(t, Unpack(bytes.NewReader(evil), t.TempDir()))
}

func TestCrateFetcher(t *testing.T) {
	archive := crateArchive(t, map[string]string{
		"foo-1.0.0/Cargo.toml": "[package]\nname = \"foo\"\n",
		"foo-1.0.0/src/lib.rs": "//! foo\n",
	})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/foo/foo-1.0.0.crate" {
			http.NotFound(w, r)
			return
		}
		require.True(t, strings.HasPrefix(r.UserAgent(), "docbuilder"))
		w.Write(archive)
	}))
	defer srv.Close()

	ws := NewWorkspace(t.TempDir())
	f := NewCrateFetcher(srv.URL+"/", ws, nil, "nightly")

	for i := 0; i < 2; i++ {
		dest := t.TempDir()
		require.NoError(t, f.Fetch(context.Background(), "foo", "1.0.0", dest))
		require.FileExists(t, filepath.Join(dest, "src", "lib.rs"))
	}
	require.Equal(t, int32(1), hits.Load(), "second fetch is served from the source cache")

	require.NoError(t, f.Purge("foo", "1.0.0"))
	require.NoDirExists(t, ws.SourceCacheDir("foo", "1.0.0"))

	err := f.Fetch(context.Background(), "missing", "0.1.0", t.TempDir())
	require.ErrorContains(t, err, "404")
	require.NoDirExists(t, ws.SourceCacheDir("missing", "0.1.0"))
}
