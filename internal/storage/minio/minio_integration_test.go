//go:build integration
// +build integration

package minio

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/ssuji15/docbuilder/internal/config"
	tminio "github.com/ssuji15/docbuilder/tests/integration_test/infra/minio"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
)

var (
	minioContainer testcontainers.Container
	MINIO_ENDPOINT string
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	minioContainer, MINIO_ENDPOINT = tminio.SetupContainer(ctx)
	code := m.Run()
	_ = minioContainer.Terminate(ctx)
	os.Exit(code)
}

func newClient(t *testing.T) *MinioClient {
	t.Helper()
	tminio.SetMinioEnv(MINIO_ENDPOINT)
	cfg, err := config.GetMinioConfig()
	require.NoError(t, err)
	c, err := NewMinioClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewMinioClient(t *testing.T) {
	tests := []struct {
		name      string
		endpoint  string
		expectErr bool
	}{
		{"valid endpoint", "", false},
		{"invalid endpoint", "t//", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tminio.SetMinioEnv(MINIO_ENDPOINT)
			cfg, err := config.GetMinioConfig()
			require.NoError(t, err)
			if tt.endpoint != "" {
				cfg.URL = tt.endpoint
			}
			c, err := NewMinioClient(context.Background(), cfg)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			c.Close()
		})
	}
}

func TestMinioClient_PutGet(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "rustdoc-20170601-1.20.0-nightly-abc.css", []byte("body{}"), "text/css"))
	data, err := c.Get(ctx, "rustdoc-20170601-1.20.0-nightly-abc.css")
	require.NoError(t, err)
	require.Equal(t, "body{}", string(data))

	_, err = c.Get(ctx, "missing-object")
	require.Error(t, err)
}

func TestMinioClient_PutTree(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "Cargo.toml"), []byte("[package]\nname = \"serde\""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "src", "lib.rs"), []byte("pub fn f() {}"), 0644))

	files, err := c.PutTree(ctx, "sources/serde/1.0.0", src)
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)
	require.Equal(t, []string{"sources/serde/1.0.0/Cargo.toml", "sources/serde/1.0.0/src/lib.rs"}, paths)

	data, err := c.Get(ctx, "sources/serde/1.0.0/src/lib.rs")
	require.NoError(t, err)
	require.Equal(t, "pub fn f() {}", string(data))
}
