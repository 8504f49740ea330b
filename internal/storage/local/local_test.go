package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_PutTree(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "serde"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "serde", "index.html"), []byte("<html>"), 0644))

	s, err := New(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)

	files, err := s.PutTree(ctx, "rustdoc/serde/1.0.0", src)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "rustdoc/serde/1.0.0/serde/index.html", files[0].Path)
	require.Equal(t, "text/html", files[0].Mime)

	data, err := s.Get(ctx, files[0].Path)
	require.NoError(t, err)
	require.Equal(t, "<html>", string(data))
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "a/b/c.txt", []byte("hello"), "text/plain"))
	data, err := s.Get(ctx, "a/b/c.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	_, err = s.Get(ctx, "missing")
	require.Error(t, err)
}
