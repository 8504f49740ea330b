package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/ssuji15/docbuilder/model"
	"github.com/stretchr/testify/require"
)

type upstream struct {
	t    *testing.T
	dir  string
	repo *git.Repository
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	u := &upstream{t: t, dir: dir, repo: repo}
	u.write("config.json", `{"dl":"https://static.crates.io/crates"}`)
	u.commit("init")
	return u
}

func indexLineJSON(name, vers string, yanked bool) string {
	return fmt.Sprintf(`{"name":"%s","vers":"%s","deps":[],"cksum":"00","features":{},"yanked":%t}`, name, vers, yanked)
}

// indexPath mirrors the registry layout: 1/, 2/, 3/<c>/ and ab/cd/.
func indexPath(name string) string {
	switch len(name) {
	case 1:
		return filepath.Join("1", name)
	case 2:
		return filepath.Join("2", name)
	case 3:
		return filepath.Join("3", name[:1], name)
	}
	return filepath.Join(name[:2], name[2:4], name)
}

func (u *upstream) write(rel, content string) {
	u.t.Helper()
	p := filepath.Join(u.dir, rel)
	require.NoError(u.t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(u.t, os.WriteFile(p, []byte(content), 0644))
	wt, err := u.repo.Worktree()
	require.NoError(u.t, err)
	_, err = wt.Add(filepath.ToSlash(rel))
	require.NoError(u.t, err)
}

func (u *upstream) setReleases(name string, lines ...string) {
	u.write(indexPath(name), strings.Join(lines, "\n")+"\n")
}

func (u *upstream) commit(msg string) {
	u.t.Helper()
	wt, err := u.repo.Worktree()
	require.NoError(u.t, err)
	_, err = wt.Commit(msg, &git.CommitOptions{Author: &object.Signature{Name: "index", Email: "index@example.com", When: time.Now()}})
	require.NoError(u.t, err)
}

func clone(t *testing.T, u *upstream) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "crates.io-index")
	_, err := git.PlainClone(dir, false, &git.CloneOptions{URL: u.dir})
	require.NoError(t, err)
	return dir
}

func TestChangeFeed_FetchChanges(t *testing.T) {
	ctx := context.Background()
	u := newUpstream(t)
	u.setReleases("serde", indexLineJSON("serde", "1.0.0", false))
	u.commit("serde 1.0.0")

	local := clone(t, u)
	feed, err := NewChangeFeed(local, "master", true)
	require.NoError(t, err)

	changes, err := feed.FetchChanges(ctx)
	require.NoError(t, err)
	require.Empty(t, changes, "first call only places the marker")

	u.setReleases("serde", indexLineJSON("serde", "1.0.0", false), indexLineJSON("serde", "1.0.1", false))
	u.commit("serde 1.0.1")
	u.setReleases("rand", indexLineJSON("rand", "0.8.5", false))
	u.commit("rand 0.8.5")
	u.setReleases("serde",
		indexLineJSON("serde", "1.0.0", true),
		indexLineJSON("serde", "1.0.1", false),
		indexLineJSON("serde", "1.0.2", false),
	)
	u.commit("yank serde 1.0.0, publish 1.0.2")

	changes, err = feed.FetchChanges(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.ChangeEvent{
		{Name: "serde", Version: "1.0.2", Kind: model.ChangeAdded},
		{Name: "serde", Version: "1.0.0", Kind: model.ChangeYanked},
		{Name: "rand", Version: "0.8.5", Kind: model.ChangeAdded},
		{Name: "serde", Version: "1.0.1", Kind: model.ChangeAdded},
	}, changes)

	changes, err = feed.FetchChanges(ctx)
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestIndex_Releases(t *testing.T) {
	u := newUpstream(t)
	u.setReleases("a", indexLineJSON("a", "0.1.0", false))
	u.setReleases("rand", indexLineJSON("rand", "0.8.4", false), indexLineJSON("rand", "0.8.5", true))
	u.write(".github/workflows/ci.yml", "on: push\n")
	u.commit("snapshot")

	ix, err := OpenIndex(u.dir, "master")
	require.NoError(t, err)

	var got []string
	require.NoError(t, ix.Releases(func(r Release) error {
		got = append(got, fmt.Sprintf("%s-%s-%t", r.Name, r.Version, r.Yanked))
		return nil
	}))
	sort.Strings(got)
	require.Equal(t, []string{"a-0.1.0-false", "rand-0.8.4-false", "rand-0.8.5-true"}, got)
}

func TestParseLines(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      int
		shouldErr bool
	}{
		{"two lines", indexLineJSON("a", "1.0.0", false) + "\n" + indexLineJSON("a", "1.0.1", false) + "\n", 2, false},
		{"blank lines skipped", "\n\n" + indexLineJSON("a", "1.0.0", false) + "\n\n", 1, false},
		{"invalid json", "{not json}\n", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, err := parseLines(strings.NewReader(tt.input))
			if tt.shouldErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, lines, tt.want)
		})
	}
}

func TestIsPackageFile(t *testing.T) {
	require.False(t, isPackageFile("config.json"))
	require.False(t, isPackageFile(".github/workflows/ci.yml"))
	require.True(t, isPackageFile("se/rd/serde"))
	require.True(t, isPackageFile("1/a"))
}
