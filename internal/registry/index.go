package registry

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// indexLine is one release entry of the registry index. Each package file
// holds one JSON document per line, oldest release first.
type indexLine struct {
	Name   string `json:"name"`
	Vers   string `json:"vers"`
	Yanked bool   `json:"yanked"`
}

// Release is a package version found in the index.
type Release struct {
	Name    string
	Version string
	Yanked  bool
}

func parseLines(r io.Reader) ([]indexLine, error) {
	var lines []indexLine
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var l indexLine
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, fmt.Errorf("invalid index line %q: %w", raw, err)
		}
		lines = append(lines, l)
	}
	return lines, sc.Err()
}

// isPackageFile skips the index config and dot files such as .github.
func isPackageFile(name string) bool {
	if name == "config.json" {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") {
			return false
		}
	}
	return path.Base(name) != ""
}

// Index reads a local checkout of the registry index repository.
type Index struct {
	repo   *git.Repository
	branch string
}

func OpenIndex(indexPath, branch string) (*Index, error) {
	repo, err := git.PlainOpen(indexPath)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", indexPath, err)
	}
	return &Index{repo: repo, branch: branch}, nil
}

// head resolves the tip of the remote tracking branch, falling back to the
// local branch for checkouts without a remote.
func (ix *Index) head() (*plumbing.Reference, error) {
	ref, err := ix.repo.Reference(plumbing.NewRemoteReferenceName("origin", ix.branch), true)
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, err
	}
	return ix.repo.Reference(plumbing.NewBranchReferenceName(ix.branch), true)
}

// Releases calls fn for every release of every package of the index snapshot.
// Iteration stops at the first error returned by fn.
func (ix *Index) Releases(fn func(Release) error) error {
	ref, err := ix.head()
	if err != nil {
		return fmt.Errorf("resolve index head: %w", err)
	}
	commit, err := ix.repo.CommitObject(ref.Hash())
	if err != nil {
		return err
	}
	tree, err := commit.Tree()
	if err != nil {
		return err
	}
	return tree.Files().ForEach(func(f *object.File) error {
		if !isPackageFile(f.Name) {
			return nil
		}
		r, err := f.Reader()
		if err != nil {
			return err
		}
		defer r.Close()
		lines, err := parseLines(r)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		for _, l := range lines {
			if err := fn(Release{Name: l.Name, Version: l.Vers, Yanked: l.Yanked}); err != nil {
				return err
			}
		}
		return nil
	})
}
