package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/ssuji15/docbuilder/internal/service/logger"
	"github.com/ssuji15/docbuilder/model"
)

// LastSeenRef marks the index commit whose changes were already handed out.
const LastSeenRef = "refs/heads/docbuilder-last-seen"

// ChangeFeed diffs the registry index between the last seen commit and the
// freshly fetched remote head.
type ChangeFeed struct {
	index *Index
	fetch bool
}

// NewChangeFeed opens the index checkout at indexPath. When fetch is false the
// remote is not contacted and only already fetched commits are considered.
func NewChangeFeed(indexPath, branch string, fetch bool) (*ChangeFeed, error) {
	ix, err := OpenIndex(indexPath, branch)
	if err != nil {
		return nil, err
	}
	return &ChangeFeed{index: ix, fetch: fetch}, nil
}

// FetchChanges returns the releases added or yanked since the previous call,
// newest first, and moves the last seen marker to the current head. The first
// call only places the marker.
func (f *ChangeFeed) FetchChanges(ctx context.Context) ([]model.ChangeEvent, error) {
	repo := f.index.repo
	if f.fetch {
		refSpec := gitcfg.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", f.index.branch, f.index.branch))
		err := repo.FetchContext(ctx, &git.FetchOptions{RemoteName: "origin", Tags: git.NoTags, RefSpecs: []gitcfg.RefSpec{refSpec}})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil, fmt.Errorf("fetch index: %w", err)
		}
	}

	head, err := f.index.head()
	if err != nil {
		return nil, fmt.Errorf("resolve index head: %w", err)
	}

	last, err := repo.Reference(plumbing.ReferenceName(LastSeenRef), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		logger.Ctx(ctx).Info().Str("commit", head.Hash().String()).Msg("registry index marker initialised")
		return nil, f.markSeen(head.Hash())
	}
	if err != nil {
		return nil, err
	}
	if last.Hash() == head.Hash() {
		return nil, nil
	}

	commits, err := f.commitsSince(head.Hash(), last.Hash())
	if err != nil {
		return nil, err
	}

	var changes []model.ChangeEvent
	for _, c := range commits {
		cc, err := commitChanges(c)
		if err != nil {
			return nil, fmt.Errorf("diff commit %s: %w", c.Hash, err)
		}
		changes = append(changes, cc...)
	}

	if err := f.markSeen(head.Hash()); err != nil {
		return nil, err
	}
	return changes, nil
}

func (f *ChangeFeed) markSeen(h plumbing.Hash) error {
	ref := plumbing.NewHashReference(plumbing.ReferenceName(LastSeenRef), h)
	if err := f.index.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("update %s: %w", LastSeenRef, err)
	}
	return nil
}

// commitsSince lists the commits reachable from head down to, but excluding,
// stop. Newest first.
func (f *ChangeFeed) commitsSince(head, stop plumbing.Hash) ([]*object.Commit, error) {
	iter, err := f.index.repo.Log(&git.LogOptions{From: head})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var commits []*object.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if c.Hash == stop {
			return storer.ErrStop
		}
		commits = append(commits, c)
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, err
	}
	return commits, nil
}

// commitChanges turns the lines one commit added to index files into change
// events. A line whose yanked flag flipped counts as a yank or an un-yank; a
// brand new yanked line is ignored. Lines later in a file are newer, so each
// file is reported bottom up.
func commitChanges(c *object.Commit) ([]model.ChangeEvent, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, err
	}
	parentTree := &object.Tree{}
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return nil, err
		}
		if parentTree, err = parent.Tree(); err != nil {
			return nil, err
		}
	}

	diff, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return nil, err
	}

	var changes []model.ChangeEvent
	for _, ch := range diff {
		name := ch.To.Name
		if name == "" {
			name = ch.From.Name
		}
		if !isPackageFile(name) {
			continue
		}
		from, to, err := ch.Files()
		if err != nil {
			return nil, err
		}
		if to == nil {
			continue
		}
		before, err := fileLines(from)
		if err != nil {
			return nil, err
		}
		after, err := fileLines(to)
		if err != nil {
			return nil, err
		}

		known := make(map[string]bool, len(before))
		for _, l := range before {
			known[l.Vers] = l.Yanked
		}
		for i := len(after) - 1; i >= 0; i-- {
			l := after[i]
			wasYanked, existed := known[l.Vers]
			switch {
			case !existed && !l.Yanked:
				changes = append(changes, model.ChangeEvent{Name: l.Name, Version: l.Vers, Kind: model.ChangeAdded})
			case existed && l.Yanked && !wasYanked:
				changes = append(changes, model.ChangeEvent{Name: l.Name, Version: l.Vers, Kind: model.ChangeYanked})
			case existed && !l.Yanked && wasYanked:
				changes = append(changes, model.ChangeEvent{Name: l.Name, Version: l.Vers, Kind: model.ChangeAdded})
			}
		}
	}
	return changes, nil
}

func fileLines(f *object.File) ([]indexLine, error) {
	if f == nil {
		return nil, nil
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, err
	}
	return parseLines(strings.NewReader(contents))
}
