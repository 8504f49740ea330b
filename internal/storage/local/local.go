package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ssuji15/docbuilder/internal/storage"
	"github.com/ssuji15/docbuilder/internal/util"
	"github.com/ssuji15/docbuilder/model"
)

// Store keeps artifacts below a root directory. It backs STORAGE_TYPE=local.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if err := util.EnsureDirExist(root); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) PutTree(ctx context.Context, prefix, localPath string) ([]model.StoredFile, error) {
	files, err := storage.ListTree(prefix, localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", localPath, err)
	}
	stored := make([]model.StoredFile, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := util.CopyFile(f.LocalPath, s.path(f.ObjectPath)); err != nil {
			return nil, fmt.Errorf("failed to store %s: %w", f.ObjectPath, err)
		}
		stored = append(stored, model.StoredFile{Mime: f.Mime, Path: f.ObjectPath})
	}
	return stored, nil
}

func (s *Store) Put(_ context.Context, objectPath string, data []byte, _ string) error {
	p := s.path(objectPath)
	if err := util.EnsureDirExist(filepath.Dir(p)); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0644)
}

func (s *Store) Get(_ context.Context, objectPath string) ([]byte, error) {
	return os.ReadFile(s.path(objectPath))
}

func (s *Store) Close() {}

func (s *Store) path(objectPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(objectPath))
}
