package storage

import (
	"context"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ssuji15/docbuilder/model"
)

// Storage is the artifact store for sources, documentation and shared assets.
type Storage interface {
	// PutTree stores every regular file below localPath under prefix and
	// returns the stored files. An empty prefix stores at the bucket root.
	PutTree(ctx context.Context, prefix, localPath string) ([]model.StoredFile, error)
	Put(ctx context.Context, objectPath string, data []byte, mime string) error
	Get(ctx context.Context, objectPath string) ([]byte, error)
	Close()
}

// File is one local file scheduled for upload.
type File struct {
	LocalPath  string
	ObjectPath string
	Mime       string
}

// ListTree walks localPath and maps each regular file to its object path.
func ListTree(prefix, localPath string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(localPath, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(localPath, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		files = append(files, File{
			LocalPath:  p,
			ObjectPath: path.Join(prefix, rel),
			Mime:       DetectMime(rel),
		})
		return nil
	})
	return files, err
}

// DetectMime guesses the content type of an object from its extension.
func DetectMime(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".rs":
		return "text/rust"
	case ".toml":
		return "text/toml"
	case ".md":
		return "text/markdown"
	case ".lock", "":
		return "text/plain"
	case ".woff":
		return "application/font-woff"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i > 0 {
			return t[:i]
		}
		return t
	}
	return "application/octet-stream"
}
