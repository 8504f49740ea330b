package docbuilder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ssuji15/docbuilder/internal/util"
)

type CompletionCache interface {
	Add(name, version string)
	Save() error
}

// FileCompletionCache keeps the set of processed releases, one
// "<name>-<version>" per line in a file.
type FileCompletionCache struct {
	path string

	mu      sync.Mutex
	entries map[string]struct{}
}

// LoadCompletionCache reads path. A missing file yields an empty cache.
func LoadCompletionCache(path string) (*FileCompletionCache, error) {
	c := &FileCompletionCache{path: path, entries: map[string]struct{}{}}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open completion cache: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			c.entries[line] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read completion cache: %w", err)
	}
	return c, nil
}

func (c *FileCompletionCache) Add(name, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[util.GetCompletionKey(name, version)] = struct{}{}
}

func (c *FileCompletionCache) Contains(name, version string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[util.GetCompletionKey(name, version)]
	return ok
}

func (c *FileCompletionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Save replaces the file atomically.
func (c *FileCompletionCache) Save() error {
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	sort.Strings(keys)

	if err := util.EnsureDirExist(filepath.Dir(c.path)); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".cache-*")
	if err != nil {
		return fmt.Errorf("save completion cache: %w", err)
	}
	w := bufio.NewWriter(tmp)
	for _, k := range keys {
		w.WriteString(k)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save completion cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save completion cache: %w", err)
	}
	return os.Rename(tmp.Name(), c.path)
}
