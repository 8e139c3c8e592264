// Package guide assembles the chain of directory-scoped guide files that
// applies to a vault directory.
package guide

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/vaultgate/internal/filecache"
	"github.com/starford/vaultgate/internal/pathguard"
)

// DefaultFileName is the guide file probed in each directory.
const DefaultFileName = "AGENTS.md"

// Entry is the guide found in one ancestor directory.
type Entry struct {
	Dir     string `json:"dir"` // slash-separated, relative to the vault root
	Content string `json:"content"`
}

// Collector reads guide files through a Guard and a Cache.
type Collector struct {
	guard    *pathguard.Guard
	cache    *filecache.Cache
	fileName string
}

// Option configures a Collector.
type Option func(*Collector)

// WithFileName overrides the guide file name.
func WithFileName(name string) Option {
	return func(c *Collector) {
		if name != "" {
			c.fileName = name
		}
	}
}

// New creates a Collector.
func New(guard *pathguard.Guard, cache *filecache.Cache, opts ...Option) *Collector {
	c := &Collector{guard: guard, cache: cache, fileName: DefaultFileName}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FileName returns the guide file name being probed.
func (c *Collector) FileName() string {
	return c.fileName
}

// Collect returns the guides from the first directory below the root down to
// target, parents first. Errors from path validation are returned unchanged.
// The root guide itself is never included; see Root.
func (c *Collector) Collect(target string) ([]Entry, error) {
	resolved, err := c.guard.ResolveSafe(target)
	if err != nil {
		return nil, err
	}
	rel := path.Clean(filepath.ToSlash(target))
	if rel == "." {
		return nil, nil
	}

	segments := strings.Split(rel, "/")
	if info, err := os.Stat(resolved); err == nil && !info.IsDir() {
		segments = segments[:len(segments)-1]
	}

	var out []Entry
	for i := 1; i <= len(segments); i++ {
		dir := strings.Join(segments[:i], "/")
		guidePath, err := c.guard.ResolveSafe(dir + "/" + c.fileName)
		if err != nil {
			// A guide that links out of the vault is never read.
			continue
		}
		content, ok, err := c.cache.ReadOptional(guidePath)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, Entry{Dir: dir, Content: content})
		}
	}
	return out, nil
}

// Root returns the guide at the vault root, if there is one.
func (c *Collector) Root() (string, bool, error) {
	p, err := c.guard.ResolveSafe(c.fileName)
	if err != nil {
		return "", false, err
	}
	return c.cache.ReadOptional(p)
}
