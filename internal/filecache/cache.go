// Package filecache memoizes file reads keyed by resolved absolute path and
// validated by modification time.
package filecache

import (
	"container/list"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/starford/vaultgate/internal/apperr"
)

const defaultMaxEntries = 1024

type entry struct {
	path    string
	content string
	modTime time.Time
}

// Cache is an LRU-bounded read cache. Keys must be paths already resolved by
// pathguard; the cache never resolves symlinks itself.
type Cache struct {
	mu      sync.Mutex
	max     int
	entries map[string]*list.Element
	order   *list.List // front is most recently used

	stat     func(string) (fs.FileInfo, error)
	readFile func(string) ([]byte, error)
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries bounds the number of cached files. Values below one are ignored.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.max = n
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		max:      defaultMaxEntries,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		stat:     os.Stat,
		readFile: os.ReadFile,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReadOptional returns the content of the file at absPath. A missing file is
// reported as ok == false with a nil error; only genuine I/O failures are
// returned as errors, wrapping apperr.ErrIO.
func (c *Cache) ReadOptional(absPath string) (string, bool, error) {
	info, err := c.stat(absPath)
	if err != nil {
		if isAbsent(err) {
			c.Invalidate(absPath)
			return "", false, nil
		}
		return "", false, fmt.Errorf("filecache: stat: %w: %v", apperr.ErrIO, err)
	}
	if info.IsDir() {
		c.Invalidate(absPath)
		return "", false, nil
	}

	modTime := info.ModTime()
	if content, ok := c.lookup(absPath, modTime); ok {
		return content, true, nil
	}

	data, err := c.readFile(absPath)
	if err != nil {
		if isAbsent(err) {
			c.Invalidate(absPath)
			return "", false, nil
		}
		return "", false, fmt.Errorf("filecache: read: %w: %v", apperr.ErrIO, err)
	}
	content := string(data)
	c.store(&entry{path: absPath, content: content, modTime: modTime})
	return content, true, nil
}

// Invalidate drops the entry for absPath, if any.
func (c *Cache) Invalidate(absPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[absPath]; ok {
		c.order.Remove(el)
		delete(c.entries, absPath)
	}
}

// Len returns the number of cached files.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) lookup(path string, modTime time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[path]
	if !ok {
		return "", false
	}
	e := el.Value.(*entry)
	if !e.modTime.Equal(modTime) {
		return "", false
	}
	c.order.MoveToFront(el)
	return e.content, true
}

// store replaces any existing entry for e.path wholesale.
func (c *Cache) store(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[e.path]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}
	c.entries[e.path] = c.order.PushFront(e)
	for len(c.entries) > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).path)
	}
}

// isAbsent reports whether err means the file is not there. ENOTDIR counts:
// probing "file.md/AGENTS.md" is a miss, not a failure.
func isAbsent(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
