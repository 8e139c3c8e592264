package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/vaultgate/internal/storage"
)

// recordingInvalidator records invalidated paths.
type recordingInvalidator struct {
	mu    sync.Mutex
	paths map[string]int
}

func (r *recordingInvalidator) Invalidate(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paths == nil {
		r.paths = make(map[string]int)
	}
	r.paths[p]++
}

func (r *recordingInvalidator) seen(p string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paths[p] > 0
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatch(t *testing.T, db *DB, store storage.Provider, inv Invalidator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = Watch(ctx, db, store, inv, discardLogger())
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_NewFileIndexedAndInvalidated(t *testing.T) {
	db := testDB(t)
	root, store := testVault(t)
	inv := &recordingInvalidator{}
	startWatch(t, db, store, inv)

	p := filepath.Join(root, "new.md")
	_ = os.WriteFile(p, []byte("# New"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return checksumOf(t, db, "new.md") != ""
	}, "new file not indexed by watcher")
	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return inv.seen(p)
	}, "cache not invalidated for new.md")
}

func TestWatcher_GuideChangeInvalidates(t *testing.T) {
	db := testDB(t)
	root, store := testVault(t)
	_ = os.MkdirAll(filepath.Join(root, "team"), 0o755)
	inv := &recordingInvalidator{}
	startWatch(t, db, store, inv)

	guide := filepath.Join(root, "team", "AGENTS.md")
	_ = os.WriteFile(guide, []byte("be terse"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return inv.seen(guide)
	}, "guide change did not invalidate cache")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	db := testDB(t)
	root, store := testVault(t)
	startWatch(t, db, store, nil)

	subDir := filepath.Join(root, "subdir")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return checksumOf(t, db, "subdir/deep.md") != ""
	}, "file in new subdir not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	db := testDB(t)
	root, store := testVault(t)
	_ = os.WriteFile(filepath.Join(root, "del.md"), []byte("# Delete Me"), 0o644)
	_ = Sync(db, store, discardLogger())
	if checksumOf(t, db, "del.md") == "" {
		t.Fatal("precondition: file should be indexed")
	}

	startWatch(t, db, store, nil)
	_ = os.Remove(filepath.Join(root, "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return checksumOf(t, db, "del.md") == ""
	}, "deleted file still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	db := testDB(t)
	root, store := testVault(t)
	_ = os.WriteFile(filepath.Join(root, "old.md"), []byte("# Rename"), 0o644)
	_ = Sync(db, store, discardLogger())

	startWatch(t, db, store, nil)
	_ = os.Rename(filepath.Join(root, "old.md"), filepath.Join(root, "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return checksumOf(t, db, "old.md") == "" && checksumOf(t, db, "renamed.md") != ""
	}, "rename reconciliation failed: old path should be removed and new path indexed")
}
