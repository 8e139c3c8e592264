package index

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/vaultgate/internal/pathguard"
	"github.com/starford/vaultgate/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	g, err := pathguard.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return g.Root(), storage.NewFS(g)
}

func TestSync_IndexesAndRemovesStale(t *testing.T) {
	db := testDB(t)
	root, store := testVault(t)
	_ = os.MkdirAll(filepath.Join(root, "ops"), 0o755)
	_ = os.WriteFile(filepath.Join(root, "ops", "runbook.md"), []byte("---\ntitle: Runbook\n---\nrestart it"), 0o644)
	_ = db.UpsertNote(NoteRow{Path: "gone.md", Checksum: "old"}, "gone")

	if err := Sync(db, store, discardLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if cs := checksumOf(t, db, "ops/runbook.md"); cs == "" {
		t.Error("ops/runbook.md not indexed")
	}
	if cs := checksumOf(t, db, "gone.md"); cs != "" {
		t.Error("stale entry not removed")
	}
	results, _ := db.Search("restart", 10)
	if len(results) != 1 || results[0].Title != "Runbook" {
		t.Errorf("results = %+v", results)
	}
}
