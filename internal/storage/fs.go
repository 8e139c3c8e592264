package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/vaultgate/internal/apperr"
	"github.com/starford/vaultgate/internal/checksum"
	"github.com/starford/vaultgate/internal/models"
	"github.com/starford/vaultgate/internal/pathguard"
)

// FS implements Provider backed by the local file system.
type FS struct {
	guard *pathguard.Guard
}

// NewFS creates a new FS provider confined by guard.
func NewFS(guard *pathguard.Guard) *FS {
	return &FS{guard: guard}
}

// Root returns the canonical vault root.
func (f *FS) Root() string {
	return f.guard.Root()
}

// List walks dir (relative to root) and returns metadata for every .md file.
// Symlinked notes are followed only when their target stays inside the vault.
func (f *FS) List(dir string) ([]models.NoteMetadata, error) {
	base, err := f.guard.ResolveSafe(dir)
	if err != nil {
		return nil, err
	}
	var out []models.NoteMetadata
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == base && errors.Is(walkErr, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return walkErr
		}
		if d.IsDir() {
			if p != base && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := f.guard.Rel(p)
		if err != nil {
			return nil
		}
		target := p
		if d.Type()&fs.ModeSymlink != 0 {
			if target, err = f.guard.ResolveSafe(rel); err != nil {
				return nil
			}
		}
		info, err := os.Stat(target)
		if err != nil || info.IsDir() {
			return nil
		}
		data, err := os.ReadFile(target)
		if err != nil {
			return err
		}
		out = append(out, models.NoteMetadata{
			Path:      rel,
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w: %v", apperr.ErrIO, err)
	}
	return out, nil
}

// Read returns the raw bytes of a vault file. A missing file wraps
// apperr.ErrNotFound.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.guard.ResolveSafe(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: read %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s: %w: %v", path, apperr.ErrIO, err)
	}
	return data, nil
}
