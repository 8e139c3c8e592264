// Package pathguard confines untrusted relative paths to a vault root.
//
// Containment is checked after every symbolic link on the path has been
// resolved, intermediate directories included, and is compared segment by
// segment rather than by string prefix.
package pathguard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/vaultgate/internal/apperr"
)

// Guard resolves paths relative to a canonical vault root.
type Guard struct {
	root string // absolute, symlink-resolved
}

// New canonicalizes root and returns a Guard for it.
// The root must exist and be a directory.
func New(root string) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("pathguard: resolve root: %w", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("pathguard: canonicalize root: %w", err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return nil, fmt.Errorf("pathguard: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("pathguard: root is not a directory: %s", canon)
	}
	return &Guard{root: canon}, nil
}

// Root returns the canonical vault root.
func (g *Guard) Root() string {
	return g.root
}

// ResolveSafe maps requested onto the vault and returns its canonical
// absolute path. The leaf does not need to exist; missing segments are
// appended to the deepest existing ancestor after that ancestor has been
// resolved. Every failure wraps apperr.ErrPathEscape.
func (g *Guard) ResolveSafe(requested string) (string, error) {
	if strings.ContainsRune(requested, 0) {
		return "", escape(requested, nil)
	}
	cleaned := filepath.Clean(filepath.FromSlash(requested))
	if filepath.IsAbs(cleaned) || filepath.VolumeName(cleaned) != "" || os.IsPathSeparator(cleaned[0]) {
		return "", escape(requested, nil)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", escape(requested, nil)
	}
	if cleaned == "." {
		return g.root, nil
	}

	resolved, err := resolve(filepath.Join(g.root, cleaned))
	if err != nil {
		return "", escape(requested, err)
	}
	if !contains(g.root, resolved) {
		return "", escape(requested, nil)
	}
	return resolved, nil
}

// Rel converts a resolved absolute path into a slash-separated path
// relative to the root.
func (g *Guard) Rel(abs string) (string, error) {
	if !contains(g.root, abs) {
		return "", escape(abs, nil)
	}
	rel, err := filepath.Rel(g.root, abs)
	if err != nil {
		return "", escape(abs, err)
	}
	return filepath.ToSlash(rel), nil
}

// resolve evaluates symlinks on the longest existing prefix of candidate and
// re-appends the segments that do not exist yet.
func resolve(candidate string) (string, error) {
	var missing []string
	current := candidate
	for {
		real, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				real = filepath.Join(real, missing[i])
			}
			return real, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		// A dangling symlink also reports "not exist"; it must never be
		// appended as a literal name.
		if info, lerr := os.Lstat(current); lerr == nil && info.Mode()&fs.ModeSymlink != 0 {
			return "", fmt.Errorf("dangling symlink %s", filepath.Base(current))
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}

func contains(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return false
	}
	return true
}

// escape builds the error for a rejected path. The cause is flattened with
// %v so callers never mistake an escape for a missing file.
func escape(requested string, cause error) error {
	if cause != nil {
		return fmt.Errorf("pathguard: %q: %w: %v", requested, apperr.ErrPathEscape, cause)
	}
	return fmt.Errorf("pathguard: %q: %w", requested, apperr.ErrPathEscape)
}
