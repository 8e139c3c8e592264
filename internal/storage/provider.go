// Package storage defines read access to the vault working tree.
//
// The tree is populated by an external sync process, so the provider is
// read-only. Every path goes through pathguard before it touches disk.
package storage

import "github.com/starford/vaultgate/internal/models"

// Provider is the interface for vault file operations.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to vault root).
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Root returns the canonical vault root.
	Root() string
}
