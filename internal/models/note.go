// Package models defines the domain types shared by storage and the index.
package models

import "time"

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"` // slash-separated, relative to the vault root
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
