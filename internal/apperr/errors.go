// Package apperr defines the error taxonomy shared across the vault boundary.
package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")

	// ErrPathEscape marks a requested path that does not stay inside the
	// vault root after normalization and symlink resolution.
	ErrPathEscape = errors.New("path escapes vault root")
	// ErrIO marks a filesystem failure other than "does not exist".
	ErrIO = errors.New("i/o failure")

	ErrCapacityExceeded = errors.New("session capacity exceeded")
	// ErrSessionNotFound covers absent, consumed, and expired sessions alike.
	ErrSessionNotFound = errors.New("session not found")
)
