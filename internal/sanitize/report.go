package sanitize

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/starford/vaultgate/internal/apperr"
)

// Client-facing text for failures whose details must not leak.
const (
	TextAccessDenied   = "access denied"
	TextNotFound       = "not found"
	TextSessionInvalid = "authorization session not found or expired"
	TextBusy           = "too many pending authorization requests, retry later"
)

// Error renders err for an untrusted client. Path escapes and session
// failures get fixed wording so their cause cannot be probed; anything else
// is scrubbed with Message.
func (s *Sanitizer) Error(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, apperr.ErrPathEscape):
		return TextAccessDenied
	case errors.Is(err, apperr.ErrSessionNotFound):
		return TextSessionInvalid
	case errors.Is(err, apperr.ErrCapacityExceeded):
		return TextBusy
	case errors.Is(err, apperr.ErrNotFound):
		return TextNotFound
	}
	return s.Message(err.Error())
}

// Report logs err in full under a new incident id and returns the client
// text together with that id.
func (s *Sanitizer) Report(logger *slog.Logger, msg string, err error, attrs ...any) (text, incident string) {
	incident = uuid.NewString()
	if logger == nil {
		logger = slog.Default()
	}
	args := append([]any{slog.String("incident", incident), slog.String("error", err.Error())}, attrs...)
	logger.Warn(msg, args...)
	return s.Error(err), incident
}
