package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/starford/vaultgate/internal/apperr"
	"github.com/starford/vaultgate/internal/oauth"
	"github.com/starford/vaultgate/internal/sanitize"
)

// OAuthHandler serves the authorize, callback, and token legs.
type OAuthHandler struct {
	bridge     *oauth.Bridge
	sanitizer  *sanitize.Sanitizer
	logger     *slog.Logger
	retryAfter time.Duration
}

// NewOAuthHandler creates the OAuth HTTP handlers. retryAfter is announced
// to clients turned away because too many logins are pending.
func NewOAuthHandler(bridge *oauth.Bridge, sanitizer *sanitize.Sanitizer, logger *slog.Logger, retryAfter time.Duration) *OAuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return &OAuthHandler{bridge: bridge, sanitizer: sanitizer, logger: logger, retryAfter: retryAfter}
}

// Authorize handles GET /oauth/authorize.
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if rt := q.Get("response_type"); rt != "code" {
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported response_type"))
		return
	}

	loginURL, err := h.bridge.Authorize(oauth.AuthRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	})
	if err != nil {
		h.fail(w, "oauth: authorize failed", err)
		return
	}
	http.Redirect(w, r, loginURL, http.StatusFound)
}

// Callback handles GET /oauth/callback from the identity provider.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("state")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing state"))
		return
	}

	var (
		target string
		err    error
	)
	if providerErr := q.Get("error"); providerErr != "" {
		target, err = h.bridge.Deny(key, providerErr)
	} else {
		target, err = h.bridge.Callback(r.Context(), key, q.Get("code"))
	}
	if err != nil {
		h.fail(w, "oauth: callback failed", err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Token handles POST /oauth/token, trading a downstream code for the
// provider token.
func (h *OAuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid form"))
		return
	}
	if gt := r.PostForm.Get("grant_type"); gt != "authorization_code" {
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported grant_type"))
		return
	}

	g, err := h.bridge.Redeem(
		r.PostForm.Get("code"),
		r.PostForm.Get("client_id"),
		r.PostForm.Get("redirect_uri"),
		r.PostForm.Get("code_verifier"),
	)
	if err != nil {
		h.fail(w, "oauth: token failed", err)
		return
	}

	resp := tokenResponse{
		AccessToken:  g.Token.AccessToken,
		TokenType:    g.Token.Type(),
		RefreshToken: g.Token.RefreshToken,
	}
	if !g.Token.Expiry.IsZero() {
		resp.ExpiresIn = int64(time.Until(g.Token.Expiry).Seconds())
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (h *OAuthHandler) fail(w http.ResponseWriter, msg string, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, apperr.ErrCapacityExceeded):
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", strconv.Itoa(int(h.retryAfter/time.Second)))
	case errors.Is(err, apperr.ErrInvalidRequest), errors.Is(err, apperr.ErrSessionNotFound):
		status = http.StatusBadRequest
	}
	text, incident := h.sanitizer.Report(h.logger, msg, err, slog.Int("status", status))
	writeJSON(w, status, errResponse{Error: text, Incident: incident})
}
