package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/starford/vaultgate/internal/apperr"
	"github.com/starford/vaultgate/internal/session"
)

// Bridge runs both legs of the login handshake.
type Bridge struct {
	provider *oauth2.Config
	sessions *session.Store[AuthRequest]
	grants   *session.Store[Grant]
	now      func() time.Time
}

// NewBridge creates a Bridge. sessions correlate authorize requests with
// provider callbacks; grants hold issued downstream codes.
func NewBridge(provider *oauth2.Config, sessions *session.Store[AuthRequest], grants *session.Store[Grant]) *Bridge {
	return &Bridge{provider: provider, sessions: sessions, grants: grants, now: time.Now}
}

// Authorize validates req, parks it, and returns the provider login URL.
// A full session store yields apperr.ErrCapacityExceeded.
func (b *Bridge) Authorize(req AuthRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("oauth: %w: %v", apperr.ErrInvalidRequest, err)
	}
	req.CreatedAt = b.now()
	req.upstreamVerifier = oauth2.GenerateVerifier()

	key, err := b.sessions.Create(req)
	if err != nil {
		return "", fmt.Errorf("oauth: park request: %w", err)
	}
	return b.provider.AuthCodeURL(key, oauth2.S256ChallengeOption(req.upstreamVerifier)), nil
}

// Callback consumes the session named by key, exchanges the provider code,
// and returns the client redirect carrying a downstream code.
func (b *Bridge) Callback(ctx context.Context, key, code string) (string, error) {
	req, err := b.sessions.Consume(key)
	if err != nil {
		return "", fmt.Errorf("oauth: callback: %w", err)
	}
	if code == "" {
		return "", fmt.Errorf("oauth: callback: %w: missing code", apperr.ErrInvalidRequest)
	}

	tok, err := b.provider.Exchange(ctx, code, oauth2.VerifierOption(req.upstreamVerifier))
	if err != nil {
		return "", fmt.Errorf("oauth: exchange: %w", err)
	}

	grantCode, err := b.grants.Create(Grant{Request: req, Token: tok})
	if err != nil {
		return "", fmt.Errorf("oauth: issue code: %w", err)
	}
	return clientRedirect(req, url.Values{"code": {grantCode}})
}

// Deny consumes the session after the provider reported errCode and returns
// the client redirect carrying an access_denied error.
func (b *Bridge) Deny(key, errCode string) (string, error) {
	req, err := b.sessions.Consume(key)
	if err != nil {
		return "", fmt.Errorf("oauth: deny: %w", err)
	}
	v := url.Values{"error": {"access_denied"}}
	if errCode != "" && errCode != "access_denied" {
		v.Set("error_description", "provider error: "+errCode)
	}
	return clientRedirect(req, v)
}

// Redeem trades a downstream code for its grant. The code is gone after the
// first call whatever the outcome. client, redirect URI, and PKCE verifier
// must match the original authorize request.
func (b *Bridge) Redeem(code, clientID, redirectURI, verifier string) (Grant, error) {
	g, err := b.grants.Consume(code)
	if err != nil {
		return Grant{}, fmt.Errorf("oauth: redeem: %w", err)
	}
	if g.Request.ClientID != clientID || g.Request.RedirectURI != redirectURI {
		return Grant{}, fmt.Errorf("oauth: redeem: %w: client mismatch", apperr.ErrInvalidRequest)
	}
	if !g.Request.verifyPKCE(verifier) {
		return Grant{}, fmt.Errorf("oauth: redeem: %w: code verifier mismatch", apperr.ErrInvalidRequest)
	}
	return g, nil
}

// Pending reports how many authorize requests await a callback.
func (b *Bridge) Pending() int {
	return b.sessions.Len()
}

func clientRedirect(req AuthRequest, extra url.Values) (string, error) {
	u, err := url.Parse(req.RedirectURI)
	if err != nil {
		return "", errors.Join(apperr.ErrInvalidRequest, err)
	}
	q := u.Query()
	for k, vs := range extra {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	if req.State != "" {
		q.Set("state", req.State)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
