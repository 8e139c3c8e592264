// Package oauth bridges an upstream MCP client authorization request to a
// downstream identity provider login and back.
//
// The authorize leg parks the client's request in a one-time session store
// and sends the browser to the provider with the session key as state. The
// callback leg consumes that key exactly once, exchanges the provider code,
// and hands the client a fresh one-time code it can redeem with PKCE.
package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/oauth2"
)

// PKCE methods accepted on the authorize leg.
const (
	MethodS256  = "S256"
	MethodPlain = "plain"
)

// AuthRequest is the client's authorize request, held until the provider
// calls back.
type AuthRequest struct {
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	State               string    `json:"state"`
	CodeChallenge       string    `json:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	CreatedAt           time.Time `json:"created_at"`

	// upstreamVerifier is the PKCE verifier for the provider leg.
	upstreamVerifier string
}

// Validate checks the fields supplied by the client.
func (r *AuthRequest) Validate() error {
	if r.CodeChallengeMethod == "" {
		r.CodeChallengeMethod = MethodPlain
	}
	return validation.ValidateStruct(r,
		validation.Field(&r.ClientID, validation.Required, validation.Length(1, 256)),
		validation.Field(&r.RedirectURI, validation.Required, validation.Length(1, 2048), validation.By(redirectURI)),
		validation.Field(&r.State, validation.Length(0, 1024)),
		validation.Field(&r.CodeChallenge, validation.Required, validation.Length(43, 128)),
		validation.Field(&r.CodeChallengeMethod, validation.In(MethodS256, MethodPlain)),
	)
}

var forbiddenSchemes = map[string]bool{"javascript": true, "data": true, "file": true, "vbscript": true}

func redirectURI(v any) error {
	s, _ := v.(string)
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() {
		return errors.New("must be an absolute URI")
	}
	if forbiddenSchemes[strings.ToLower(u.Scheme)] {
		return errors.New("scheme not allowed")
	}
	if u.Fragment != "" {
		return errors.New("must not contain a fragment")
	}
	return nil
}

// verifyPKCE reports whether verifier matches the stored challenge.
func (r AuthRequest) verifyPKCE(verifier string) bool {
	if verifier == "" {
		return false
	}
	expected := verifier
	if r.CodeChallengeMethod == MethodS256 {
		sum := sha256.Sum256([]byte(verifier))
		expected = base64.RawURLEncoding.EncodeToString(sum[:])
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(r.CodeChallenge)) == 1
}

// Grant is what a redeemed downstream code yields: the original request and
// the provider's token for the signed-in identity.
type Grant struct {
	Request AuthRequest
	Token   *oauth2.Token
}
