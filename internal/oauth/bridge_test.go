package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/starford/vaultgate/internal/apperr"
	"github.com/starford/vaultgate/internal/session"
)

const (
	clientRedirectURI = "https://client.example/cb"
	clientVerifier    = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

func s256(v string) string {
	sum := sha256.Sum256([]byte(v))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// fakeProvider serves a token endpoint that checks the PKCE verifier against
// the challenge seen on the login URL.
type fakeProvider struct {
	*httptest.Server
	challenge string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{}
	fp.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		if r.Form.Get("code") != "idp-code" || s256(r.Form.Get("code_verifier")) != fp.challenge {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "upstream-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(fp.Close)
	return fp
}

func testBridge(t *testing.T, opts ...session.Option) (*Bridge, *fakeProvider) {
	t.Helper()
	fp := newFakeProvider(t)
	cfg := &oauth2.Config{
		ClientID:     "vaultgate",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{AuthURL: fp.URL + "/authorize", TokenURL: fp.URL + "/token"},
		RedirectURL:  "https://gate.example/oauth/callback",
		Scopes:       []string{"openid"},
	}
	return NewBridge(cfg, session.New[AuthRequest](opts...), session.New[Grant]()), fp
}

func validRequest() AuthRequest {
	return AuthRequest{
		ClientID:            "mcp-client",
		RedirectURI:         clientRedirectURI,
		State:               "client-state",
		CodeChallenge:       s256(clientVerifier),
		CodeChallengeMethod: MethodS256,
	}
}

// login runs the authorize leg and returns the correlation key.
func login(t *testing.T, b *Bridge, fp *fakeProvider, req AuthRequest) string {
	t.Helper()
	loginURL, err := b.Authorize(req)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	u, err := url.Parse(loginURL)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(loginURL, fp.URL+"/authorize") {
		t.Fatalf("login URL %q not on provider", loginURL)
	}
	fp.challenge = u.Query().Get("code_challenge")
	return u.Query().Get("state")
}

func TestBridge_FullRoundTrip(t *testing.T) {
	b, fp := testBridge(t)
	key := login(t, b, fp, validRequest())
	if key == "" || key == "client-state" {
		t.Fatalf("provider state must be the correlation key, got %q", key)
	}
	if b.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", b.Pending())
	}

	redirect, err := b.Callback(context.Background(), key, "idp-code")
	if err != nil {
		t.Fatalf("Callback: %v", err)
	}
	u, _ := url.Parse(redirect)
	if !strings.HasPrefix(redirect, clientRedirectURI) {
		t.Errorf("redirect = %q", redirect)
	}
	if u.Query().Get("state") != "client-state" {
		t.Errorf("state = %q", u.Query().Get("state"))
	}
	code := u.Query().Get("code")
	if code == "" {
		t.Fatal("missing downstream code")
	}

	g, err := b.Redeem(code, "mcp-client", clientRedirectURI, clientVerifier)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if g.Token.AccessToken != "upstream-token" || g.Request.ClientID != "mcp-client" {
		t.Errorf("grant = %+v", g)
	}
	if _, err := b.Redeem(code, "mcp-client", clientRedirectURI, clientVerifier); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Errorf("second Redeem err = %v", err)
	}
}

func TestBridge_CallbackKeyIsOneTime(t *testing.T) {
	b, fp := testBridge(t)
	key := login(t, b, fp, validRequest())
	if _, err := b.Callback(context.Background(), key, "idp-code"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Callback(context.Background(), key, "idp-code"); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Errorf("replayed callback err = %v, want ErrSessionNotFound", err)
	}
}

func TestBridge_FailedExchangeStillConsumesKey(t *testing.T) {
	b, fp := testBridge(t)
	key := login(t, b, fp, validRequest())
	if _, err := b.Callback(context.Background(), key, "wrong-code"); err == nil {
		t.Fatal("expected exchange failure")
	}
	if _, err := b.Callback(context.Background(), key, "idp-code"); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestBridge_ExpiredSession(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b, fp := testBridge(t, session.WithTTL(time.Minute), session.WithClock(func() time.Time { return now }))
	key := login(t, b, fp, validRequest())
	now = now.Add(2 * time.Minute)
	if _, err := b.Callback(context.Background(), key, "idp-code"); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestBridge_Capacity(t *testing.T) {
	b, _ := testBridge(t, session.WithMaxEntries(1))
	if _, err := b.Authorize(validRequest()); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Authorize(validRequest()); !errors.Is(err, apperr.ErrCapacityExceeded) {
		t.Errorf("err = %v, want ErrCapacityExceeded", err)
	}
}

func TestBridge_InvalidRequests(t *testing.T) {
	b, _ := testBridge(t)
	mutate := map[string]func(*AuthRequest){
		"missing client":    func(r *AuthRequest) { r.ClientID = "" },
		"relative redirect": func(r *AuthRequest) { r.RedirectURI = "/cb" },
		"javascript scheme": func(r *AuthRequest) { r.RedirectURI = "javascript:alert(1)" },
		"fragment":          func(r *AuthRequest) { r.RedirectURI = clientRedirectURI + "#frag" },
		"no challenge":      func(r *AuthRequest) { r.CodeChallenge = "" },
		"bad method":        func(r *AuthRequest) { r.CodeChallengeMethod = "S512" },
	}
	for name, fn := range mutate {
		req := validRequest()
		fn(&req)
		if _, err := b.Authorize(req); !errors.Is(err, apperr.ErrInvalidRequest) {
			t.Errorf("%s: err = %v, want ErrInvalidRequest", name, err)
		}
	}
	if b.Pending() != 0 {
		t.Errorf("invalid requests were stored, Pending = %d", b.Pending())
	}
}

func TestBridge_RedeemChecksVerifierAndClient(t *testing.T) {
	b, fp := testBridge(t)
	issue := func() string {
		key := login(t, b, fp, validRequest())
		redirect, err := b.Callback(context.Background(), key, "idp-code")
		if err != nil {
			t.Fatal(err)
		}
		u, _ := url.Parse(redirect)
		return u.Query().Get("code")
	}

	if _, err := b.Redeem(issue(), "mcp-client", clientRedirectURI, "wrong-verifier"); !errors.Is(err, apperr.ErrInvalidRequest) {
		t.Errorf("wrong verifier err = %v", err)
	}
	if _, err := b.Redeem(issue(), "other-client", clientRedirectURI, clientVerifier); !errors.Is(err, apperr.ErrInvalidRequest) {
		t.Errorf("wrong client err = %v", err)
	}
}

func TestBridge_Deny(t *testing.T) {
	b, fp := testBridge(t)
	key := login(t, b, fp, validRequest())
	redirect, err := b.Deny(key, "access_denied")
	if err != nil {
		t.Fatalf("Deny: %v", err)
	}
	u, _ := url.Parse(redirect)
	if u.Query().Get("error") != "access_denied" || u.Query().Get("state") != "client-state" {
		t.Errorf("redirect = %q", redirect)
	}
	if _, err := b.Callback(context.Background(), key, "idp-code"); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Errorf("denied session still usable: %v", err)
	}
}

func TestVerifyPKCE_Plain(t *testing.T) {
	r := AuthRequest{CodeChallenge: clientVerifier, CodeChallengeMethod: MethodPlain}
	if !r.verifyPKCE(clientVerifier) {
		t.Error("plain verifier should match")
	}
	if r.verifyPKCE("") {
		t.Error("empty verifier must not match")
	}
}
