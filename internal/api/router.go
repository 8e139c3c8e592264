package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with the OAuth legs and the MCP endpoint.
// oauthHandler may be nil when the login bridge is disabled.
// authEnabled and token gate /mcp with a static Bearer token.
func NewRouter(oauthHandler *OAuthHandler, mcpHandler http.Handler, authEnabled bool, token string) chi.Router {
	r := chi.NewRouter()

	if oauthHandler != nil {
		r.Route("/oauth", func(r chi.Router) {
			r.Get("/authorize", oauthHandler.Authorize)
			r.Get("/callback", oauthHandler.Callback)
			r.Post("/token", oauthHandler.Token)
		})
	}

	if mcpHandler != nil {
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(authEnabled, token))
			r.Handle("/mcp", mcpHandler)
			r.Handle("/mcp/*", mcpHandler)
		})
	}

	return r
}
