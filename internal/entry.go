// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/starford/vaultgate/internal/api"
	"github.com/starford/vaultgate/internal/filecache"
	"github.com/starford/vaultgate/internal/guide"
	"github.com/starford/vaultgate/internal/index"
	"github.com/starford/vaultgate/internal/mcpserver"
	"github.com/starford/vaultgate/internal/oauth"
	"github.com/starford/vaultgate/internal/pathguard"
	"github.com/starford/vaultgate/internal/sanitize"
	"github.com/starford/vaultgate/internal/session"
	"github.com/starford/vaultgate/internal/storage"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// stdout carries the protocol in stdio mode.
	var logOut io.Writer = os.Stdout
	if app.stdio {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("guide_file", cfg.Vault.GuideFile),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("oauth_enabled", cfg.OAuth.Enabled),
		slog.Bool("stdio", app.stdio),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	guard, err := pathguard.New(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}
	store := storage.NewFS(guard)
	cache := filecache.New(filecache.WithMaxEntries(cfg.Cache.MaxEntries))
	guides := guide.New(guard, cache, guide.WithFileName(cfg.Vault.GuideFile))
	sanitizer := sanitize.New(
		sanitize.WithMaxLength(cfg.Errors.MaxMessageLength),
		sanitize.WithPrefixes(guard.Root(), cfg.Vault.Path),
	)

	// Initialize SQLite index.
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	// Run initial sync.
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	mcpSrv := mcpserver.New(guard, store, guides, cache, db,
		mcpserver.WithSanitizer(sanitizer),
		mcpserver.WithLogger(logger),
		mcpserver.WithVersion(app.version),
	)

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the index and cache in step with the vault.
	g.Go(func() error {
		if err := index.Watch(gCtx, db, store, cache, logger); err != nil {
			logger.Warn("file watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	if app.stdio {
		g.Go(func() error {
			logger.Info("Serving MCP over stdio")
			if err := mcpSrv.ServeStdio(gCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("stdio server error: %w", err)
			}
			return errStdioClosed
		})
		g.Go(func() error { return waitForSignal(gCtx, logger) })
		return finish(g, logger)
	}

	var oauthHandler *api.OAuthHandler
	if cfg.OAuth.Enabled {
		sessions := session.New[oauth.AuthRequest](
			session.WithTTL(cfg.OAuth.SessionTTL),
			session.WithMaxEntries(cfg.OAuth.MaxSessions),
		)
		grants := session.New[oauth.Grant](
			session.WithTTL(cfg.OAuth.CodeTTL),
			session.WithMaxEntries(cfg.OAuth.MaxSessions),
		)
		g.Go(func() error {
			sessions.Run(gCtx, cfg.OAuth.SweepInterval)
			return nil
		})
		g.Go(func() error {
			grants.Run(gCtx, cfg.OAuth.SweepInterval)
			return nil
		})

		bridge := oauth.NewBridge(newProviderConfig(cfg), sessions, grants)
		oauthHandler = api.NewOAuthHandler(bridge, sanitizer, logger, cfg.OAuth.SweepInterval)
	}

	apiRouter := api.NewRouter(oauthHandler, mcpSrv.HTTPHandler(), cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := db.Count(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		err := waitForSignal(gCtx, logger)

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return err
	})

	return finish(g, logger)
}

// errStdioClosed stops the group when the MCP client hangs up.
var errStdioClosed = errors.New("stdio closed")

// errShutdown stops the group after a signal.
var errShutdown = errors.New("shutdown requested")

func waitForSignal(ctx context.Context, logger *slog.Logger) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		return errShutdown
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown")
		return nil
	}
}

func finish(g *errgroup.Group, logger *slog.Logger) error {
	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) && !errors.Is(err, errStdioClosed) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

func newProviderConfig(cfg *Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.OAuth.Provider.ClientID,
		ClientSecret: cfg.OAuth.Provider.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.OAuth.Provider.AuthURL,
			TokenURL: cfg.OAuth.Provider.TokenURL,
		},
		RedirectURL: strings.TrimRight(cfg.App.PublicURL, "/") + "/oauth/callback",
		Scopes:      cfg.OAuth.Provider.Scopes,
	}
}
