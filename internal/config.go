package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	Cache  CacheConfig       `yaml:"cache"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	OAuth  OAuthConfig       `yaml:"oauth"`
	Errors ErrorsConfig      `yaml:"errors"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.OAuth.Validate(); err != nil {
		return err
	}
	if c.OAuth.Enabled && c.App.PublicURL == "" {
		return errors.New("app: public_url is required when oauth is enabled")
	}
	return c.Errors.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	HTTP      HTTPConfig `yaml:"http"`
	PublicURL string     `yaml:"public_url"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.PublicURL, is.URL),
	); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the vault directory and the guide file name looked up in
// each of its directories.
type VaultConfig struct {
	Path      string `yaml:"path"`
	GuideFile string `yaml:"guide_file"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.GuideFile, validation.Required, validation.By(plainFileName)),
	)
}

func plainFileName(v any) error {
	s, _ := v.(string)
	for _, r := range s {
		if r == '/' || r == '\\' {
			return errors.New("must be a file name without directories")
		}
	}
	if s == "." || s == ".." {
		return errors.New("must be a file name without directories")
	}
	return nil
}

// CacheConfig bounds the file content cache.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxEntries, validation.Required, validation.Min(1)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the /mcp endpoint.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// OAuthConfig configures the login bridge. Session limits apply to pending
// authorize requests; CodeTTL bounds issued downstream codes.
type OAuthConfig struct {
	Enabled       bool           `yaml:"enabled"`
	SessionTTL    time.Duration  `yaml:"session_ttl"`
	MaxSessions   int            `yaml:"max_sessions"`
	SweepInterval time.Duration  `yaml:"sweep_interval"`
	CodeTTL       time.Duration  `yaml:"code_ttl"`
	Provider      ProviderConfig `yaml:"provider"`
}

// Validate validates the OAuth configuration. Provider settings are only
// required when the bridge is enabled.
func (c *OAuthConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.SessionTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxSessions, validation.Required, validation.Min(1)),
		validation.Field(&c.SweepInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.CodeTTL, validation.Required, validation.Min(time.Second)),
	); err != nil {
		return fmt.Errorf("oauth: %w", err)
	}
	if !c.Enabled {
		return nil
	}
	if err := c.Provider.Validate(); err != nil {
		return fmt.Errorf("oauth: provider: %w", err)
	}
	return nil
}

// ProviderConfig identifies the upstream identity provider.
type ProviderConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	Scopes       []string `yaml:"scopes"`
}

// Validate validates the provider configuration.
func (c *ProviderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ClientID, validation.Required),
		validation.Field(&c.AuthURL, validation.Required, is.URL),
		validation.Field(&c.TokenURL, validation.Required, is.URL),
	)
}

// ErrorsConfig controls client-facing error text.
type ErrorsConfig struct {
	MaxMessageLength int `yaml:"max_message_length"`
}

// Validate validates the errors configuration.
func (c *ErrorsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxMessageLength, validation.Required, validation.Min(16), validation.Max(4096)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:      "./vault",
			GuideFile: "AGENTS.md",
		},
		Cache: CacheConfig{
			MaxEntries: 1024,
		},
		SQLite: SQLiteConfig{
			Path: "./vaultgate.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		OAuth: OAuthConfig{
			SessionTTL:    10 * time.Minute,
			MaxSessions:   1000,
			SweepInterval: time.Minute,
			CodeTTL:       time.Minute,
		},
		Errors: ErrorsConfig{
			MaxMessageLength: 300,
		},
	}
}
