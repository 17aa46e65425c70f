package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/prose/internal/markdown"
	"github.com/starford/prose/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Workspace   WorkspaceConfig   `yaml:"workspace"`
	Editor      EditorConfig      `yaml:"editor"`
	Preferences PreferencesConfig `yaml:"preferences"`
	Auth        AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	if err := c.Editor.Validate(); err != nil {
		return err
	}
	if err := c.Preferences.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
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

// WorkspaceConfig selects the folder opened at startup and the storage
// backend.
//
// Storage is "path" (plain filesystem paths) or "handle" (files are reached
// only through the mounted folder).
type WorkspaceConfig struct {
	Path    string `yaml:"path"`
	Storage string `yaml:"storage"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	if c.Storage == "" {
		c.Storage = storage.KindPath
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Storage, validation.In(storage.KindPath, storage.KindHandle)),
	)
}

// EditorConfig holds rendering and session tunables.
type EditorConfig struct {
	Renderer      string        `yaml:"renderer"`
	AutoSaveDelay time.Duration `yaml:"auto_save_delay"`
	MaxFileSize   int64         `yaml:"max_file_size"`
}

// Validate validates the editor configuration.
func (c *EditorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Renderer, validation.In(markdown.EngineBuiltin, markdown.EngineGoldmark)),
		validation.Field(&c.AutoSaveDelay, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.MaxFileSize, validation.Required, validation.Min(int64(1))),
	)
}

// PreferencesConfig holds the preferences database location.
type PreferencesConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the preferences configuration.
func (c *PreferencesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
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
	// Normalise empty mode to "disabled" for backward compatibility.
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 7420,
			},
		},
		Workspace: WorkspaceConfig{
			Storage: storage.KindPath,
		},
		Editor: EditorConfig{
			Renderer:      markdown.EngineGoldmark,
			AutoSaveDelay: 2 * time.Second,
			MaxFileSize:   10 << 20,
		},
		Preferences: PreferencesConfig{
			Path: "./prose.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
