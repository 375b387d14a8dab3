package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/scenesync/internal/tracing"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Persistence modes.
const (
	PersistenceLocal  = "local"
	PersistenceRemote = "remote"
)

// Thumbnail renderers.
const (
	RendererRaster = "raster"
	RendererChrome = "chrome"
)

// Config represents the application configuration.
type Config struct {
	App           ApplicationConfig   `yaml:"app"`
	Storage       StorageConfig       `yaml:"storage"`
	SQLite        SQLiteConfig        `yaml:"sqlite"`
	Auth          AuthConfig          `yaml:"auth"`
	Persistence   PersistenceConfig   `yaml:"persistence"`
	Collaboration CollaborationConfig `yaml:"collaboration"`
	Thumbnail     ThumbnailConfig     `yaml:"thumbnail"`
	Tracing       tracing.Config      `yaml:"tracing"`
	Cache         CacheConfig         `yaml:"cache"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.Storage, &c.SQLite, &c.Auth, &c.Persistence, &c.Collaboration, &c.Thumbnail, &c.Cache,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing: enabled without endpoint")
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel     slog.Level         `yaml:"log_level"`
	HTTP         HTTPConfig         `yaml:"http"`
	InitialScene InitialSceneConfig `yaml:"initial_scene"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return c.InitialScene.Validate()
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

// InitialSceneConfig names the scene shown at startup. Both fields empty means none.
type InitialSceneConfig struct {
	WorkspaceID string `yaml:"workspace_id"`
	DocumentID  string `yaml:"document_id"`
}

// Set reports whether an initial scene is configured.
func (c *InitialSceneConfig) Set() bool {
	return c.WorkspaceID != "" || c.DocumentID != ""
}

// Validate validates the initial scene configuration.
func (c *InitialSceneConfig) Validate() error {
	if !c.Set() {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.WorkspaceID, validation.Required),
		validation.Field(&c.DocumentID, validation.Required),
	)
}

// StorageConfig holds the root directory of scene blobs.
type StorageConfig struct {
	Root string `yaml:"root"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
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

// PersistenceConfig selects where the coordinator fetches scenes from.
//
//   - "local" (default): the scenes stored by this process.
//   - "remote": another scenesync API at BaseURL, authenticated with Token.
type PersistenceConfig struct {
	Mode    string        `yaml:"mode"`
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the persistence configuration.
func (c *PersistenceConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = PersistenceLocal
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.In(PersistenceLocal, PersistenceRemote)),
		validation.Field(&c.BaseURL,
			validation.When(c.Mode == PersistenceRemote, validation.Required, is.URL)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// Remote reports whether scenes are fetched over HTTP.
func (c *PersistenceConfig) Remote() bool {
	return c.Mode == PersistenceRemote
}

// CollaborationConfig holds live-room configuration.
type CollaborationConfig struct {
	Enabled  bool          `yaml:"enabled"`
	RedisURL string        `yaml:"redis_url"`
	RoomTTL  time.Duration `yaml:"room_ttl"`
}

// Validate validates the collaboration configuration.
func (c *CollaborationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RedisURL, validation.When(c.Enabled,
			validation.Required,
			validation.By(func(any) error {
				if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
					return fmt.Errorf("must start with redis:// or rediss://")
				}
				return nil
			}),
		)),
		validation.Field(&c.RoomTTL, validation.Min(time.Duration(0))),
	)
}

// ThumbnailConfig holds preview rendering configuration.
type ThumbnailConfig struct {
	Renderer     string `yaml:"renderer"`
	MaxDimension int    `yaml:"max_dimension"`
	Padding      int    `yaml:"padding"`
}

// Validate validates the thumbnail configuration.
func (c *ThumbnailConfig) Validate() error {
	if c.Renderer == "" {
		c.Renderer = RendererRaster
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Renderer, validation.In(RendererRaster, RendererChrome)),
		validation.Field(&c.MaxDimension, validation.Required, validation.Min(16), validation.Max(4096)),
		validation.Field(&c.Padding, validation.Min(0)),
	)
}

// CacheConfig holds in-memory cache configuration.
type CacheConfig struct {
	ListingTTL time.Duration `yaml:"listing_ttl"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ListingTTL, validation.Min(time.Duration(0))),
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
		Storage: StorageConfig{
			Root: "./scenes",
		},
		SQLite: SQLiteConfig{
			Path: "./scenesync.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Persistence: PersistenceConfig{
			Mode:    PersistenceLocal,
			Timeout: 15 * time.Second,
		},
		Collaboration: CollaborationConfig{
			RoomTTL: 24 * time.Hour,
		},
		Thumbnail: ThumbnailConfig{
			Renderer:     RendererRaster,
			MaxDimension: 512,
			Padding:      16,
		},
		Tracing: tracing.Config{
			ServiceName: "scenesync",
		},
		Cache: CacheConfig{
			ListingTTL: 30 * time.Second,
		},
	}
}
