package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/loam/pkg/auth"
	"github.com/JaimeStill/loam/pkg/database"
	"github.com/JaimeStill/loam/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvLoamEnv             = "LOAM_ENV"
	EnvLoamConfigDir       = "LOAM_CONFIG_DIR"
	EnvLoamShutdownTimeout = "LOAM_SHUTDOWN_TIMEOUT"
	EnvLoamVersion         = "LOAM_VERSION"
	EnvLoamLogLevel        = "LOAM_LOG_LEVEL"
	EnvLoamLogFormat       = "LOAM_LOG_FORMAT"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

var databaseEnv = &database.Env{
	Host:            "LOAM_DB_HOST",
	Port:            "LOAM_DB_PORT",
	Name:            "LOAM_DB_NAME",
	User:            "LOAM_DB_USER",
	Password:        "LOAM_DB_PASSWORD",
	SSLMode:         "LOAM_DB_SSL_MODE",
	MaxOpenConns:    "LOAM_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "LOAM_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "LOAM_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "LOAM_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "LOAM_STORAGE_CONTAINER_NAME",
	ConnectionString: "LOAM_STORAGE_CONNECTION_STRING",
	ServiceURL:       "LOAM_STORAGE_SERVICE_URL",
}

var authEnv = &auth.Env{
	CookieName:   "LOAM_AUTH_COOKIE_NAME",
	CookieSecure: "LOAM_AUTH_COOKIE_SECURE",
	SessionTTL:   "LOAM_AUTH_SESSION_TTL",
	LoginPath:    "LOAM_AUTH_LOGIN_PATH",
	Protected:    "LOAM_AUTH_PROTECTED",
	Issuer:       "LOAM_AUTH_ISSUER",
	ClientID:     "LOAM_AUTH_CLIENT_ID",
	DevLogin:     "LOAM_AUTH_DEV_LOGIN",
}

// Config is the root configuration for the loam service.
type Config struct {
	Server          ServerConfig    `toml:"server"`
	Database        database.Config `toml:"database"`
	Storage         storage.Config  `toml:"storage"`
	API             APIConfig       `toml:"api"`
	Auth            auth.Config     `toml:"auth"`
	Backend         BackendConfig   `toml:"backend"`
	Camera          CameraConfig    `toml:"camera"`
	LogLevel        string          `toml:"log_level"`
	LogFormat       string          `toml:"log_format"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Version         string          `toml:"version"`
}

// Env returns the LOAM_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvLoamEnv); env != "" {
		return env
	}
	return "local"
}

// Level returns LogLevel as a slog.Level.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// LogHandler returns the slog handler selected by LogFormat, writing to w.
func (c *Config) LogHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.LogFormat == LogFormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads config.toml from LOAM_CONFIG_DIR (or the working directory),
// merges the config.<LOAM_ENV>.toml overlay when present, and finalizes
// every section. Missing files are not an error; defaults and environment
// variables then supply everything. Unknown keys are rejected.
func Load() (*Config, error) {
	dir := os.Getenv(EnvLoamConfigDir)
	cfg := &Config{}

	base, err := loadIfExists(filepath.Join(dir, BaseConfigFile))
	if err != nil {
		return nil, err
	}
	if base != nil {
		cfg = base
	}

	if env := os.Getenv(EnvLoamEnv); env != "" {
		path := filepath.Join(dir, fmt.Sprintf(OverlayConfigPattern, env))
		overlay, err := loadIfExists(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		if overlay != nil {
			cfg.Merge(overlay)
		}
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}
	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	for _, f := range []struct{ dst, src *string }{
		{&c.ShutdownTimeout, &overlay.ShutdownTimeout},
		{&c.Version, &overlay.Version},
		{&c.LogLevel, &overlay.LogLevel},
		{&c.LogFormat, &overlay.LogFormat},
	} {
		if *f.src != "" {
			*f.dst = *f.src
		}
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Auth.Merge(&overlay.Auth)
	c.Backend.Merge(&overlay.Backend)
	c.Camera.Merge(&overlay.Camera)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()
	if err := c.validate(); err != nil {
		return err
	}

	if c.Env() == "local" && c.Auth.Issuer == "" {
		c.Auth.DevLogin = true
	}

	steps := []struct {
		section string
		run     func() error
	}{
		{"server", c.Server.Finalize},
		{"database", func() error { return c.Database.Finalize(databaseEnv) }},
		{"storage", func() error { return c.Storage.Finalize(storageEnv) }},
		{"api", c.API.Finalize},
		{"auth", func() error { return c.Auth.Finalize(authEnv) }},
		{"backend", c.Backend.Finalize},
		{"camera", c.Camera.Finalize},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			return fmt.Errorf("%s: %w", s.section, err)
		}
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = LogFormatText
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvLoamShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvLoamVersion); v != "" {
		c.Version = v
	}
	if v := os.Getenv(EnvLoamLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLoamLogFormat); v != "" {
		c.LogFormat = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("invalid log_format: %s", c.LogFormat)
	}
	return nil
}

// loadIfExists decodes path strictly. A missing file yields nil, nil.
func loadIfExists(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%s: unknown keys:\n%s", path, strict.String())
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}
