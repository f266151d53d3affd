package config

import (
	"fmt"
	"os"
	"time"

	"github.com/JaimeStill/loam/pkg/formatting"
	"github.com/JaimeStill/loam/pkg/middleware"
	"github.com/JaimeStill/loam/pkg/openapi"
	"github.com/JaimeStill/loam/pkg/pagination"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "LOAM_CORS_ENABLED",
	Origins:          "LOAM_CORS_ORIGINS",
	AllowedMethods:   "LOAM_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "LOAM_CORS_ALLOWED_HEADERS",
	AllowCredentials: "LOAM_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "LOAM_CORS_MAX_AGE",
}

var openAPIEnv = &openapi.ConfigEnv{
	Title:       "LOAM_OPENAPI_TITLE",
	Description: "LOAM_OPENAPI_DESCRIPTION",
	Servers:     "LOAM_OPENAPI_SERVERS",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "LOAM_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "LOAM_PAGINATION_MAX_PAGE_SIZE",
}

// APIConfig holds API routing, capture session, CORS, pagination and
// OpenAPI document settings.
type APIConfig struct {
	BasePath           string                `toml:"base_path"`
	MaxUploadSize      string                `toml:"max_upload_size"`
	SessionIdleTimeout string                `toml:"session_idle_timeout"`
	CORS               middleware.CORSConfig `toml:"cors"`
	Pagination         pagination.Config     `toml:"pagination"`
	OpenAPI            openapi.Config        `toml:"openapi"`
}

// SessionIdleTimeoutDuration returns SessionIdleTimeout as a time.Duration.
func (c *APIConfig) SessionIdleTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.SessionIdleTimeout)
	return d
}

func (c *APIConfig) MaxUploadSizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return 20 * 1024 * 1024 // 20MB fallback
	}
	return size
}

// Finalize applies defaults, environment variable overrides, and validation
// for the API config and its nested CORS and pagination configs.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if _, err := time.ParseDuration(c.SessionIdleTimeout); err != nil {
		return fmt.Errorf("invalid session_idle_timeout: %w", err)
	}
	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	if err := c.OpenAPI.Finalize(openAPIEnv); err != nil {
		return fmt.Errorf("openapi: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}
	if overlay.SessionIdleTimeout != "" {
		c.SessionIdleTimeout = overlay.SessionIdleTimeout
	}

	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
	c.OpenAPI.Merge(&overlay.OpenAPI)
}

func (c *APIConfig) loadDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "20MB"
	}
	if c.SessionIdleTimeout == "" {
		c.SessionIdleTimeout = "30m"
	}
}

func (c *APIConfig) loadEnv() {
	if v := os.Getenv("LOAM_API_BASE_PATH"); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv("LOAM_API_MAX_UPLOAD_SIZE"); v != "" {
		c.MaxUploadSize = v
	}
	if v := os.Getenv("LOAM_API_SESSION_IDLE_TIMEOUT"); v != "" {
		c.SessionIdleTimeout = v
	}
}
