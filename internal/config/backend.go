package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/JaimeStill/loam/pkg/backend"
)

const (
	EnvBackendBaseURL    = "LOAM_BACKEND_BASE_URL"
	EnvBackendTimeout    = "LOAM_BACKEND_TIMEOUT"
	EnvBackendRecordPath = "LOAM_BACKEND_RECORD_PATH"
	EnvBackendImagePath  = "LOAM_BACKEND_IMAGE_PATH"
	EnvBackendCsvPath    = "LOAM_BACKEND_CSV_PATH"
	EnvBackendHealthPath = "LOAM_BACKEND_HEALTH_PATH"
)

// BackendConfig locates the prediction service.
type BackendConfig struct {
	BaseURL    string `toml:"base_url"`
	Timeout    string `toml:"timeout"`
	RecordPath string `toml:"record_path"`
	ImagePath  string `toml:"image_path"`
	CsvPath    string `toml:"csv_path"`
	HealthPath string `toml:"health_path"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *BackendConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Endpoints returns the configured endpoint paths.
func (c *BackendConfig) Endpoints() backend.Endpoints {
	return backend.Endpoints{
		Record: c.RecordPath,
		Image:  c.ImagePath,
		Csv:    c.CsvPath,
		Health: c.HealthPath,
	}
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *BackendConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *BackendConfig) Merge(overlay *BackendConfig) {
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.RecordPath != "" {
		c.RecordPath = overlay.RecordPath
	}
	if overlay.ImagePath != "" {
		c.ImagePath = overlay.ImagePath
	}
	if overlay.CsvPath != "" {
		c.CsvPath = overlay.CsvPath
	}
	if overlay.HealthPath != "" {
		c.HealthPath = overlay.HealthPath
	}
}

func (c *BackendConfig) loadDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:5000"
	}
	if c.Timeout == "" {
		c.Timeout = "60s"
	}
	if c.RecordPath == "" {
		c.RecordPath = backend.DefaultEndpoints.Record
	}
	if c.ImagePath == "" {
		c.ImagePath = backend.DefaultEndpoints.Image
	}
	if c.CsvPath == "" {
		c.CsvPath = backend.DefaultEndpoints.Csv
	}
	if c.HealthPath == "" {
		c.HealthPath = backend.DefaultEndpoints.Health
	}
}

func (c *BackendConfig) loadEnv() {
	if v := os.Getenv(EnvBackendBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvBackendTimeout); v != "" {
		c.Timeout = v
	}
	if v := os.Getenv(EnvBackendRecordPath); v != "" {
		c.RecordPath = v
	}
	if v := os.Getenv(EnvBackendImagePath); v != "" {
		c.ImagePath = v
	}
	if v := os.Getenv(EnvBackendCsvPath); v != "" {
		c.CsvPath = v
	}
	if v := os.Getenv(EnvBackendHealthPath); v != "" {
		c.HealthPath = v
	}
}

func (c *BackendConfig) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url: %s", c.BaseURL)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}
