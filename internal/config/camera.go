package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvCameraDevice         = "LOAM_CAMERA_DEVICE"
	EnvCameraSnapshotURL    = "LOAM_CAMERA_SNAPSHOT_URL"
	EnvCameraWidth          = "LOAM_CAMERA_WIDTH"
	EnvCameraHeight         = "LOAM_CAMERA_HEIGHT"
	EnvCameraAcquireTimeout = "LOAM_CAMERA_ACQUIRE_TIMEOUT"
)

// Camera device kinds.
const (
	CameraDeviceNone = "none"
	CameraDeviceHTTP = "http"
)

// CameraConfig selects the capture device for the live camera mode.
type CameraConfig struct {
	Device         string `toml:"device"`
	SnapshotURL    string `toml:"snapshot_url"`
	Width          int    `toml:"width"`
	Height         int    `toml:"height"`
	AcquireTimeout string `toml:"acquire_timeout"`
}

// AcquireTimeoutDuration returns AcquireTimeout as a time.Duration.
func (c *CameraConfig) AcquireTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.AcquireTimeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *CameraConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *CameraConfig) Merge(overlay *CameraConfig) {
	if overlay.Device != "" {
		c.Device = overlay.Device
	}
	if overlay.SnapshotURL != "" {
		c.SnapshotURL = overlay.SnapshotURL
	}
	if overlay.Width != 0 {
		c.Width = overlay.Width
	}
	if overlay.Height != 0 {
		c.Height = overlay.Height
	}
	if overlay.AcquireTimeout != "" {
		c.AcquireTimeout = overlay.AcquireTimeout
	}
}

func (c *CameraConfig) loadDefaults() {
	if c.Device == "" {
		c.Device = CameraDeviceNone
	}
	if c.Width == 0 {
		c.Width = 400
	}
	if c.Height == 0 {
		c.Height = 200
	}
	if c.AcquireTimeout == "" {
		c.AcquireTimeout = "10s"
	}
}

func (c *CameraConfig) loadEnv() {
	if v := os.Getenv(EnvCameraDevice); v != "" {
		c.Device = v
	}
	if v := os.Getenv(EnvCameraSnapshotURL); v != "" {
		c.SnapshotURL = v
	}
	if v := os.Getenv(EnvCameraWidth); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Width = n
		}
	}
	if v := os.Getenv(EnvCameraHeight); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Height = n
		}
	}
	if v := os.Getenv(EnvCameraAcquireTimeout); v != "" {
		c.AcquireTimeout = v
	}
}

func (c *CameraConfig) validate() error {
	switch c.Device {
	case CameraDeviceNone:
	case CameraDeviceHTTP:
		if c.SnapshotURL == "" {
			return fmt.Errorf("snapshot_url required for http device")
		}
	default:
		return fmt.Errorf("unknown device: %s", c.Device)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid still dimensions: %dx%d", c.Width, c.Height)
	}
	if _, err := time.ParseDuration(c.AcquireTimeout); err != nil {
		return fmt.Errorf("invalid acquire_timeout: %w", err)
	}
	return nil
}
