package auth

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds AuthGate and session parameters.
type Config struct {
	CookieName   string   `toml:"cookie_name"`
	CookieSecure bool     `toml:"cookie_secure"`
	SessionTTL   string   `toml:"session_ttl"`
	LoginPath    string   `toml:"login_path"`
	Protected    []string `toml:"protected"`
	Issuer       string   `toml:"issuer"`
	ClientID     string   `toml:"client_id"`
	DevLogin     bool     `toml:"dev_login"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	CookieName   string
	CookieSecure string
	SessionTTL   string
	LoginPath    string
	Protected    string
	Issuer       string
	ClientID     string
	DevLogin     string
}

// SessionTTLDuration returns SessionTTL as a time.Duration.
func (c *Config) SessionTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.SessionTTL)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. Boolean fields always apply.
func (c *Config) Merge(overlay *Config) {
	c.CookieSecure = overlay.CookieSecure
	c.DevLogin = overlay.DevLogin

	if overlay.CookieName != "" {
		c.CookieName = overlay.CookieName
	}
	if overlay.SessionTTL != "" {
		c.SessionTTL = overlay.SessionTTL
	}
	if overlay.LoginPath != "" {
		c.LoginPath = overlay.LoginPath
	}
	if overlay.Protected != nil {
		c.Protected = overlay.Protected
	}
	if overlay.Issuer != "" {
		c.Issuer = overlay.Issuer
	}
	if overlay.ClientID != "" {
		c.ClientID = overlay.ClientID
	}
}

func (c *Config) loadDefaults() {
	if c.CookieName == "" {
		c.CookieName = "loam_session"
	}
	if c.SessionTTL == "" {
		c.SessionTTL = "24h"
	}
	if c.LoginPath == "" {
		c.LoginPath = "/login"
	}
	if len(c.Protected) == 0 {
		c.Protected = []string{"/upload", "/results"}
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.CookieName != "" {
		if v := os.Getenv(env.CookieName); v != "" {
			c.CookieName = v
		}
	}
	if env.CookieSecure != "" {
		if v := os.Getenv(env.CookieSecure); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.CookieSecure = b
			}
		}
	}
	if env.SessionTTL != "" {
		if v := os.Getenv(env.SessionTTL); v != "" {
			c.SessionTTL = v
		}
	}
	if env.LoginPath != "" {
		if v := os.Getenv(env.LoginPath); v != "" {
			c.LoginPath = v
		}
	}
	if env.Protected != "" {
		if v := os.Getenv(env.Protected); v != "" {
			paths := strings.Split(v, ",")
			c.Protected = make([]string, 0, len(paths))
			for _, p := range paths {
				if trimmed := strings.TrimSpace(p); trimmed != "" {
					c.Protected = append(c.Protected, trimmed)
				}
			}
		}
	}
	if env.Issuer != "" {
		if v := os.Getenv(env.Issuer); v != "" {
			c.Issuer = v
		}
	}
	if env.ClientID != "" {
		if v := os.Getenv(env.ClientID); v != "" {
			c.ClientID = v
		}
	}
	if env.DevLogin != "" {
		if v := os.Getenv(env.DevLogin); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.DevLogin = b
			}
		}
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.SessionTTL); err != nil {
		return fmt.Errorf("invalid session_ttl: %w", err)
	}
	if !strings.HasPrefix(c.LoginPath, "/") {
		return fmt.Errorf("login_path must start with /: %s", c.LoginPath)
	}
	if c.Issuer != "" && c.ClientID == "" {
		return fmt.Errorf("client_id required when issuer is set")
	}
	if c.Issuer == "" && !c.DevLogin {
		return fmt.Errorf("issuer required unless dev_login is enabled")
	}
	return nil
}
