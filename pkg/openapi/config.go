package openapi

import (
	"cmp"
	"fmt"
	"net/url"
	"os"
	"strings"
)

const (
	defaultTitle       = "Loam API"
	defaultDescription = "Soil-sample capture and prediction submission service."
)

// Config describes the document served at the API's spec route.
// Servers lists URLs advertised ahead of the API base path, such as a
// public gateway in front of the capture service.
type Config struct {
	Title       string   `toml:"title"`
	Description string   `toml:"description"`
	Servers     []string `toml:"servers"`
}

// ConfigEnv names the environment variables that override each field.
// Servers is read as a comma-separated list.
type ConfigEnv struct {
	Title       string
	Description string
	Servers     string
}

// Finalize fills unset fields, applies env overrides, and checks every
// server is an absolute URL or a rooted path.
func (c *Config) Finalize(env *ConfigEnv) error {
	c.Title = cmp.Or(c.Title, defaultTitle)
	c.Description = cmp.Or(c.Description, defaultDescription)

	if env != nil {
		c.Title = cmp.Or(lookup(env.Title), c.Title)
		c.Description = cmp.Or(lookup(env.Description), c.Description)
		if v := lookup(env.Servers); v != "" {
			c.Servers = splitList(v)
		}
	}

	for _, s := range c.Servers {
		if err := checkServer(s); err != nil {
			return err
		}
	}
	return nil
}

// Merge overwrites fields set in overlay. A nil Servers keeps the base list.
func (c *Config) Merge(overlay *Config) {
	c.Title = cmp.Or(overlay.Title, c.Title)
	c.Description = cmp.Or(overlay.Description, c.Description)
	if overlay.Servers != nil {
		c.Servers = overlay.Servers
	}
}

// Options returns the spec options the config contributes.
func (c *Config) Options() []Option {
	opts := []Option{WithDescription(c.Description)}
	for _, s := range c.Servers {
		opts = append(opts, WithServer(s))
	}
	return opts
}

func checkServer(s string) error {
	if strings.HasPrefix(s, "/") {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server %q: want an absolute URL or a path starting with /", s)
	}
	return nil
}

func lookup(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

func splitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

