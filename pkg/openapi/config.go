package openapi

import "os"

// Config holds document metadata.
type Config struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
	ServerURL   string `toml:"server_url"`
}

// ConfigEnv maps config fields to environment variable names for override injection.
type ConfigEnv struct {
	Title       string
	Description string
	ServerURL   string
}

// Finalize applies defaults and environment variable overrides.
func (c *Config) Finalize(env *ConfigEnv) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Title != "" {
		c.Title = overlay.Title
	}
	if overlay.Description != "" {
		c.Description = overlay.Description
	}
	if overlay.ServerURL != "" {
		c.ServerURL = overlay.ServerURL
	}
}

// Build creates a Spec from the config metadata. The server URL falls back
// to basePath when no absolute URL is configured.
func (c *Config) Build(version, basePath string) *Spec {
	spec := NewSpec(c.Title, version)
	spec.SetDescription(c.Description)

	if c.ServerURL != "" {
		spec.AddServer(c.ServerURL)
	} else if basePath != "" {
		spec.AddServer(basePath)
	}
	return spec
}

func (c *Config) loadDefaults() {
	if c.Title == "" {
		c.Title = "Matchflow API"
	}
	if c.Description == "" {
		c.Description = "Trade document workflow orchestration: adapt, extract, match, and exception handling."
	}
}

func (c *Config) loadEnv(env *ConfigEnv) {
	for _, f := range []struct {
		dst *string
		key string
	}{
		{&c.Title, env.Title},
		{&c.Description, env.Description},
		{&c.ServerURL, env.ServerURL},
	} {
		if f.key == "" {
			continue
		}
		if v := os.Getenv(f.key); v != "" {
			*f.dst = v
		}
	}
}
