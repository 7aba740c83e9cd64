package config

import (
	"fmt"
	"os"
)

// Status store providers.
const (
	StoreProviderPostgres  = "postgres"
	StoreProviderFirestore = "firestore"
	StoreProviderMemory    = "memory"
)

const (
	EnvStoreProvider   = "MATCHFLOW_STORE_PROVIDER"
	EnvStoreProjectID  = "MATCHFLOW_STORE_PROJECT_ID"
	EnvStoreCollection = "MATCHFLOW_STORE_COLLECTION"
)

// StoreConfig selects the session status store.
type StoreConfig struct {
	Provider   string `toml:"provider"`
	ProjectID  string `toml:"project_id"`
	Collection string `toml:"collection"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *StoreConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *StoreConfig) Merge(overlay *StoreConfig) {
	if overlay.Provider != "" {
		c.Provider = overlay.Provider
	}
	if overlay.ProjectID != "" {
		c.ProjectID = overlay.ProjectID
	}
	if overlay.Collection != "" {
		c.Collection = overlay.Collection
	}
}

func (c *StoreConfig) loadDefaults() {
	if c.Provider == "" {
		c.Provider = StoreProviderPostgres
	}
	if c.Collection == "" {
		c.Collection = "workflow_sessions"
	}
}

func (c *StoreConfig) loadEnv() {
	if v := os.Getenv(EnvStoreProvider); v != "" {
		c.Provider = v
	}
	if v := os.Getenv(EnvStoreProjectID); v != "" {
		c.ProjectID = v
	}
	if v := os.Getenv(EnvStoreCollection); v != "" {
		c.Collection = v
	}
}

func (c *StoreConfig) validate() error {
	switch c.Provider {
	case StoreProviderPostgres, StoreProviderMemory:
	case StoreProviderFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("project_id required for firestore")
		}
	default:
		return fmt.Errorf("unknown provider: %s", c.Provider)
	}
	return nil
}
