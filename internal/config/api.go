package config

import (
	"fmt"
	"os"

	"github.com/JaimeStill/matchflow/pkg/formatting"
	"github.com/JaimeStill/matchflow/pkg/middleware"
	"github.com/JaimeStill/matchflow/pkg/openapi"
	"github.com/JaimeStill/matchflow/pkg/pagination"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "MATCHFLOW_CORS_ENABLED",
	Origins:          "MATCHFLOW_CORS_ORIGINS",
	AllowedMethods:   "MATCHFLOW_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "MATCHFLOW_CORS_ALLOWED_HEADERS",
	AllowCredentials: "MATCHFLOW_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "MATCHFLOW_CORS_MAX_AGE",
}

var openAPIEnv = &openapi.ConfigEnv{
	Title:       "MATCHFLOW_OPENAPI_TITLE",
	Description: "MATCHFLOW_OPENAPI_DESCRIPTION",
	ServerURL:   "MATCHFLOW_OPENAPI_SERVER_URL",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "MATCHFLOW_API_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "MATCHFLOW_API_MAX_PAGE_SIZE",
}

const (
	EnvAPIBasePath       = "MATCHFLOW_API_BASE_PATH"
	EnvAPIMaxRequestSize = "MATCHFLOW_API_MAX_REQUEST_SIZE"
)

// APIConfig holds API routing, request limits, CORS, listing page bounds,
// and API document settings.
type APIConfig struct {
	BasePath       string                `toml:"base_path"`
	MaxRequestSize string                `toml:"max_request_size"`
	CORS           middleware.CORSConfig `toml:"cors"`
	Pagination     pagination.Config     `toml:"pagination"`
	OpenAPI        openapi.Config        `toml:"openapi"`
}

// MaxRequestSizeBytes returns MaxRequestSize in bytes.
func (c *APIConfig) MaxRequestSizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxRequestSize)
	if err != nil {
		return 1 << 20
	}
	return size
}

// Finalize applies defaults, environment variable overrides, and validation
// for the API config and its nested configs.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if _, err := formatting.ParseBytes(c.MaxRequestSize); err != nil {
		return fmt.Errorf("invalid max_request_size: %w", err)
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
	if overlay.MaxRequestSize != "" {
		c.MaxRequestSize = overlay.MaxRequestSize
	}

	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
	c.OpenAPI.Merge(&overlay.OpenAPI)
}

func (c *APIConfig) loadDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if c.MaxRequestSize == "" {
		c.MaxRequestSize = "1MB"
	}
}

func (c *APIConfig) loadEnv() {
	if v := os.Getenv(EnvAPIBasePath); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv(EnvAPIMaxRequestSize); v != "" {
		c.MaxRequestSize = v
	}
}
