package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/JaimeStill/matchflow/pkg/agent"
)

const (
	EnvAgentTimeout      = "MATCHFLOW_AGENT_TIMEOUT"
	EnvAgentMaxAttempts  = "MATCHFLOW_AGENT_MAX_ATTEMPTS"
	EnvAgentBackoffBase  = "MATCHFLOW_AGENT_BACKOFF_BASE"
	EnvAgentBackoffCap   = "MATCHFLOW_AGENT_BACKOFF_CAP"
	EnvAgentJitter       = "MATCHFLOW_AGENT_JITTER"
	EnvAgentSigning      = "MATCHFLOW_AGENT_SIGNING"
	EnvAgentKeyID        = "MATCHFLOW_AGENT_KEY_ID"
	EnvAgentSecret       = "MATCHFLOW_AGENT_SECRET"
	EnvAgentTenantID     = "MATCHFLOW_AGENT_TENANT_ID"
	EnvAgentClientID     = "MATCHFLOW_AGENT_CLIENT_ID"
	EnvAgentClientSecret = "MATCHFLOW_AGENT_CLIENT_SECRET"
	EnvAgentScopes       = "MATCHFLOW_AGENT_SCOPES"
)

// StageNames lists the stages that accept an agent endpoint, in pipeline order.
var StageNames = []string{"adapt", "extract", "match", "exceptionHandle"}

// endpointEnv maps a stage to its endpoint override, e.g.
// MATCHFLOW_AGENT_EXCEPTION_HANDLE_URL.
func endpointEnv(stage string) string {
	var b strings.Builder
	for i, r := range stage {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return "MATCHFLOW_AGENT_" + strings.ToUpper(b.String()) + "_URL"
}

// AgentsConfig holds stage agent endpoints, invocation policy, and signing.
type AgentsConfig struct {
	Endpoints   map[string]string `toml:"endpoints"`
	Timeout     string            `toml:"timeout"`
	MaxAttempts int               `toml:"max_attempts"`
	BackoffBase string            `toml:"backoff_base"`
	BackoffCap  string            `toml:"backoff_cap"`
	Jitter      float64           `toml:"jitter"`
	Signing     string            `toml:"signing"`
	KeyID       string            `toml:"key_id"`
	Secret      string            `toml:"secret"`
	Azure       AzureAuthConfig   `toml:"azure"`
}

// AzureAuthConfig selects the Azure identity used for bearer signing. With
// no client secret the default Azure credential chain is used.
type AzureAuthConfig struct {
	TenantID     string   `toml:"tenant_id"`
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	Scopes       []string `toml:"scopes"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *AgentsConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// BackoffBaseDuration returns BackoffBase as a time.Duration.
func (c *AgentsConfig) BackoffBaseDuration() time.Duration {
	d, _ := time.ParseDuration(c.BackoffBase)
	return d
}

// BackoffCapDuration returns BackoffCap as a time.Duration.
func (c *AgentsConfig) BackoffCapDuration() time.Duration {
	d, _ := time.ParseDuration(c.BackoffCap)
	return d
}

// ClientConfig returns the invocation policy for agent.New.
func (c *AgentsConfig) ClientConfig() agent.Config {
	return agent.Config{
		Timeout:     c.TimeoutDuration(),
		MaxAttempts: c.MaxAttempts,
		BackoffBase: c.BackoffBaseDuration(),
		BackoffCap:  c.BackoffCapDuration(),
		Jitter:      c.Jitter,
	}
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *AgentsConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. Endpoints merge per stage.
func (c *AgentsConfig) Merge(overlay *AgentsConfig) {
	for stage, url := range overlay.Endpoints {
		if c.Endpoints == nil {
			c.Endpoints = make(map[string]string)
		}
		c.Endpoints[stage] = url
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.MaxAttempts != 0 {
		c.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.BackoffBase != "" {
		c.BackoffBase = overlay.BackoffBase
	}
	if overlay.BackoffCap != "" {
		c.BackoffCap = overlay.BackoffCap
	}
	if overlay.Jitter != 0 {
		c.Jitter = overlay.Jitter
	}
	if overlay.Signing != "" {
		c.Signing = overlay.Signing
	}
	if overlay.KeyID != "" {
		c.KeyID = overlay.KeyID
	}
	if overlay.Secret != "" {
		c.Secret = overlay.Secret
	}
	if overlay.Azure.TenantID != "" {
		c.Azure.TenantID = overlay.Azure.TenantID
	}
	if overlay.Azure.ClientID != "" {
		c.Azure.ClientID = overlay.Azure.ClientID
	}
	if overlay.Azure.ClientSecret != "" {
		c.Azure.ClientSecret = overlay.Azure.ClientSecret
	}
	if overlay.Azure.Scopes != nil {
		c.Azure.Scopes = overlay.Azure.Scopes
	}
}

func (c *AgentsConfig) loadDefaults() {
	if c.Endpoints == nil {
		c.Endpoints = make(map[string]string)
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase == "" {
		c.BackoffBase = "1s"
	}
	if c.BackoffCap == "" {
		c.BackoffCap = "8s"
	}
	if c.Signing == "" {
		c.Signing = agent.SigningHMAC
	}
}

func (c *AgentsConfig) loadEnv() {
	for _, stage := range StageNames {
		if v := os.Getenv(endpointEnv(stage)); v != "" {
			c.Endpoints[stage] = v
		}
	}
	if v := os.Getenv(EnvAgentTimeout); v != "" {
		c.Timeout = v
	}
	if v := os.Getenv(EnvAgentMaxAttempts); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxAttempts = n
		}
	}
	if v := os.Getenv(EnvAgentBackoffBase); v != "" {
		c.BackoffBase = v
	}
	if v := os.Getenv(EnvAgentBackoffCap); v != "" {
		c.BackoffCap = v
	}
	if v := os.Getenv(EnvAgentJitter); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Jitter = f
		}
	}
	if v := os.Getenv(EnvAgentSigning); v != "" {
		c.Signing = strings.ToLower(v)
	}
	if v := os.Getenv(EnvAgentKeyID); v != "" {
		c.KeyID = v
	}
	if v := os.Getenv(EnvAgentSecret); v != "" {
		c.Secret = v
	}
	if v := os.Getenv(EnvAgentTenantID); v != "" {
		c.Azure.TenantID = v
	}
	if v := os.Getenv(EnvAgentClientID); v != "" {
		c.Azure.ClientID = v
	}
	if v := os.Getenv(EnvAgentClientSecret); v != "" {
		c.Azure.ClientSecret = v
	}
	if v := os.Getenv(EnvAgentScopes); v != "" {
		c.Azure.Scopes = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				c.Azure.Scopes = append(c.Azure.Scopes, s)
			}
		}
	}
}

func (c *AgentsConfig) validate() error {
	for stage := range c.Endpoints {
		if !slices.Contains(StageNames, stage) {
			return fmt.Errorf("unknown stage in endpoints: %s", stage)
		}
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.BackoffBase); err != nil {
		return fmt.Errorf("invalid backoff_base: %w", err)
	}
	if _, err := time.ParseDuration(c.BackoffCap); err != nil {
		return fmt.Errorf("invalid backoff_cap: %w", err)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		return fmt.Errorf("jitter must be in [0, 1)")
	}

	switch c.Signing {
	case agent.SigningHMAC:
		if c.KeyID == "" || c.Secret == "" {
			return fmt.Errorf("hmac signing requires key_id and secret")
		}
	case agent.SigningBearer:
		if len(c.Azure.Scopes) == 0 {
			return fmt.Errorf("bearer signing requires azure.scopes")
		}
	case agent.SigningNone:
	default:
		return fmt.Errorf("unknown signing mode: %s", c.Signing)
	}
	return nil
}
