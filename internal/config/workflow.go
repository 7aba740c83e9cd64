package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvWorkflowRetention        = "MATCHFLOW_WORKFLOW_RETENTION"
	EnvWorkflowManualMatch      = "MATCHFLOW_WORKFLOW_MANUAL_MATCH"
	EnvWorkflowSweepInterval    = "MATCHFLOW_WORKFLOW_SWEEP_INTERVAL"
	EnvWorkflowIdempotency      = "MATCHFLOW_WORKFLOW_IDEMPOTENCY"
	EnvWorkflowIdempotencyTTL   = "MATCHFLOW_WORKFLOW_IDEMPOTENCY_TTL"
	EnvWorkflowBatchConcurrency = "MATCHFLOW_WORKFLOW_BATCH_CONCURRENCY"
	EnvWorkflowMaxBatchSize     = "MATCHFLOW_WORKFLOW_MAX_BATCH_SIZE"
)

// WorkflowConfig controls session retention and orchestration behavior.
// With ManualMatch set, sessions stop after extract until matching is invoked.
type WorkflowConfig struct {
	Retention        string `toml:"retention"`
	ManualMatch      bool   `toml:"manual_match"`
	SweepInterval    string `toml:"sweep_interval"`
	Idempotency      bool   `toml:"idempotency"`
	IdempotencyTTL   string `toml:"idempotency_ttl"`
	BatchConcurrency int    `toml:"batch_concurrency"`
	MaxBatchSize     int    `toml:"max_batch_size"`
}

// RetentionDuration returns Retention as a time.Duration.
func (c *WorkflowConfig) RetentionDuration() time.Duration {
	d, _ := time.ParseDuration(c.Retention)
	return d
}

// SweepIntervalDuration returns SweepInterval as a time.Duration. Zero disables sweeping.
func (c *WorkflowConfig) SweepIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.SweepInterval)
	return d
}

// IdempotencyTTLDuration returns IdempotencyTTL as a time.Duration.
func (c *WorkflowConfig) IdempotencyTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.IdempotencyTTL)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *WorkflowConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. Boolean fields always apply.
func (c *WorkflowConfig) Merge(overlay *WorkflowConfig) {
	c.ManualMatch = overlay.ManualMatch
	c.Idempotency = overlay.Idempotency

	if overlay.Retention != "" {
		c.Retention = overlay.Retention
	}
	if overlay.SweepInterval != "" {
		c.SweepInterval = overlay.SweepInterval
	}
	if overlay.IdempotencyTTL != "" {
		c.IdempotencyTTL = overlay.IdempotencyTTL
	}
	if overlay.BatchConcurrency != 0 {
		c.BatchConcurrency = overlay.BatchConcurrency
	}
	if overlay.MaxBatchSize != 0 {
		c.MaxBatchSize = overlay.MaxBatchSize
	}
}

func (c *WorkflowConfig) loadDefaults() {
	if c.Retention == "" {
		c.Retention = "2160h"
	}
	if c.SweepInterval == "" {
		c.SweepInterval = "1h"
	}
	if c.IdempotencyTTL == "" {
		c.IdempotencyTTL = "24h"
	}
	if c.BatchConcurrency == 0 {
		c.BatchConcurrency = 8
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = 100
	}
}

func (c *WorkflowConfig) loadEnv() {
	if v := os.Getenv(EnvWorkflowRetention); v != "" {
		c.Retention = v
	}
	if v := os.Getenv(EnvWorkflowManualMatch); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ManualMatch = b
		}
	}
	if v := os.Getenv(EnvWorkflowSweepInterval); v != "" {
		c.SweepInterval = v
	}
	if v := os.Getenv(EnvWorkflowIdempotency); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Idempotency = b
		}
	}
	if v := os.Getenv(EnvWorkflowIdempotencyTTL); v != "" {
		c.IdempotencyTTL = v
	}
	if v := os.Getenv(EnvWorkflowBatchConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchConcurrency = n
		}
	}
	if v := os.Getenv(EnvWorkflowMaxBatchSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxBatchSize = n
		}
	}
}

func (c *WorkflowConfig) validate() error {
	d, err := time.ParseDuration(c.Retention)
	if err != nil {
		return fmt.Errorf("invalid retention: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("retention must be positive")
	}
	if _, err := time.ParseDuration(c.SweepInterval); err != nil {
		return fmt.Errorf("invalid sweep_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.IdempotencyTTL); err != nil {
		return fmt.Errorf("invalid idempotency_ttl: %w", err)
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("batch_concurrency must be at least 1")
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("max_batch_size must be at least 1")
	}
	return nil
}
