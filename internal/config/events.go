package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
)

const (
	EnvEventsBuffer     = "MATCHFLOW_EVENTS_BUFFER"
	EnvEventsSinkTarget = "MATCHFLOW_EVENTS_SINK_TARGET"
	EnvEventsSinkSource = "MATCHFLOW_EVENTS_SINK_SOURCE"
	EnvEventsSinkQueue  = "MATCHFLOW_EVENTS_SINK_QUEUE"
)

// EventsConfig sizes subscriber buffers and configures the optional
// CloudEvents forwarding sink. An empty SinkTarget disables forwarding.
type EventsConfig struct {
	Buffer     int    `toml:"buffer"`
	SinkTarget string `toml:"sink_target"`
	SinkSource string `toml:"sink_source"`
	SinkQueue  int    `toml:"sink_queue"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *EventsConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *EventsConfig) Merge(overlay *EventsConfig) {
	if overlay.Buffer != 0 {
		c.Buffer = overlay.Buffer
	}
	if overlay.SinkTarget != "" {
		c.SinkTarget = overlay.SinkTarget
	}
	if overlay.SinkSource != "" {
		c.SinkSource = overlay.SinkSource
	}
	if overlay.SinkQueue != 0 {
		c.SinkQueue = overlay.SinkQueue
	}
}

func (c *EventsConfig) loadDefaults() {
	if c.Buffer == 0 {
		c.Buffer = 64
	}
	if c.SinkSource == "" {
		c.SinkSource = "matchflow"
	}
	if c.SinkQueue == 0 {
		c.SinkQueue = 256
	}
}

func (c *EventsConfig) loadEnv() {
	if v := os.Getenv(EnvEventsBuffer); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Buffer = n
		}
	}
	if v := os.Getenv(EnvEventsSinkTarget); v != "" {
		c.SinkTarget = v
	}
	if v := os.Getenv(EnvEventsSinkSource); v != "" {
		c.SinkSource = v
	}
	if v := os.Getenv(EnvEventsSinkQueue); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SinkQueue = n
		}
	}
}

func (c *EventsConfig) validate() error {
	if c.Buffer < 1 {
		return fmt.Errorf("buffer must be at least 1")
	}
	if c.SinkQueue < 1 {
		return fmt.Errorf("sink_queue must be at least 1")
	}
	if c.SinkTarget != "" {
		u, err := url.Parse(c.SinkTarget)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid sink_target: %s", c.SinkTarget)
		}
	}
	return nil
}
