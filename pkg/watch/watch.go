// Package watch follows a workflow session from outside the service. It
// prefers the push stream and falls back to polling the status endpoint when
// the stream cannot be re-established.
package watch

import (
	"context"
	"encoding/json"
	"time"
)

// State is the observer connection state.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateFallback     State = "fallback"
)

// Message is an event envelope received from the push stream.
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// TypeResultAvailable ends a push stream.
const TypeResultAvailable = "RESULT_AVAILABLE"

// Stream yields messages from one push connection.
type Stream interface {
	Next(ctx context.Context) (Message, error)
	Close() error
}

// Dialer opens push streams.
type Dialer interface {
	Dial(ctx context.Context, sessionID string) (Stream, error)
}

// Poller pulls the current session snapshot.
type Poller interface {
	Poll(ctx context.Context, sessionID string) (json.RawMessage, error)
}

// Handlers receive observer output. Nil handlers are skipped. Handlers may
// be called from the polling goroutine and must be safe for concurrent use.
type Handlers struct {
	OnMessage  func(Message)
	OnSnapshot func(json.RawMessage)
	OnState    func(State)
}

// Config controls reconnect and fallback timing.
type Config struct {
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	FailureThreshold int
	PollInterval     time.Duration
}

// DefaultConfig reconnects after 1s, 2s, 4s, 8s up to 30s, and polls every
// 30s after 3 consecutive failures.
func DefaultConfig() Config {
	return Config{
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
		FailureThreshold: 3,
		PollInterval:     30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	return c
}

// Backoff returns the delay after the nth consecutive failure, n starting at 1.
func (c Config) Backoff(n int) time.Duration {
	c = c.withDefaults()
	if n < 1 {
		n = 1
	}
	d := c.BaseDelay << (n - 1)
	if d <= 0 || d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

func terminalSnapshot(data json.RawMessage) bool {
	var s struct {
		OverallStatus string `json:"overallStatus"`
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return false
	}
	return s.OverallStatus == "completed" || s.OverallStatus == "failed"
}
