package agent

import (
	"encoding/json"
	"fmt"
	"time"
)

// Result is a well-formed agent response. Success mirrors the agent's own
// verdict; a false Success is not an invocation error.
type Result struct {
	Success    bool
	Data       json.RawMessage
	Error      string
	StatusCode int
	Attempts   int
	Elapsed    time.Duration
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func decodeResult(body []byte) (*Result, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if env.Success == nil {
		return nil, fmt.Errorf("decode response: missing success field")
	}
	return &Result{
		Success: *env.Success,
		Data:    env.Data,
		Error:   env.Error,
	}, nil
}
