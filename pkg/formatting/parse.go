package formatting

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParseFailed is returned when agent output cannot be decoded as JSON.
var ErrParseFailed = errors.New("failed to parse agent output")

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// Decode unmarshals agent output into T. Output is accepted as a JSON
// object, or as a JSON string whose content is JSON, optionally wrapped in a
// markdown code fence. Empty or null output yields the zero value.
func Decode[T any](raw json.RawMessage) (T, error) {
	var out T

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, nil
	}

	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return out, fmt.Errorf("%w: %v", ErrParseFailed, err)
		}
		return Parse[T](text)
	}

	if err := json.Unmarshal(trimmed, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	return out, nil
}

// Parse unmarshals text into T, falling back to the first fenced block.
func Parse[T any](text string) (T, error) {
	var out T
	text = strings.TrimSpace(text)
	if text == "" {
		return out, nil
	}

	err := json.Unmarshal([]byte(text), &out)
	if err == nil {
		return out, nil
	}

	if m := fencePattern.FindStringSubmatch(text); len(m) == 2 {
		var fenced T
		if ferr := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &fenced); ferr == nil {
			return fenced, nil
		}
	}

	return out, fmt.Errorf("%w: %s", ErrParseFailed, truncate(text, 128))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
