// Package formatting decodes agent output and formats byte sizes for logs
// and configuration.
package formatting

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([A-Za-z]*)$`)

// FormatBytes renders n using base-1024 units with one decimal place above bytes.
func FormatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}

	size := float64(n)
	unit := 0
	for size >= 1024 && unit < len(byteUnits)-1 {
		size /= 1024
		unit++
	}
	return strconv.FormatFloat(size, 'f', 1, 64) + " " + byteUnits[unit]
}

// ParseBytes parses sizes such as "8MB", "512 kb", or "1024" into bytes.
func ParseBytes(s string) (int64, error) {
	m := sizePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size: %w", err)
	}

	unit := strings.ToUpper(m[2])
	if unit == "" {
		return int64(value), nil
	}

	mult := int64(1)
	for _, u := range byteUnits {
		if u == unit {
			return int64(value * float64(mult)), nil
		}
		mult *= 1024
	}
	return 0, fmt.Errorf("unknown byte size unit: %q", m[2])
}
