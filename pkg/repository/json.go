package repository

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON binds and scans a value stored in a JSON or JSONB column.
// Valid is false when the column is NULL.
type JSON[T any] struct {
	V     T
	Valid bool
}

// NewJSON wraps v for binding as a non-NULL JSON parameter.
func NewJSON[T any](v T) JSON[T] {
	return JSON[T]{V: v, Valid: true}
}

// Scan implements sql.Scanner.
func (j *JSON[T]) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		var zero T
		j.V, j.Valid = zero, false
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan json: unsupported source type %T", src)
	}

	if err := json.Unmarshal(data, &j.V); err != nil {
		return fmt.Errorf("scan json: %w", err)
	}
	j.Valid = true
	return nil
}

// Value implements driver.Valuer.
func (j JSON[T]) Value() (driver.Value, error) {
	if !j.Valid {
		return nil, nil
	}
	data, err := json.Marshal(j.V)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return string(data), nil
}
