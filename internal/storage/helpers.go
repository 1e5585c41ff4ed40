package storage

import (
	"errors"
	"time"
)

// FormatTime renders a timestamp in the canonical column format.
func FormatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

// ParseTime parses a timestamp column value.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// NullableString converts an empty string to NULL for inserts.
func NullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// NullableTime converts a nil timestamp to NULL for inserts.
func NullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return FormatTime(*value)
}

// BoolToInt converts a bool to its SQLite integer representation.
func BoolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// Placeholders builds a comma-separated "?" list for IN clauses.
func Placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
