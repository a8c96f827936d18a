package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"lessonforge/internal/types"
)

// Timestamps are stored as Unix milliseconds so every driver round-trips them
// identically; calendar dates are stored as YYYY-MM-DD text.

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullMillis(ms sql.NullInt64) time.Time {
	if !ms.Valid {
		return time.Time{}
	}
	return fromMillis(ms.Int64)
}

func toDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(types.DateLayout)
}

func fromDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(types.DateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSON(s string, v interface{}) error {
	if s == "" || s == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
