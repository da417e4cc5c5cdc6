package util

import (
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

// ParseTime tries RFC3339, RFC3339Nano, a plain UTC date and unix seconds.
// Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts >= 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseUnixDefault is ParseTime returning unix seconds.
func ParseUnixDefault(s string, def int64) int64 {
	if t, ok := ParseTime(s); ok {
		return t.Unix()
	}
	return def
}
