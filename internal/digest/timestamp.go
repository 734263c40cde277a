package digest

import (
	"fmt"
	"strings"
	"time"
)

// FormatTimestamp renders t the way ISO-8601 local date-times are rendered
// by the system that produced the first committed records:
//
//	2024-03-01T09:30              seconds and fraction are zero
//	2024-03-01T09:30:15           fraction is zero
//	2024-03-01T09:30:15.250       millisecond precision
//	2024-03-01T09:30:15.250001    microsecond precision
//	2024-03-01T09:30:15.250000001 nanosecond precision
//
// The wall clock of t is used as is; no zone conversion happens here.
func FormatTimestamp(t time.Time) string {
	var b strings.Builder
	b.WriteString(t.Format("2006-01-02T15:04"))

	sec, nsec := t.Second(), t.Nanosecond()
	if sec == 0 && nsec == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, ":%02d", sec)

	switch {
	case nsec == 0:
	case nsec%1_000_000 == 0:
		fmt.Fprintf(&b, ".%03d", nsec/1_000_000)
	case nsec%1_000 == 0:
		fmt.Fprintf(&b, ".%06d", nsec/1_000)
	default:
		fmt.Fprintf(&b, ".%09d", nsec)
	}
	return b.String()
}

// ParseTimestamp accepts any rendering produced by FormatTimestamp.
// The result carries time.UTC as its location.
func ParseTimestamp(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02T15:04",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05.999999999",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: unrecognized layout", s)
}
