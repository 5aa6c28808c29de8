// Package builtin contains simple, reusable value coercions used by the
// cleaning rules, the CSV parser and the sinks.
//
// All helpers are lenient: they report failure with a boolean instead of an
// error, because a value that cannot be coerced becomes the missing marker.
package builtin

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the layout used to render cleaned timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// timestampLayouts are tried in order by ParseTimestamp.
// Layouts without a zone are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006",
}

// HasEdgeSpace reports whether s starts or ends with a space or tab.
// It is a cheap pre-check so the hot path can skip strings.TrimSpace.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return s[0] == ' ' || s[len(s)-1] == ' ' || s[0] == '\t' || s[len(s)-1] == '\t'
}

// AsString returns v as a string when it is a string or []byte.
func AsString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return "", false
	}
}

// ToFloat coerces v to a finite float64.
//
// Strings are trimmed and parsed with strconv.ParseFloat. NaN, ±Inf, nil and
// anything non-numeric report false.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case string, []byte:
		s, _ := AsString(t)
		if HasEdgeSpace(s) {
			s = strings.TrimSpace(s)
		}
		if s == "" {
			return 0, false
		}
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseTimestamp coerces v to a time.Time.
// time.Time values pass through; strings are matched against a fixed list of
// common layouts.
func ParseTimestamp(v any) (time.Time, bool) {
	if tt, ok := v.(time.Time); ok {
		return tt, true
	}
	s, ok := AsString(v)
	if !ok {
		return time.Time{}, false
	}
	if HasEdgeSpace(s) {
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if tt, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return tt, true
		}
	}
	return time.Time{}, false
}

// FormatValue renders v as a CSV field. nil renders as the empty string.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.UTC().Format(TimestampLayout)
	default:
		return ""
	}
}
