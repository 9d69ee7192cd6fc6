package media

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// presentString returns the trimmed string at v. Empty strings and the
// literals "null" and "undefined" count as absent. Nested objects carrying a
// url or path field are accepted.
func presentString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if absentLiteral(s) {
			return "", false
		}
		return s, true
	case map[string]interface{}:
		for _, key := range []string{"url", "path"} {
			if s, ok := presentString(val[key]); ok {
				return s, true
			}
		}
	}
	return "", false
}

func absentLiteral(s string) bool {
	return s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "undefined")
}

// firstString returns the first present string among keys.
func firstString(raw map[string]interface{}, keys ...string) (string, bool) {
	for _, key := range keys {
		if s, ok := presentString(raw[key]); ok {
			return s, true
		}
	}
	return "", false
}

// idString formats identifiers; numbers never use exponent notation.
func idString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case json.Number:
		return val.String(), true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return "", false
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	}
	return presentString(v)
}

func firstID(raw map[string]interface{}, keys ...string) (string, bool) {
	for _, key := range keys {
		if s, ok := idString(raw[key]); ok {
			return s, true
		}
	}
	return "", false
}

func int64Value(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, true
		}
		if f, err := val.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, false
		}
		return int64(val), true
	case int:
		return int64(val), true
	case int64:
		return val, true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func boolValue(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return b, err == nil
	}
	return false, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// timeValue accepts RFC3339 strings, zone-less local date-times (taken as
// UTC) and epoch milliseconds.
func timeValue(v interface{}) (time.Time, bool) {
	if str, ok := v.(string); ok {
		s := strings.TrimSpace(str)
		if absentLiteral(s) {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		v = s
	}
	if ms, ok := int64Value(v); ok {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}
