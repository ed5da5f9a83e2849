package item

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Raw is one record as handed over by a fetch collaborator. Fields are
// heterogeneous and any of them may be missing.
type Raw map[string]any

// String returns the first non-empty string value among keys.
func (r Raw) String(keys ...string) string {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case fmt.Stringer:
			s = t.String()
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case int:
			s = strconv.Itoa(t)
		case int64:
			s = strconv.FormatInt(t, 10)
		case bool:
			s = strconv.FormatBool(t)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// Time returns a structured timestamp stored under one of keys. Strings are
// not parsed here; only time.Time values, unix seconds, and
// [year, month, day, hour, min, sec, ...] arrays are accepted.
func (r Raw) Time(keys ...string) (time.Time, bool) {
	for _, k := range keys {
		switch t := r[k].(type) {
		case time.Time:
			if !t.IsZero() {
				return t.UTC(), true
			}
		case float64:
			if t > 0 {
				return time.Unix(int64(t), 0).UTC(), true
			}
		case int64:
			if t > 0 {
				return time.Unix(t, 0).UTC(), true
			}
		case int:
			if t > 0 {
				return time.Unix(int64(t), 0).UTC(), true
			}
		case []any:
			if ts, ok := structTime(t); ok {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

func structTime(parts []any) (time.Time, bool) {
	if len(parts) < 6 {
		return time.Time{}, false
	}
	var n [6]int
	for i := range n {
		f, ok := parts[i].(float64)
		if !ok {
			return time.Time{}, false
		}
		n[i] = int(f)
	}
	if n[0] < 1970 || n[1] < 1 || n[1] > 12 || n[2] < 1 || n[2] > 31 {
		return time.Time{}, false
	}
	return time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], n[5], 0, time.UTC), true
}
