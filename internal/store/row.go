package store

import (
	"strconv"
	"strings"
	"time"
)

// Row is one record as a column map. Drivers hand back different Go types
// for the same column (SQLite returns int64 for booleans, text for dates),
// so readers go through the typed accessors below.
type Row map[string]any

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		if n, ok := toInt64(v); ok {
			return strconv.FormatInt(n, 10)
		}
		return ""
	}
}

func (r Row) Int64(col string) int64 {
	n, _ := toInt64(r[col])
	return n
}

func (r Row) Int(col string) int {
	return int(r.Int64(col))
}

func (r Row) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case []byte:
		b, _ := strconv.ParseBool(string(v))
		return b
	default:
		n, _ := toInt64(v)
		return n != 0
	}
}

// IsNull reports whether the column is absent or holds nil.
func (r Row) IsNull(col string) bool {
	v, ok := r[col]
	return !ok || v == nil
}

func (r Row) Time(col string) time.Time {
	t, _ := toTime(r[col])
	return t
}

// TimePtr returns nil for NULL columns.
func (r Row) TimePtr(col string) *time.Time {
	t, ok := toTime(r[col])
	if !ok {
		return nil
	}
	return &t
}

// Int64Ptr returns nil for NULL columns.
func (r Row) Int64Ptr(col string) *int64 {
	if r.IsNull(col) {
		return nil
	}
	n, ok := toInt64(r[col])
	if !ok {
		return nil
	}
	return &n
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	}
	return time.Time{}, false
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	case []byte:
		i, err := strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int, int32, int64, uint32:
		i, _ := toInt64(n)
		return float64(i), true
	}
	return 0, false
}

// Compare orders two column values: numbers numerically, times
// chronologically, strings lexically, false before true. ok is false when
// the values cannot be compared.
func Compare(a, b any) (c int, ok bool) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, true
		}
		return 0, false
	}
	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			return cmpOrdered(fa, fb), true
		}
		if fb, okB := toInt64(b); okB {
			return cmpOrdered(fa, float64(fb)), true
		}
		return 0, false
	}
	if ta, okA := a.(time.Time); okA {
		if tb, okB := toTime(b); okB {
			return ta.Compare(tb), true
		}
		return 0, false
	}
	if ba, okA := a.(bool); okA {
		bb, okB := b.(bool)
		if !okB {
			return 0, false
		}
		switch {
		case ba == bb:
			return 0, true
		case !ba:
			return -1, true
		default:
			return 1, true
		}
	}
	sa, okA := asString(a)
	if !okA {
		return 0, false
	}
	if tb, okB := b.(time.Time); okB {
		if ta, okT := parseTime(sa); okT {
			return ta.Compare(tb), true
		}
		return 0, false
	}
	if _, okB := toFloat(b); okB {
		if ia, okI := toInt64(sa); okI {
			fb, _ := toFloat(b)
			return cmpOrdered(float64(ia), fb), true
		}
		return 0, false
	}
	sb, okB := asString(b)
	if !okB {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

func cmpOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
