package media

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Raw is a decoded provider payload. Accessors are tolerant: a missing key,
// a null or a value of the wrong shape reports ok=false instead of failing.
type Raw map[string]any

// String returns a non-empty trimmed string value.
func (r Raw) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case fmt.Stringer:
		s = x.String()
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Float returns a numeric value.
func (r Raw) Float(key string) (float64, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, false
	}
	return toFloat(v)
}

// Int returns a numeric value truncated to int.
func (r Raw) Int(key string) (int, bool) {
	f, ok := r.Float(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Strings returns a list of names. It accepts both ["a","b"] and
// [{"name":"a"},{"name":"b"}] shapes.
func (r Raw) Strings(key string) ([]string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return nil, false
	}
	var out []string
	switch xs := v.(type) {
	case []string:
		for _, s := range xs {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, x := range xs {
			switch e := x.(type) {
			case string:
				if s := strings.TrimSpace(e); s != "" {
					out = append(out, s)
				}
			case map[string]any:
				if s, ok := Raw(e).String("name"); ok {
					out = append(out, s)
				}
			}
		}
	default:
		return nil, false
	}
	return out, len(out) > 0
}

// Ints returns a list of numbers, skipping anything non-numeric.
func (r Raw) Ints(key string) ([]int, bool) {
	xs, ok := r[key].([]any)
	if !ok {
		return nil, false
	}
	out := make([]int, 0, len(xs))
	for _, x := range xs {
		if f, ok := toFloat(x); ok {
			out = append(out, int(f))
		}
	}
	return out, len(out) > 0
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case interface{ Float64() (float64, error) }:
		y, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = y
	case string:
		y, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = y
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
