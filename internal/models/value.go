// ABOUTME: Value coercion between JSON-compatible inputs and typed column values
// ABOUTME: Used on insert, on load from storage, and when formatting output
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// CoerceValue converts a JSON-compatible value into the canonical Go value for
// the column type: int64, float64, bool, string, time.Time, []interface{} or any
// JSON value. nil stays nil.
func CoerceValue(ct ColumnType, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	switch ct {
	case TypeInt:
		return toInt(v)
	case TypeFloat:
		return toFloat(v)
	case TypeBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("expected bool, got %q", b)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("expected bool, got %T", v)
	case TypeString, TypeAudio, TypeVideo, TypeImage, TypeDocument:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		if ct.IsMedia() && strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("media location cannot be empty")
		}
		return s, nil
	case TypeTimestamp:
		return toTime(v)
	case TypeArray:
		switch a := v.(type) {
		case []interface{}:
			return a, nil
		case []string:
			out := make([]interface{}, len(a))
			for i, s := range a {
				out[i] = s
			}
			return out, nil
		case []float64:
			out := make([]interface{}, len(a))
			for i, f := range a {
				out[i] = f
			}
			return out, nil
		}
		return nil, fmt.Errorf("expected array, got %T", v)
	case TypeJSON:
		return normalizeJSON(v)
	}
	return nil, fmt.Errorf("unknown column type %q", ct)
}

func toInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("expected int, got fractional number %v", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected int, got %q", n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("expected int, got %T", v)
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("expected float, got %q", n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected float, got %T", v)
}

func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("expected RFC3339 timestamp, got %q", t)
	case float64:
		sec, frac := math.Modf(t)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case int:
		return time.Unix(int64(t), 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("expected timestamp, got %T", v)
}

// normalizeJSON round-trips arbitrary Go values so JSON columns only ever
// hold map[string]interface{}, []interface{}, string, float64, bool or nil.
func normalizeJSON(v interface{}) (interface{}, error) {
	switch v.(type) {
	case map[string]interface{}, []interface{}, string, float64, bool:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-serializable: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FormatValue converts a typed value into its JSON output form
func FormatValue(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339)
	}
	return v
}

// TypeOfValue infers a column type for a computed value
func TypeOfValue(v interface{}) ColumnType {
	switch v.(type) {
	case int, int64:
		return TypeInt
	case float64, float32:
		return TypeFloat
	case bool:
		return TypeBool
	case string:
		return TypeString
	case time.Time:
		return TypeTimestamp
	case []interface{}:
		return TypeArray
	}
	return TypeJSON
}
