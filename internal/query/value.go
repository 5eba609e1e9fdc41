package query

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Value is a filter operand: null, string, number, boolean, or an array of
// strings and numbers. The zero Value is null.
type Value struct {
	kind  Kind
	str   string
	num   float64
	b     bool
	elems []Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Array returns an array value holding a copy of elems.
func Array(elems ...Value) Value {
	return Value{kind: KindArray, elems: append([]Value{}, elems...)}
}

// Strings is a shorthand for an array of string values.
func Strings(ss ...string) Value {
	elems := make([]Value, len(ss))
	for i, s := range ss {
		elems[i] = String(s)
	}
	return Value{kind: KindArray, elems: elems}
}

// Numbers is a shorthand for an array of numeric values.
func Numbers(ns ...float64) Value {
	elems := make([]Value, len(ns))
	for i, n := range ns {
		elems[i] = Number(n)
	}
	return Value{kind: KindArray, elems: elems}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) IsArray() bool { return v.kind == KindArray }

// IsScalar reports whether v is a string, number or boolean.
func (v Value) IsScalar() bool { return v.kind != KindNull && v.kind != KindArray }

// Len returns the number of array elements.
func (v Value) Len() int { return len(v.elems) }

// Elems returns a copy of the array elements.
func (v Value) Elems() []Value { return append([]Value{}, v.elems...) }

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// Text renders a scalar the way it would appear in a query string.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return formatNumber(v.num)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindArray:
		parts := make([]string, len(v.elems))
		for i, e := range v.elems {
			parts[i] = e.Text()
		}
		return strings.Join(parts, ",")
	default:
		return "null"
	}
}

func (v Value) String() string {
	if v.kind == KindString {
		return strconv.Quote(v.str)
	}
	if v.kind == KindArray {
		parts := make([]string, len(v.elems))
		for i, e := range v.elems {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return v.Text()
}

// Any returns the plain Go representation: nil, string, float64, bool or []any.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindArray:
		out := make([]any, len(v.elems))
		for i, e := range v.elems {
			out[i] = e.Any()
		}
		return out
	default:
		return nil
	}
}

// Time interprets the value as a timestamp. Strings are parsed with the
// layouts in timeLayouts; numbers are Unix milliseconds within
// ±maxEpochMillis.
func (v Value) Time() (time.Time, error) {
	switch v.kind {
	case KindString:
		return ParseTime(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.Abs(v.num) > maxEpochMillis {
			return time.Time{}, fmt.Errorf("invalid timestamp: %s", v.Text())
		}
		return time.UnixMilli(int64(v.num)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%s is not a timestamp", v.kind)
	}
}

// maxEpochMillis is the ECMAScript date range, 100,000,000 days either side
// of the epoch.
const maxEpochMillis = 8.64e15

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTime parses the date and date-time forms accepted in filter values.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp: %q", s)
}

var numericPattern = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)

// ParseNumber parses a decimal number. Hex, NaN and infinities are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !numericPattern.MatchString(s) {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// FromAny converts a decoded JSON (or YAML) value into a Value.
func FromAny(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return v, nil
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	case float64:
		return Number(v), nil
	case float32:
		return Number(float64(v)), nil
	case int:
		return Number(float64(v)), nil
	case int8:
		return Number(float64(v)), nil
	case int16:
		return Number(float64(v)), nil
	case int32:
		return Number(float64(v)), nil
	case int64:
		return Number(float64(v)), nil
	case uint:
		return Number(float64(v)), nil
	case uint8:
		return Number(float64(v)), nil
	case uint16:
		return Number(float64(v)), nil
	case uint32:
		return Number(float64(v)), nil
	case uint64:
		return Number(float64(v)), nil
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q", v.String())
		}
		return Number(n), nil
	case []string:
		return Strings(v...), nil
	case []float64:
		return Numbers(v...), nil
	case []int:
		elems := make([]Value, len(v))
		for i, n := range v {
			elems[i] = Number(float64(n))
		}
		return Array(elems...), nil
	case []any:
		elems := make([]Value, len(v))
		for i, item := range v {
			elem, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			if elem.kind != KindString && elem.kind != KindNumber {
				return Value{}, fmt.Errorf("array elements must be strings or numbers, got %s", elem.kind)
			}
			elems[i] = elem
		}
		return Value{kind: KindArray, elems: elems}, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

// MarshalJSON encodes the value as its plain JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON decodes any JSON scalar or scalar array.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalYAML encodes the value as its plain form.
func (v Value) MarshalYAML() (interface{}, error) {
	return v.Any(), nil
}
