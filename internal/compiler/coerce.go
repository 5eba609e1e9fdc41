package compiler

import (
	"errors"
	"fmt"

	"github.com/fluxbase-eu/fluxfilter/internal/query"
	"github.com/fluxbase-eu/fluxfilter/internal/schema"
)

// ErrCoercion is returned when a value cannot be converted to its field type.
var ErrCoercion = errors.New("value cannot be coerced")

// TimestampLayout is the ISO-8601 form timestamps are normalized to.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// CoerceValue converts v to the declared type of def. Null passes through;
// arrays are converted element-wise and fail if any element fails.
func CoerceValue(v query.Value, def schema.FieldDefinition) (query.Value, error) {
	if v.IsNull() {
		return v, nil
	}

	switch def.Type {
	case schema.TypeNumber:
		return mapValue(v, coerceNumber)
	case schema.TypeBoolean:
		return mapValue(v, coerceBool)
	case schema.TypeTimestamp:
		return mapValue(v, coerceTimestamp)
	default:
		return v, nil
	}
}

func mapValue(v query.Value, fn func(query.Value) (query.Value, error)) (query.Value, error) {
	if !v.IsArray() {
		return fn(v)
	}

	elems := v.Elems()
	for i, elem := range elems {
		coerced, err := fn(elem)
		if err != nil {
			return v, err
		}
		elems[i] = coerced
	}
	return query.Array(elems...), nil
}

func coerceNumber(v query.Value) (query.Value, error) {
	if _, ok := v.AsNumber(); ok {
		return v, nil
	}
	if s, ok := v.AsString(); ok {
		if n, ok := query.ParseNumber(s); ok {
			return query.Number(n), nil
		}
	}
	return v, fmt.Errorf("%w: %s is not a number", ErrCoercion, v)
}

func coerceBool(v query.Value) (query.Value, error) {
	if _, ok := v.AsBool(); ok {
		return v, nil
	}
	if s, ok := v.AsString(); ok {
		switch s {
		case "true", "1":
			return query.Bool(true), nil
		case "false", "0":
			return query.Bool(false), nil
		}
	}
	return v, fmt.Errorf("%w: %s is not a boolean", ErrCoercion, v)
}

func coerceTimestamp(v query.Value) (query.Value, error) {
	s, ok := v.AsString()
	if !ok {
		return v, nil
	}
	t, err := query.ParseTime(s)
	if err != nil {
		return v, fmt.Errorf("%w: %s is not a timestamp", ErrCoercion, v)
	}
	return query.String(t.UTC().Format(TimestampLayout)), nil
}
