package validation

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fluxbase-eu/fluxfilter/internal/query"
	"github.com/fluxbase-eu/fluxfilter/internal/schema"
)

// ValidateFilters checks every filter and collects all failures. It never
// stops at the first invalid filter.
func ValidateFilters(filters []query.FilterOption, s *schema.FilterSchema) Result {
	result := Result{Valid: true, Errors: []FilterValidationError{}}
	for _, f := range filters {
		if err := ValidateFilter(f, s); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	}
	result.Valid = len(result.Errors) == 0
	return result
}

// ValidateFilter checks a single filter against s and returns nil when it is
// valid.
func ValidateFilter(f query.FilterOption, s *schema.FilterSchema) *FilterValidationError {
	def, ok := s.Field(f.Field)
	if !ok {
		return &FilterValidationError{
			Code:    CodeUnknownField,
			Message: fmt.Sprintf("unknown filter field %q", f.Field),
			Field:   f.Field,
		}
	}

	if !def.Allows(f.Op) {
		return &FilterValidationError{
			Code:             CodeInvalidOperator,
			Message:          fmt.Sprintf("operator %q is not allowed for field %q", f.Op, f.Field),
			Field:            f.Field,
			Operator:         f.Op,
			AllowedOperators: append([]query.FilterOperator(nil), def.Operators...),
		}
	}

	// The value of a null check is ignored.
	if f.Op.IsNullCheck() {
		return nil
	}

	if f.Op.IsSetOperator() {
		if !f.Value.IsArray() {
			return &FilterValidationError{
				Code:     CodeInvalidIn,
				Message:  fmt.Sprintf("operator %s requires an array value", f.Op),
				Field:    f.Field,
				Operator: f.Op,
				Value:    f.Value.Any(),
			}
		}
		if f.Value.Len() == 0 {
			return &FilterValidationError{
				Code:     CodeInvalidIn,
				Message:  fmt.Sprintf("operator %s requires at least one value", f.Op),
				Field:    f.Field,
				Operator: f.Op,
				Value:    f.Value.Any(),
			}
		}
		for _, elem := range f.Value.Elems() {
			if err := checkType(f, def, elem); err != nil {
				return err
			}
		}
		return nil
	}

	if f.Value.IsArray() {
		return &FilterValidationError{
			Code:     CodeInvalidFormat,
			Message:  fmt.Sprintf("operator %s requires a single value", f.Op),
			Field:    f.Field,
			Operator: f.Op,
			Value:    f.Value.Any(),
		}
	}

	return checkType(f, def, f.Value)
}

// checkType validates one scalar against the field's declared type. Null
// always passes.
func checkType(f query.FilterOption, def schema.FieldDefinition, v query.Value) *FilterValidationError {
	if v.IsNull() {
		return nil
	}

	fail := func(code ErrorCode, format string, args ...any) *FilterValidationError {
		return &FilterValidationError{
			Code:     code,
			Message:  fmt.Sprintf(format, args...),
			Field:    f.Field,
			Operator: f.Op,
			Value:    v.Any(),
		}
	}

	switch def.Type {
	case schema.TypeUUID:
		s, ok := v.AsString()
		if !ok || !IsUUID(s) {
			return fail(CodeInvalidUUID, "value %s is not a valid UUID", v)
		}

	case schema.TypeTimestamp:
		if _, err := v.Time(); err != nil {
			return fail(CodeInvalidDate, "value %s is not a valid date", v)
		}

	case schema.TypeNumber:
		if _, ok := v.AsNumber(); ok {
			return nil
		}
		if s, ok := v.AsString(); ok {
			if _, ok := query.ParseNumber(s); ok {
				return nil
			}
		}
		return fail(CodeInvalidType, "value %s is not a number", v)

	case schema.TypeBoolean:
		if _, ok := v.AsBool(); ok {
			return nil
		}
		if s, ok := v.AsString(); ok && (s == "true" || s == "false") {
			return nil
		}
		return fail(CodeInvalidType, "value %s is not a boolean", v)

	case schema.TypeEnum:
		if v.Kind() == query.KindBool || !def.HasEnumValue(v.Text()) {
			err := fail(CodeInvalidEnum, "value %s is not one of the allowed values", v)
			err.AllowedValues = append([]string(nil), def.EnumValues...)
			return err
		}
	}

	return nil
}

// IsUUID reports whether s is a canonical hyphenated UUID with a valid
// version and RFC 4122 variant.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	v := id.Version()
	return v >= 1 && v <= 8 && id.Variant() == uuid.RFC4122
}
