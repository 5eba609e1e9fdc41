package compiler

import (
	"fmt"

	"github.com/fluxbase-eu/fluxfilter/internal/query"
	"github.com/fluxbase-eu/fluxfilter/internal/schema"
	"github.com/fluxbase-eu/fluxfilter/internal/validation"
)

// ValidatedFilter is a filter that passed validation and strict coercion
// against a schema. The zero value is not usable; obtain one from Validate.
type ValidatedFilter struct {
	field  string
	op     query.FilterOperator
	column string
	value  query.Value
}

func (f ValidatedFilter) Field() string            { return f.field }
func (f ValidatedFilter) Op() query.FilterOperator { return f.op }
func (f ValidatedFilter) Column() string           { return f.column }
func (f ValidatedFilter) Value() query.Value       { return f.value }
func (f ValidatedFilter) Option() query.FilterOption {
	return query.FilterOption{Field: f.field, Op: f.op, Value: f.value}
}

// Validate validates filters against s and coerces their values. Unlike
// Compile, a coercion failure is reported as an INVALID_TYPE error. When the
// result is invalid no filters are returned.
func Validate(filters []query.FilterOption, s *schema.FilterSchema) ([]ValidatedFilter, validation.Result) {
	result := validation.ValidateFilters(filters, s)
	if !result.Valid {
		return nil, result
	}

	out := make([]ValidatedFilter, 0, len(filters))
	for _, f := range filters {
		def, _ := s.Field(f.Field)

		value := f.Value
		if !f.Op.IsNullCheck() {
			coerced, err := CoerceValue(f.Value, def)
			if err != nil {
				result.Errors = append(result.Errors, validation.FilterValidationError{
					Code:     validation.CodeInvalidType,
					Message:  err.Error(),
					Field:    f.Field,
					Operator: f.Op,
					Value:    f.Value.Any(),
				})
				continue
			}
			value = coerced
		} else {
			value = query.Null()
		}

		out = append(out, ValidatedFilter{field: f.Field, op: f.Op, column: def.Column, value: value})
	}

	if len(result.Errors) > 0 {
		result.Valid = false
		return nil, result
	}
	return out, result
}

// CompileValidated compiles filters that already passed Validate.
func CompileValidated(filters []ValidatedFilter, opts Options) (CompiledFilter, error) {
	b := newBuilder(opts)
	for _, f := range filters {
		if f.column == "" {
			return CompiledFilter{}, fmt.Errorf("%w: %s was not produced by Validate", ErrUnknownField, f.field)
		}
		if err := b.add(f.op, f.column, f.value); err != nil {
			return CompiledFilter{}, fmt.Errorf("field %s: %w", f.field, err)
		}
	}
	return b.finish()
}
