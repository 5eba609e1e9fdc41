// Package validation checks parsed filters against a schema and reports
// every problem as data.
package validation

import (
	"errors"
	"fmt"

	"github.com/fluxbase-eu/fluxfilter/internal/query"
)

// ErrorCode identifies the kind of validation failure. The set is closed so
// clients can branch on it.
type ErrorCode string

const (
	CodeUnknownField    ErrorCode = "UNKNOWN_FIELD"
	CodeInvalidOperator ErrorCode = "INVALID_OPERATOR"
	CodeInvalidType     ErrorCode = "INVALID_TYPE"
	CodeInvalidUUID     ErrorCode = "INVALID_UUID"
	CodeInvalidDate     ErrorCode = "INVALID_DATE"
	CodeInvalidEnum     ErrorCode = "INVALID_ENUM"
	CodeInvalidIn       ErrorCode = "INVALID_IN"
	CodeInvalidFormat   ErrorCode = "INVALID_FORMAT"
)

// FilterValidationError describes one invalid filter clause.
type FilterValidationError struct {
	Code             ErrorCode              `json:"code" yaml:"code"`
	Message          string                 `json:"message" yaml:"message"`
	Field            string                 `json:"field,omitempty" yaml:"field,omitempty"`
	Operator         query.FilterOperator   `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value            any                    `json:"value,omitempty" yaml:"value,omitempty"`
	AllowedOperators []query.FilterOperator `json:"allowedOperators,omitempty" yaml:"allowedOperators,omitempty"`
	AllowedValues    []string               `json:"allowedValues,omitempty" yaml:"allowedValues,omitempty"`
}

func (e *FilterValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result aggregates the outcome of validating a filter list.
type Result struct {
	Valid  bool                    `json:"valid" yaml:"valid"`
	Errors []FilterValidationError `json:"errors" yaml:"errors"`
}

// Err returns the first error as a Go error, or nil when the result is valid.
func (r Result) Err() error {
	if r.Valid || len(r.Errors) == 0 {
		return nil
	}
	return &r.Errors[0]
}

// FromParseError converts a parse failure into an INVALID_FORMAT error so it
// can be reported alongside validation errors.
func FromParseError(err error) FilterValidationError {
	out := FilterValidationError{
		Code:    CodeInvalidFormat,
		Message: err.Error(),
	}

	var perr *query.ParseError
	if errors.As(err, &perr) {
		out.Value = perr.Input
	}
	return out
}
