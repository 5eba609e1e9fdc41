package query

import (
	"errors"
	"fmt"
)

// ErrInvalidFormat is matched by every ParseError.
var ErrInvalidFormat = errors.New("invalid filter format")

const (
	colonShape = "field:op:value (e.g. status:eq:active)"
	jsonShape  = `{"field":{"op":value}} (e.g. {"status":{"eq":"active"}})`
)

// ParseError describes filter input that could not be interpreted.
type ParseError struct {
	Input    string // offending fragment
	Reason   string
	Expected string // example of the accepted shape
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid filter %q: %s; expected %s", e.Input, e.Reason, e.Expected)
}

func (e *ParseError) Unwrap() error {
	return ErrInvalidFormat
}

func colonError(input, reason string) *ParseError {
	return &ParseError{Input: input, Reason: reason, Expected: colonShape}
}

func jsonError(input, reason string) *ParseError {
	return &ParseError{Input: input, Reason: reason, Expected: jsonShape}
}
