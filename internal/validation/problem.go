package validation

import (
	"fmt"
	"net/http"
)

// ProblemContentType is the media type of ProblemDetails documents.
const ProblemContentType = "application/problem+json"

// ProblemTypeInvalidFilter identifies filter problems in ProblemDetails.Type.
const ProblemTypeInvalidFilter = "urn:fluxfilter:problem:invalid-filter"

// ProblemDetails is an RFC 7807 problem document with the validation errors
// carried in the "errors" extension member.
type ProblemDetails struct {
	Type     string                  `json:"type"`
	Title    string                  `json:"title"`
	Status   int                     `json:"status"`
	Detail   string                  `json:"detail,omitempty"`
	Instance string                  `json:"instance,omitempty"`
	Errors   []FilterValidationError `json:"errors"`
}

// NewProblem builds the problem document for an invalid result. instance is
// usually the request path.
func NewProblem(result Result, instance string) ProblemDetails {
	detail := "1 filter failed validation"
	if n := len(result.Errors); n != 1 {
		detail = fmt.Sprintf("%d filters failed validation", n)
	}

	return ProblemDetails{
		Type:     ProblemTypeInvalidFilter,
		Title:    "Invalid filter",
		Status:   http.StatusBadRequest,
		Detail:   detail,
		Instance: instance,
		Errors:   result.Errors,
	}
}

// NewParseProblem builds the problem document for input that could not be
// parsed at all.
func NewParseProblem(err error, instance string) ProblemDetails {
	return ProblemDetails{
		Type:     ProblemTypeInvalidFilter,
		Title:    "Malformed filter",
		Status:   http.StatusBadRequest,
		Detail:   err.Error(),
		Instance: instance,
		Errors:   []FilterValidationError{FromParseError(err)},
	}
}
