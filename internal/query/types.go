// Package query provides the filter vocabulary shared by the parser, validator and compiler.
// This package has no dependency on schemas or SQL so every stage can import it.
package query

import "strings"

// FilterOperator represents comparison operators
type FilterOperator string

const (
	OpEqual          FilterOperator = "eq"
	OpNotEqual       FilterOperator = "neq"
	OpIn             FilterOperator = "in"
	OpNotIn          FilterOperator = "nin"
	OpGreaterThan    FilterOperator = "gt"
	OpLessThan       FilterOperator = "lt"
	OpGreaterOrEqual FilterOperator = "gte"
	OpLessOrEqual    FilterOperator = "lte"
	OpContains       FilterOperator = "contains" // substring match, compiled to ILIKE %v%
	OpLike           FilterOperator = "like"
	OpILike          FilterOperator = "ilike"
	OpIsNull         FilterOperator = "isNull"
	OpIsNotNull      FilterOperator = "isNotNull"
)

// Operators lists every canonical operator in canonical order.
var Operators = []FilterOperator{
	OpEqual, OpNotEqual, OpIn, OpNotIn,
	OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual,
	OpContains, OpLike, OpILike,
	OpIsNull, OpIsNotNull,
}

// operatorAliases maps lower-cased spellings to canonical operators.
var operatorAliases = map[string]FilterOperator{
	"eq":     OpEqual,
	"equals": OpEqual,
	"equal":  OpEqual,
	"=":      OpEqual,
	"==":     OpEqual,

	"neq":       OpNotEqual,
	"ne":        OpNotEqual,
	"notequals": OpNotEqual,
	"notequal":  OpNotEqual,
	"!=":        OpNotEqual,
	"<>":        OpNotEqual,

	"in":    OpIn,
	"nin":   OpNotIn,
	"notin": OpNotIn,

	"gt":          OpGreaterThan,
	">":           OpGreaterThan,
	"greaterthan": OpGreaterThan,

	"lt":       OpLessThan,
	"<":        OpLessThan,
	"lessthan": OpLessThan,

	"gte":                 OpGreaterOrEqual,
	"ge":                  OpGreaterOrEqual,
	">=":                  OpGreaterOrEqual,
	"greaterthanorequal":  OpGreaterOrEqual,
	"greaterthanorequals": OpGreaterOrEqual,

	"lte":              OpLessOrEqual,
	"le":               OpLessOrEqual,
	"<=":               OpLessOrEqual,
	"lessthanorequal":  OpLessOrEqual,
	"lessthanorequals": OpLessOrEqual,

	"contains": OpContains,
	"like":     OpLike,
	"ilike":    OpILike,

	"isnull":      OpIsNull,
	"is_null":     OpIsNull,
	"isnotnull":   OpIsNotNull,
	"is_not_null": OpIsNotNull,
	"notnull":     OpIsNotNull,
}

// NormalizeOperator maps a raw operator spelling to its canonical form.
// Alias lookup is case-insensitive. Unknown strings are returned unchanged so
// that validation can report them; this function never fails.
func NormalizeOperator(raw string) FilterOperator {
	if op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return op
	}
	return FilterOperator(raw)
}

// IsValid reports whether op is one of the canonical operators.
func (op FilterOperator) IsValid() bool {
	return op.rank() >= 0
}

// IsNullCheck reports whether op tests for NULL and ignores its value.
func (op FilterOperator) IsNullCheck() bool {
	return op == OpIsNull || op == OpIsNotNull
}

// IsSetOperator reports whether op takes an array value.
func (op FilterOperator) IsSetOperator() bool {
	return op == OpIn || op == OpNotIn
}

// rank returns the position of op in Operators, or -1.
func (op FilterOperator) rank() int {
	for i, known := range Operators {
		if known == op {
			return i
		}
	}
	return -1
}

// FilterOption is one (field, operator, value) clause.
type FilterOption struct {
	Field string         `json:"field" yaml:"field"`
	Op    FilterOperator `json:"op" yaml:"op"`
	Value Value          `json:"value" yaml:"value"`
}

// SortField represents an ORDER BY entry of a FilterQuery
type SortField struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// FilterQuery bundles filters with sort, pagination and field selection
// as they travel in a URL query string.
type FilterQuery struct {
	Filters []FilterOption `json:"filters"`
	Sort    []SortField    `json:"sort,omitempty"`
	Limit   *int           `json:"limit,omitempty"`
	Offset  *int           `json:"offset,omitempty"`
	Fields  []string       `json:"fields,omitempty"`
}
