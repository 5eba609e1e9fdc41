// Package schema describes which fields of a resource may be filtered, how
// they map to physical columns, and which operators each accepts.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fluxbase-eu/fluxfilter/internal/query"
)

// ErrInvalidSchema is wrapped by every schema construction and loading error.
var ErrInvalidSchema = errors.New("invalid filter schema")

// FieldType is the declared value type of a filterable field.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeNumber    FieldType = "number"
	TypeBoolean   FieldType = "boolean"
	TypeUUID      FieldType = "uuid"
	TypeTimestamp FieldType = "timestamp"
	TypeEnum      FieldType = "enum"
)

// FieldTypes lists every supported field type.
var FieldTypes = []FieldType{TypeString, TypeNumber, TypeBoolean, TypeUUID, TypeTimestamp, TypeEnum}

// IsValid reports whether t is a supported field type.
func (t FieldType) IsValid() bool {
	_, ok := defaultOperators[t]
	return ok
}

var defaultOperators = map[FieldType][]query.FilterOperator{
	TypeString: {
		query.OpEqual, query.OpNotEqual, query.OpIn, query.OpNotIn,
		query.OpContains, query.OpLike, query.OpILike,
	},
	TypeNumber: {
		query.OpEqual, query.OpNotEqual, query.OpGreaterThan, query.OpGreaterOrEqual,
		query.OpLessThan, query.OpLessOrEqual, query.OpIn, query.OpNotIn,
	},
	TypeBoolean:   {query.OpEqual},
	TypeUUID:      {query.OpEqual, query.OpIn},
	TypeTimestamp: {query.OpEqual, query.OpGreaterThan, query.OpGreaterOrEqual, query.OpLessThan, query.OpLessOrEqual},
	TypeEnum:      {query.OpEqual, query.OpIn},
}

// DefaultOperators returns a copy of the default operator allow-list for t,
// or nil when t is not a supported type.
func DefaultOperators(t FieldType) []query.FilterOperator {
	ops, ok := defaultOperators[t]
	if !ok {
		return nil
	}
	out := make([]query.FilterOperator, len(ops))
	copy(out, ops)
	return out
}

// FieldDefinition maps a logical field to its column, type and permitted operators.
type FieldDefinition struct {
	Column     string                 `json:"column" yaml:"column"`
	Type       FieldType              `json:"type" yaml:"type"`
	Operators  []query.FilterOperator `json:"operators" yaml:"operators"`
	EnumValues []string               `json:"enumValues,omitempty" yaml:"enumValues,omitempty"`
	Nullable   bool                   `json:"nullable,omitempty" yaml:"nullable,omitempty"`
}

// Allows reports whether op is in the field's operator allow-list.
func (d FieldDefinition) Allows(op query.FilterOperator) bool {
	for _, allowed := range d.Operators {
		if allowed == op {
			return true
		}
	}
	return false
}

// HasEnumValue reports whether s is one of the field's enum values.
func (d FieldDefinition) HasEnumValue(s string) bool {
	for _, v := range d.EnumValues {
		if v == s {
			return true
		}
	}
	return false
}

// FilterSchema is the filter definition for one resource. A schema is never
// mutated after construction and may be shared between goroutines.
type FilterSchema struct {
	Resource string                     `json:"resource" yaml:"resource"`
	Version  string                     `json:"version,omitempty" yaml:"version,omitempty"`
	Fields   map[string]FieldDefinition `json:"fields" yaml:"fields"`
}

// Field looks up a field definition by logical name.
func (s *FilterSchema) Field(name string) (FieldDefinition, bool) {
	def, ok := s.Fields[name]
	return def, ok
}

// FieldNames returns the logical field names in sorted order.
func (s *FilterSchema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateFilterSchema builds a schema from field definitions, filling in each
// field's operators from the type defaults unless they are given explicitly.
// Nullable fields with default operators also accept isNull and isNotNull.
// An empty column defaults to the field name.
func CreateFilterSchema(resource string, fields map[string]FieldDefinition, version string) (*FilterSchema, error) {
	return build(resource, fields, version, true)
}

func build(resource string, fields map[string]FieldDefinition, version string, fillDefaults bool) (*FilterSchema, error) {
	if strings.TrimSpace(resource) == "" {
		return nil, fmt.Errorf("%w: resource name is required", ErrInvalidSchema)
	}

	s := &FilterSchema{
		Resource: resource,
		Version:  version,
		Fields:   make(map[string]FieldDefinition, len(fields)),
	}

	for name, def := range fields {
		normalized, err := normalizeField(name, def, fillDefaults)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %s", ErrInvalidSchema, resource, name, err)
		}
		s.Fields[name] = normalized
	}

	return s, nil
}

func normalizeField(name string, def FieldDefinition, fillDefaults bool) (FieldDefinition, error) {
	if strings.TrimSpace(name) == "" {
		return def, errors.New("empty field name")
	}
	if !def.Type.IsValid() {
		return def, fmt.Errorf("unknown type %q", def.Type)
	}

	if def.Column == "" {
		if !fillDefaults {
			return def, errors.New("column is required")
		}
		def.Column = name
	}

	if fillDefaults && len(def.Operators) == 0 {
		def.Operators = DefaultOperators(def.Type)
		if def.Nullable {
			def.Operators = append(def.Operators, query.OpIsNull, query.OpIsNotNull)
		}
	} else {
		ops := make([]query.FilterOperator, len(def.Operators))
		for i, op := range def.Operators {
			ops[i] = query.NormalizeOperator(string(op))
			if !ops[i].IsValid() {
				return def, fmt.Errorf("unknown operator %q", op)
			}
		}
		def.Operators = ops
	}

	if def.Type == TypeEnum && len(def.EnumValues) == 0 {
		return def, errors.New("enum field has no enumValues")
	}
	def.EnumValues = append([]string(nil), def.EnumValues...)

	return def, nil
}
