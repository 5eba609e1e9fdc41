// Package compiler turns filter clauses into a parameterized SQL condition.
//
// Compilation is stateless: the same schema may be compiled against from any
// number of goroutines.
package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/fluxfilter/internal/query"
	"github.com/fluxbase-eu/fluxfilter/internal/schema"
)

var (
	// ErrUnknownField means a filter referenced a field the schema does not
	// define. Callers are expected to validate before compiling.
	ErrUnknownField = errors.New("unknown filter field")

	ErrUnsupportedOperator = errors.New("unsupported filter operator")
)

// Logic is the boolean operator joining compiled clauses.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// ParseLogic parses "and" or "or", case-insensitively. Empty means and.
func ParseLogic(s string) (Logic, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "and":
		return LogicAnd, nil
	case "or":
		return LogicOr, nil
	default:
		return "", fmt.Errorf("invalid logic %q: expected and or or", s)
	}
}

func (l Logic) separator() string {
	if l == LogicOr {
		return " OR "
	}
	return " AND "
}

// Options control the shape of compiled output.
type Options struct {
	Logic            Logic
	QuoteIdentifiers bool             // quote column names with pgx.Identifier
	StartIndex       int              // number of the first placeholder; 0 means 1
	Placeholder      PlaceholderStyle // empty means PlaceholderDollar
	Verify           bool             // parse the output and reject anything but simple predicates
}

// CompiledFilter is a SQL condition and its bind parameters. Params[k-1]
// binds placeholder $k.
type CompiledFilter struct {
	SQL    string `json:"sql" yaml:"sql"`
	Params []any  `json:"params" yaml:"params"`
}

// IsEmpty reports whether no clauses were compiled.
func (c CompiledFilter) IsEmpty() bool {
	return c.SQL == ""
}

// Where returns the condition prefixed with WHERE, or "" when empty.
func (c CompiledFilter) Where() string {
	if c.SQL == "" {
		return ""
	}
	return "WHERE " + c.SQL
}

// DriverArgs returns Params with slices wrapped for database/sql drivers.
// pgx accepts Params directly.
func (c CompiledFilter) DriverArgs() []any {
	args := make([]any, len(c.Params))
	for i, p := range c.Params {
		switch v := p.(type) {
		case []string, []float64, []any:
			args[i] = pq.Array(v)
		default:
			args[i] = p
		}
	}
	return args
}

// CompileFilter compiles filters against s, joining clauses with logic.
func CompileFilter(filters []query.FilterOption, s *schema.FilterSchema, logic Logic) (CompiledFilter, error) {
	return Compile(filters, s, Options{Logic: logic})
}

// Compile compiles filters against s in input order. A field missing from
// the schema is an error. Coercion is best effort: a value that cannot be
// coerced is used as given.
func Compile(filters []query.FilterOption, s *schema.FilterSchema, opts Options) (CompiledFilter, error) {
	b := newBuilder(opts)

	for _, f := range filters {
		def, ok := s.Field(f.Field)
		if !ok {
			return CompiledFilter{}, fmt.Errorf("%w: %s", ErrUnknownField, f.Field)
		}

		value, err := CoerceValue(f.Value, def)
		if err != nil {
			log.Debug().Err(err).Str("field", f.Field).Msg("Coercion failed, using value as given")
			value = f.Value
		}

		if err := b.add(f.Op, def.Column, value); err != nil {
			return CompiledFilter{}, fmt.Errorf("field %s: %w", f.Field, err)
		}
	}

	return b.finish()
}

var comparisons = map[query.FilterOperator]string{
	query.OpEqual:          "=",
	query.OpNotEqual:       "!=",
	query.OpGreaterThan:    ">",
	query.OpGreaterOrEqual: ">=",
	query.OpLessThan:       "<",
	query.OpLessOrEqual:    "<=",
	query.OpLike:           "LIKE",
	query.OpILike:          "ILIKE",
	query.OpContains:       "ILIKE",
}

type builder struct {
	opts    Options
	start   int
	clauses []clause
	params  []any
}

// clause is a compiled predicate whose placeholder is rendered last, so only
// generated placeholders ever change with the style.
type clause struct {
	format string // %[1]s is the column, %[2]s the placeholder
	column string
	param  int // index into params, or -1
}

func newBuilder(opts Options) *builder {
	if opts.Logic == "" {
		opts.Logic = LogicAnd
	}
	if opts.Placeholder == "" {
		opts.Placeholder = PlaceholderDollar
	}
	start := opts.StartIndex
	if start < 1 {
		start = 1
	}
	return &builder{opts: opts, start: start, clauses: []clause{}, params: []any{}}
}

func (b *builder) column(name string) string {
	if !b.opts.QuoteIdentifiers {
		return name
	}
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func (b *builder) predicate(format, col string) {
	b.clauses = append(b.clauses, clause{format: format, column: col, param: -1})
}

func (b *builder) bind(format, col string, value any) {
	b.clauses = append(b.clauses, clause{format: format, column: col, param: len(b.params)})
	b.params = append(b.params, value)
}

func (b *builder) add(op query.FilterOperator, column string, value query.Value) error {
	col := b.column(column)

	// eq/neq against null compile to the null checks.
	if value.IsNull() && (op == query.OpEqual || op == query.OpNotEqual) {
		if op == query.OpEqual {
			op = query.OpIsNull
		} else {
			op = query.OpIsNotNull
		}
	}

	switch op {
	case query.OpIsNull:
		b.predicate("%[1]s IS NULL", col)
		return nil
	case query.OpIsNotNull:
		b.predicate("%[1]s IS NOT NULL", col)
		return nil
	case query.OpIn:
		b.bind("%[1]s = ANY(%[2]s)", col, arrayParam(value))
		return nil
	case query.OpNotIn:
		b.bind("%[1]s != ALL(%[2]s)", col, arrayParam(value))
		return nil
	case query.OpContains:
		value = query.String("%" + value.Text() + "%")
	}

	cmp, ok := comparisons[op]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedOperator, op)
	}
	b.bind("%[1]s "+cmp+" %[2]s", col, value.Any())
	return nil
}

func (b *builder) render(placeholders []string) string {
	parts := make([]string, len(b.clauses))
	for i, c := range b.clauses {
		if c.param < 0 {
			parts[i] = fmt.Sprintf(c.format, c.column)
		} else {
			parts[i] = fmt.Sprintf(c.format, c.column, placeholders[c.param])
		}
	}
	return strings.Join(parts, b.opts.Logic.separator())
}

func (b *builder) finish() (CompiledFilter, error) {
	dollar := dollarPlaceholders(b.start, len(b.params))

	if b.opts.Verify {
		if err := Verify(CompiledFilter{SQL: b.render(dollar), Params: b.params}); err != nil {
			return CompiledFilter{}, err
		}
	}

	placeholders := dollar
	if b.opts.Placeholder != PlaceholderDollar {
		placeholders = b.opts.Placeholder.placeholders(len(b.params))
	}
	return CompiledFilter{SQL: b.render(placeholders), Params: b.params}, nil
}

// arrayParam converts an in/nin value into a typed slice. Homogeneous
// arrays become []string or []float64; a scalar becomes a one-element array.
func arrayParam(v query.Value) any {
	elems := v.Elems()
	if !v.IsArray() {
		elems = []query.Value{v}
	}

	allStrings, allNumbers := true, true
	for _, e := range elems {
		allStrings = allStrings && e.Kind() == query.KindString
		allNumbers = allNumbers && e.Kind() == query.KindNumber
	}

	switch {
	case allStrings:
		out := make([]string, len(elems))
		for i, e := range elems {
			out[i], _ = e.AsString()
		}
		return out
	case allNumbers:
		out := make([]float64, len(elems))
		for i, e := range elems {
			out[i], _ = e.AsNumber()
		}
		return out
	default:
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = e.Any()
		}
		return out
	}
}
