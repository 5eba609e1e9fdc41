package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// ParseOptions bounds the size of parsed input. Zero values mean unlimited.
type ParseOptions struct {
	MaxFilters      int // maximum number of clauses
	MaxInValues     int // maximum elements in an in/nin array
	DefaultPageSize int // limit applied by ParseQueryParams when none is given
	MaxPageSize     int // cap on the requested limit
}

// ParseFilterParams reads the "filter" entry of a raw query-parameter map.
// A missing or nil entry yields no filters.
func ParseFilterParams(params map[string]any) ([]FilterOption, error) {
	return ParseFilterParamsWithOptions(params, ParseOptions{})
}

// ParseFilterParamsWithOptions is ParseFilterParams with size limits.
func ParseFilterParamsWithOptions(params map[string]any, opts ParseOptions) ([]FilterOption, error) {
	raw, ok := params["filter"]
	if !ok || raw == nil {
		return []FilterOption{}, nil
	}

	filters, err := ParseFilter(raw)
	if err != nil {
		return nil, err
	}

	if err := opts.check(filters); err != nil {
		return nil, err
	}
	return filters, nil
}

func (opts ParseOptions) check(filters []FilterOption) error {
	if opts.MaxFilters > 0 && len(filters) > opts.MaxFilters {
		return &ParseError{
			Input:    fmt.Sprintf("%d filters", len(filters)),
			Reason:   fmt.Sprintf("too many filters (max %d)", opts.MaxFilters),
			Expected: fmt.Sprintf("at most %d clauses", opts.MaxFilters),
		}
	}
	if opts.MaxInValues > 0 {
		for _, f := range filters {
			if f.Value.IsArray() && f.Value.Len() > opts.MaxInValues {
				return &ParseError{
					Input:    f.Field + ":" + string(f.Op),
					Reason:   fmt.Sprintf("too many values (%d, max %d)", f.Value.Len(), opts.MaxInValues),
					Expected: fmt.Sprintf("at most %d values per %s list", opts.MaxInValues, f.Op),
				}
			}
		}
	}
	return nil
}

// ParseFilter parses filter input in any accepted shape: a colon string, a
// JSON string (optionally percent-encoded), a decoded JSON object, or an
// array mixing both.
func ParseFilter(input any) ([]FilterOption, error) {
	switch v := input.(type) {
	case nil:
		return []FilterOption{}, nil
	case string:
		return parseString(v)
	case map[string]any:
		return ParseJSONFilter(v)
	case map[string]map[string]any:
		obj := make(map[string]any, len(v))
		for field, ops := range v {
			obj[field] = ops
		}
		return ParseJSONFilter(obj)
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return parseArray(items)
	case []any:
		return parseArray(v)
	default:
		return nil, jsonError(fmt.Sprintf("%v", input), fmt.Sprintf("unsupported filter input type %T", input))
	}
}

// parseString detects the format of a single string entry.
func parseString(s string) ([]FilterOption, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return []FilterOption{}, nil
	}

	if strings.Contains(trimmed, ":") && !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		f, err := ParseColonFilter(trimmed)
		if err != nil {
			return nil, err
		}
		return []FilterOption{f}, nil
	}

	// Percent-decoded first, then raw. PathUnescape leaves '+' alone; literal
	// JSON is never decoded so "%" inside LIKE patterns survives.
	candidates := []string{trimmed}
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		if decoded, err := url.PathUnescape(trimmed); err == nil && decoded != trimmed && utf8.ValidString(decoded) {
			candidates = []string{decoded, trimmed}
		}
	}

	for _, candidate := range candidates {
		var decoded any
		if err := json.Unmarshal([]byte(candidate), &decoded); err != nil {
			continue
		}
		switch v := decoded.(type) {
		case map[string]any:
			return parseJSONObject(v, readKeyOrder([]byte(candidate)))
		case []any:
			return parseArray(v)
		}
	}

	f, err := ParseColonFilter(candidates[0])
	if err != nil {
		return nil, err
	}
	return []FilterOption{f}, nil
}

// parseArray parses each element independently and concatenates the
// results in input order. String elements that fail to parse are skipped;
// object elements must be well-formed.
func parseArray(items []any) ([]FilterOption, error) {
	filters := []FilterOption{}
	for i, item := range items {
		if s, ok := item.(string); ok {
			parsed, err := parseString(s)
			if err != nil {
				log.Debug().Err(err).Int("index", i).Msg("Skipping malformed filter entry")
				continue
			}
			filters = append(filters, parsed...)
			continue
		}

		parsed, err := ParseFilter(item)
		if err != nil {
			return nil, err
		}
		filters = append(filters, parsed...)
	}
	return filters, nil
}

// ParseLegacyFilters parses an array of colon strings, skipping entries
// that are malformed.
func ParseLegacyFilters(entries []string) []FilterOption {
	filters := []FilterOption{}
	for i, entry := range entries {
		f, err := ParseColonFilter(entry)
		if err != nil {
			log.Debug().Err(err).Int("index", i).Msg("Skipping malformed legacy filter")
			continue
		}
		filters = append(filters, f)
	}
	return filters
}

// ParseColonFilter parses "field:op:value". The field ends at the first
// colon, the operator at the second; the value is the remainder and may
// itself contain colons.
func ParseColonFilter(s string) (FilterOption, error) {
	input := strings.TrimSpace(s)

	first := strings.Index(input, ":")
	if first < 0 {
		return FilterOption{}, colonError(input, "missing operator")
	}

	field := strings.TrimSpace(input[:first])
	if field == "" {
		return FilterOption{}, colonError(input, "missing field name")
	}

	rest := input[first+1:]
	opText, valueText, hasValue := strings.Cut(rest, ":")
	if strings.TrimSpace(opText) == "" {
		return FilterOption{}, colonError(input, "missing operator")
	}
	op := NormalizeOperator(opText)

	if op.IsNullCheck() {
		return FilterOption{Field: field, Op: op, Value: Null()}, nil
	}

	if !hasValue || valueText == "" {
		return FilterOption{}, colonError(input, "missing value")
	}

	if op.IsSetOperator() {
		items := strings.Split(valueText, ",")
		elems := make([]Value, len(items))
		for i, item := range items {
			item = strings.TrimSpace(item)
			if n, ok := ParseNumber(item); ok {
				elems[i] = Number(n)
			} else {
				elems[i] = String(item)
			}
		}
		return FilterOption{Field: field, Op: op, Value: Array(elems...)}, nil
	}

	value := parseScalar(valueText)
	if value.IsNull() {
		return nullComparison(field, op, input, colonError)
	}
	return FilterOption{Field: field, Op: op, Value: value}, nil
}

// parseScalar interprets a colon-format value: true/false/null literals,
// then numbers, then strings.
func parseScalar(s string) Value {
	switch s {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	case "null":
		return Null()
	}
	if n, ok := ParseNumber(s); ok {
		return Number(n)
	}
	return String(s)
}

// nullComparison accepts a null value only under eq and neq, which compile
// to IS NULL and IS NOT NULL.
func nullComparison(field string, op FilterOperator, input string, fail func(string, string) *ParseError) (FilterOption, error) {
	if op != OpEqual && op != OpNotEqual {
		return FilterOption{}, fail(input, fmt.Sprintf("operator %s does not accept null", op))
	}
	return FilterOption{Field: field, Op: op, Value: Null()}, nil
}

// ParseJSONFilter parses {field: {op: value, ...}, ...}. A decoded map has
// no key order, so fields are emitted in sorted order and operators in
// canonical order. JSON text passed to ParseFilter keeps its written order.
func ParseJSONFilter(obj map[string]any) ([]FilterOption, error) {
	return parseJSONObject(obj, keyOrder{})
}

func parseJSONObject(obj map[string]any, order keyOrder) ([]FilterOption, error) {
	filters := []FilterOption{}
	for _, field := range order.fieldsOf(obj) {
		fragment := jsonFragment(map[string]any{field: obj[field]})

		if strings.TrimSpace(field) == "" {
			return nil, jsonError(fragment, "missing field name")
		}

		ops, ok := obj[field].(map[string]any)
		if !ok {
			return nil, jsonError(fragment, "field must map to an object of operators")
		}
		if len(ops) == 0 {
			return nil, jsonError(fragment, "no operators given")
		}

		for _, key := range order.operatorsOf(field, ops) {
			f, err := parseJSONClause(field, key, ops[key], fragment)
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)
		}
	}
	return filters, nil
}

// keyOrder records the order in which a JSON filter document lists its
// fields and, per field, its operators.
type keyOrder struct {
	fields []string
	ops    map[string][]string
}

// readKeyOrder walks data with a token decoder. It returns an empty order
// when data is not an object; the caller has already decoded it.
func readKeyOrder(data []byte) keyOrder {
	order := keyOrder{ops: map[string][]string{}}
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return keyOrder{}
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keyOrder{}
		}
		field, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return keyOrder{}
		}
		order.fields = append(order.fields, field)
		order.ops[field] = append(order.ops[field], objectKeys(raw)...)
	}
	return order
}

func objectKeys(data []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return keys
		}
		keys = append(keys, key)
	}
	return keys
}

// fieldsOf returns the fields of obj in recorded order, or sorted when no
// order was recorded.
func (o keyOrder) fieldsOf(obj map[string]any) []string {
	if len(o.fields) == 0 {
		fields := make([]string, 0, len(obj))
		for field := range obj {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		return fields
	}
	return inOrder(o.fields, obj)
}

func (o keyOrder) operatorsOf(field string, ops map[string]any) []string {
	if len(o.ops[field]) == 0 {
		return sortedOperatorKeys(ops)
	}
	return inOrder(o.ops[field], ops)
}

// inOrder returns the keys of m in the order of seen, each once. Keys of m
// missing from seen follow in sorted order.
func inOrder(seen []string, m map[string]any) []string {
	out := make([]string, 0, len(m))
	done := make(map[string]bool, len(m))
	for _, key := range seen {
		if _, ok := m[key]; ok && !done[key] {
			done[key] = true
			out = append(out, key)
		}
	}
	if len(out) < len(m) {
		var rest []string
		for key := range m {
			if !done[key] {
				rest = append(rest, key)
			}
		}
		sort.Strings(rest)
		out = append(out, rest...)
	}
	return out
}

func parseJSONClause(field, key string, raw any, fragment string) (FilterOption, error) {
	op := NormalizeOperator(key)

	if op.IsNullCheck() {
		if raw != nil {
			return FilterOption{}, jsonError(fragment, fmt.Sprintf("operator %s requires a null value", op))
		}
		return FilterOption{Field: field, Op: op, Value: Null()}, nil
	}

	if op.IsSetOperator() {
		items, ok := raw.([]any)
		if !ok {
			return FilterOption{}, jsonError(fragment, fmt.Sprintf("operator %s requires an array value", op))
		}
		value, err := FromAny(items)
		if err != nil {
			return FilterOption{}, jsonError(fragment, err.Error())
		}
		return FilterOption{Field: field, Op: op, Value: value}, nil
	}

	value, err := FromAny(raw)
	if err != nil {
		return FilterOption{}, jsonError(fragment, err.Error())
	}
	if value.IsArray() {
		return FilterOption{}, jsonError(fragment, fmt.Sprintf("operator %s requires a scalar value", op))
	}
	if value.IsNull() {
		return nullComparison(field, op, fragment, jsonError)
	}
	return FilterOption{Field: field, Op: op, Value: value}, nil
}

// sortedOperatorKeys orders operator keys canonically; unknown keys follow
// in lexical order.
func sortedOperatorKeys(ops map[string]any) []string {
	keys := make([]string, 0, len(ops))
	for key := range ops {
		keys = append(keys, key)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		ri, rj := NormalizeOperator(keys[i]).rank(), NormalizeOperator(keys[j]).rank()
		if ri < 0 {
			ri = len(Operators)
		}
		if rj < 0 {
			rj = len(Operators)
		}
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func jsonFragment(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
