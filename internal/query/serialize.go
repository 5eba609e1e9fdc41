package query

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// FilterQueryToJSON converts filters into the JSON filter format. A later
// clause with the same field and operator replaces an earlier one.
func FilterQueryToJSON(filters []FilterOption) map[string]map[string]any {
	out := make(map[string]map[string]any, len(filters))
	for _, f := range filters {
		ops, ok := out[f.Field]
		if !ok {
			ops = make(map[string]any)
			out[f.Field] = ops
		}
		ops[string(f.Op)] = f.Value.Any()
	}
	return out
}

// JSONToFilterQuery is the inverse of FilterQueryToJSON.
func JSONToFilterQuery(obj map[string]map[string]any) ([]FilterOption, error) {
	return ParseFilter(obj)
}

// BuildQueryString serializes q into a URL query string using the JSON
// filter format. Keys are emitted in sorted order.
func BuildQueryString(q FilterQuery) (string, error) {
	values := url.Values{}

	if len(q.Filters) > 0 {
		data, err := json.Marshal(FilterQueryToJSON(q.Filters))
		if err != nil {
			return "", fmt.Errorf("failed to encode filters: %w", err)
		}
		values.Set("filter", string(data))
	}

	if len(q.Sort) > 0 {
		parts := make([]string, len(q.Sort))
		for i, s := range q.Sort {
			if s.Desc {
				parts[i] = "-" + s.Field
			} else {
				parts[i] = s.Field
			}
		}
		values.Set("sort", strings.Join(parts, ","))
	}

	if q.Limit != nil {
		values.Set("limit", strconv.Itoa(*q.Limit))
	}
	if q.Offset != nil {
		values.Set("offset", strconv.Itoa(*q.Offset))
	}
	if len(q.Fields) > 0 {
		values.Set("fields", strings.Join(q.Fields, ","))
	}

	return values.Encode(), nil
}
