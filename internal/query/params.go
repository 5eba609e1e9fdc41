package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// queryKeys are the recognized parameters in processing order. When several
// are malformed the error concerns the first of them.
var queryKeys = []string{"filter", "sort", "order", "limit", "offset", "fields", "select"}

// ParseQueryParams parses URL query parameters into a FilterQuery.
// Recognized keys: filter, sort, limit, offset, fields. Repeated filter
// keys are parsed as a legacy array.
func ParseQueryParams(values url.Values, opts ParseOptions) (*FilterQuery, error) {
	q := &FilterQuery{Filters: []FilterOption{}}

	for _, key := range queryKeys {
		vals := values[key]
		if len(vals) == 0 {
			continue
		}

		switch key {
		case "filter":
			var raw any = vals[0]
			if len(vals) > 1 {
				raw = vals
			}
			filters, err := ParseFilterParamsWithOptions(map[string]any{"filter": raw}, opts)
			if err != nil {
				return nil, err
			}
			q.Filters = filters

		case "sort", "order":
			q.Sort = parseSort(vals[0])

		case "limit":
			limit, err := strconv.Atoi(vals[0])
			if err != nil || limit < 0 {
				return nil, fmt.Errorf("invalid limit parameter: %q", vals[0])
			}

			// Enforce max page size
			if opts.MaxPageSize > 0 && limit > opts.MaxPageSize {
				log.Debug().
					Int("requested", limit).
					Int("max", opts.MaxPageSize).
					Msg("Limit capped to max_page_size")
				limit = opts.MaxPageSize
			}
			q.Limit = &limit

		case "offset":
			offset, err := strconv.Atoi(vals[0])
			if err != nil || offset < 0 {
				return nil, fmt.Errorf("invalid offset parameter: %q", vals[0])
			}
			q.Offset = &offset

		case "fields", "select":
			for _, field := range strings.Split(vals[0], ",") {
				if field = strings.TrimSpace(field); field != "" {
					q.Fields = append(q.Fields, field)
				}
			}
		}
	}

	if q.Limit == nil && opts.DefaultPageSize > 0 {
		defaultLimit := opts.DefaultPageSize
		q.Limit = &defaultLimit
	}

	return q, nil
}

// parseSort accepts "-created_at,name" and "created_at.desc,name.asc".
func parseSort(value string) []SortField {
	var fields []SortField
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.HasPrefix(part, "-") {
			fields = append(fields, SortField{Field: part[1:], Desc: true})
			continue
		}

		// Field names may use dot notation, so only a trailing .asc/.desc is a direction.
		if dot := strings.LastIndex(part, "."); dot > 0 {
			switch strings.ToLower(part[dot+1:]) {
			case "asc":
				fields = append(fields, SortField{Field: part[:dot]})
				continue
			case "desc":
				fields = append(fields, SortField{Field: part[:dot], Desc: true})
				continue
			}
		}
		fields = append(fields, SortField{Field: part})
	}
	return fields
}
