package query

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int {
	return &i
}

func TestFilterQueryToJSON(t *testing.T) {
	obj := FilterQueryToJSON([]FilterOption{
		{Field: "status", Op: OpIn, Value: Strings("active", "pending")},
		{Field: "age", Op: OpGreaterOrEqual, Value: Number(18)},
		{Field: "age", Op: OpLessThan, Value: Number(65)},
		{Field: "deletedAt", Op: OpIsNull, Value: Null()},
	})

	assert.Equal(t, map[string]map[string]any{
		"status":    {"in": []any{"active", "pending"}},
		"age":       {"gte": 18.0, "lt": 65.0},
		"deletedAt": {"isNull": nil},
	}, obj)
}

func TestJSONRoundTrip(t *testing.T) {
	queries := [][]FilterOption{
		{},
		{{Field: "status", Op: OpEqual, Value: String("active")}},
		{
			{Field: "status", Op: OpNotIn, Value: Strings("archived")},
			{Field: "age", Op: OpGreaterThan, Value: Number(21)},
			{Field: "age", Op: OpLessOrEqual, Value: Number(99.5)},
			{Field: "verified", Op: OpEqual, Value: Bool(true)},
			{Field: "deletedAt", Op: OpIsNull, Value: Null()},
			{Field: "email", Op: OpContains, Value: String("@example")},
			{Field: "ids", Op: OpIn, Value: Array(Number(1), String("two"))},
		},
	}

	for _, filters := range queries {
		back, err := JSONToFilterQuery(FilterQueryToJSON(filters))
		require.NoError(t, err)
		assert.ElementsMatch(t, filters, back)
	}
}

func TestBuildQueryString(t *testing.T) {
	qs, err := BuildQueryString(FilterQuery{
		Filters: []FilterOption{{Field: "status", Op: OpEqual, Value: String("active")}},
		Sort:    []SortField{{Field: "createdAt", Desc: true}, {Field: "name"}},
		Limit:   intPtr(20),
		Offset:  intPtr(40),
		Fields:  []string{"id", "name"},
	})
	require.NoError(t, err)

	values, err := url.ParseQuery(qs)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":{"eq":"active"}}`, values.Get("filter"))
	assert.Equal(t, "-createdAt,name", values.Get("sort"))
	assert.Equal(t, "20", values.Get("limit"))
	assert.Equal(t, "40", values.Get("offset"))
	assert.Equal(t, "id,name", values.Get("fields"))
}

func TestBuildQueryString_Empty(t *testing.T) {
	qs, err := BuildQueryString(FilterQuery{})
	require.NoError(t, err)
	assert.Equal(t, "", qs)
}

func TestBuildQueryString_RoundTrip(t *testing.T) {
	original := FilterQuery{
		Filters: []FilterOption{
			{Field: "age", Op: OpGreaterOrEqual, Value: Number(18)},
			{Field: "name", Op: OpILike, Value: String("%an%")},
			{Field: "tags", Op: OpIn, Value: Strings("a+b", "c d")},
		},
		Sort:   []SortField{{Field: "address.city"}, {Field: "age", Desc: true}},
		Limit:  intPtr(5),
		Offset: intPtr(0),
		Fields: []string{"id"},
	}

	qs, err := BuildQueryString(original)
	require.NoError(t, err)

	values, err := url.ParseQuery(qs)
	require.NoError(t, err)

	parsed, err := ParseQueryParams(values, ParseOptions{})
	require.NoError(t, err)

	assert.ElementsMatch(t, original.Filters, parsed.Filters)
	assert.Equal(t, original.Sort, parsed.Sort)
	assert.Equal(t, original.Limit, parsed.Limit)
	assert.Equal(t, original.Offset, parsed.Offset)
	assert.Equal(t, original.Fields, parsed.Fields)
}
