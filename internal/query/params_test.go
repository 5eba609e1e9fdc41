package query

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryParams(t *testing.T) {
	values := url.Values{}
	values.Set("filter", `{"status":{"eq":"active"}}`)
	values.Set("sort", "-createdAt,name.asc")
	values.Set("limit", "25")
	values.Set("offset", "50")
	values.Set("fields", "id, name,,email")

	q, err := ParseQueryParams(values, ParseOptions{})
	require.NoError(t, err)

	assert.Equal(t, []FilterOption{{Field: "status", Op: OpEqual, Value: String("active")}}, q.Filters)
	assert.Equal(t, []SortField{{Field: "createdAt", Desc: true}, {Field: "name"}}, q.Sort)
	require.NotNil(t, q.Limit)
	assert.Equal(t, 25, *q.Limit)
	require.NotNil(t, q.Offset)
	assert.Equal(t, 50, *q.Offset)
	assert.Equal(t, []string{"id", "name", "email"}, q.Fields)
}

func TestParseQueryParams_RepeatedFilters(t *testing.T) {
	values := url.Values{"filter": {"status:eq:active", "age:gte:18"}}

	q, err := ParseQueryParams(values, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, []FilterOption{
		{Field: "status", Op: OpEqual, Value: String("active")},
		{Field: "age", Op: OpGreaterOrEqual, Value: Number(18)},
	}, q.Filters)
}

func TestParseQueryParams_Empty(t *testing.T) {
	q, err := ParseQueryParams(url.Values{}, ParseOptions{})
	require.NoError(t, err)
	assert.Empty(t, q.Filters)
	assert.NotNil(t, q.Filters)
	assert.Nil(t, q.Limit)
	assert.Nil(t, q.Offset)
}

func TestParseQueryParams_PageSize(t *testing.T) {
	opts := ParseOptions{DefaultPageSize: 10, MaxPageSize: 100}

	t.Run("default applied when no limit", func(t *testing.T) {
		q, err := ParseQueryParams(url.Values{}, opts)
		require.NoError(t, err)
		require.NotNil(t, q.Limit)
		assert.Equal(t, 10, *q.Limit)
	})

	t.Run("limit capped to max", func(t *testing.T) {
		q, err := ParseQueryParams(url.Values{"limit": {"5000"}}, opts)
		require.NoError(t, err)
		require.NotNil(t, q.Limit)
		assert.Equal(t, 100, *q.Limit)
	})

	t.Run("limit under max kept", func(t *testing.T) {
		q, err := ParseQueryParams(url.Values{"limit": {"3"}}, opts)
		require.NoError(t, err)
		assert.Equal(t, 3, *q.Limit)
	})
}

func TestParseQueryParams_Errors(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
	}{
		{"non-numeric limit", url.Values{"limit": {"ten"}}},
		{"negative limit", url.Values{"limit": {"-1"}}},
		{"negative offset", url.Values{"offset": {"-5"}}},
		{"malformed filter", url.Values{"filter": {`{"status":"active"}`}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQueryParams(tt.values, ParseOptions{})
			assert.Error(t, err)
		})
	}
}

func TestParseQueryParams_ErrorOrderIsStable(t *testing.T) {
	values := url.Values{
		"offset": {"-5"},
		"limit":  {"ten"},
		"filter": {"status:eq"},
	}

	for i := 0; i < 20; i++ {
		_, err := ParseQueryParams(values, ParseOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidFormat)
	}

	delete(values, "filter")
	for i := 0; i < 20; i++ {
		_, err := ParseQueryParams(values, ParseOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid limit parameter")
	}
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		input    string
		expected []SortField
	}{
		{"name", []SortField{{Field: "name"}}},
		{"-name", []SortField{{Field: "name", Desc: true}}},
		{"name.desc", []SortField{{Field: "name", Desc: true}}},
		{"name.ASC", []SortField{{Field: "name"}}},
		{"address.city", []SortField{{Field: "address.city"}}},
		{"address.city.desc", []SortField{{Field: "address.city", Desc: true}}},
		{" a , -b ,", []SortField{{Field: "a"}, {Field: "b", Desc: true}}},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseSort(tt.input))
		})
	}
}
