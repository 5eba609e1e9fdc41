package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/fluxfilter/internal/config"
	"github.com/fluxbase-eu/fluxfilter/internal/ratelimit"
	"github.com/fluxbase-eu/fluxfilter/internal/schema"
	"github.com/fluxbase-eu/fluxfilter/internal/validation"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Address:      ":0",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  5 * time.Second,
			BodyLimit:    1024 * 1024,
		},
		Filters: config.FilterConfig{
			MaxFilters:       5,
			MaxInValues:      10,
			DefaultLogic:     "and",
			PlaceholderStyle: "dollar",
			VerifySQL:        true,
			MaxPageSize:      100,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Log:     config.LogConfig{Level: "info"},
	}
}

func testServer(t *testing.T) *Server {
	t.Helper()
	return testServerWithLimiter(t, testConfig(), nil)
}

func testServerWithLimiter(t *testing.T, cfg *config.Config, limiter ratelimit.Store) *Server {
	t.Helper()

	s, err := schema.CreateFilterSchema("users", map[string]schema.FieldDefinition{
		"name":      {Column: "name", Type: schema.TypeString},
		"status":    {Column: "status", Type: schema.TypeEnum, EnumValues: []string{"active", "disabled"}},
		"age":       {Column: "age", Type: schema.TypeNumber},
		"createdAt": {Column: "created_at", Type: schema.TypeTimestamp},
		"deletedAt": {Column: "deleted_at", Type: schema.TypeTimestamp, Nullable: true},
	}, "1")
	require.NoError(t, err)

	registry := schema.NewRegistry()
	require.NoError(t, registry.Register(s))

	return NewServer(cfg, registry, limiter)
}

func doRequest(t *testing.T, srv *Server, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(body) > 0 && body[0] == '{' {
		require.NoError(t, json.Unmarshal(body, &out), string(body))
	}
	return resp, out
}

func get(t *testing.T, srv *Server, path string, params url.Values) (*http.Response, map[string]any) {
	t.Helper()
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return doRequest(t, srv, httptest.NewRequest("GET", path, nil))
}

func post(t *testing.T, srv *Server, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return doRequest(t, srv, req)
}

// =============================================================================
// Health and Schema Tests
// =============================================================================

func TestHealth(t *testing.T) {
	resp, body := get(t, testServer(t), "/health", nil)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["schemas"])
}

func TestListSchemas(t *testing.T) {
	resp, body := get(t, testServer(t), "/v1/schemas", nil)

	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	schemas := body["schemas"].([]any)
	first := schemas[0].(map[string]any)
	assert.Equal(t, "users", first["resource"])
	assert.Equal(t, []any{"age", "createdAt", "deletedAt", "name", "status"}, first["fields"])
}

func TestGetSchema(t *testing.T) {
	srv := testServer(t)

	resp, body := get(t, srv, "/v1/schemas/users", nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "users", body["resource"])
	assert.Equal(t, "1", body["version"])

	status := body["fields"].(map[string]any)["status"].(map[string]any)
	assert.Equal(t, "enum", status["type"])
	assert.Equal(t, []any{"active", "disabled"}, status["enumValues"])

	resp, body = get(t, srv, "/v1/schemas/ghost", nil)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "UNKNOWN_RESOURCE", body["code"])
	assert.NotEmpty(t, body["request_id"])
}

// =============================================================================
// Validate Endpoint Tests
// =============================================================================

func TestValidateEndpoint(t *testing.T) {
	srv := testServer(t)

	t.Run("valid filter", func(t *testing.T) {
		resp, body := get(t, srv, "/v1/filters/users/validate", url.Values{"filter": {"status:eq:active"}})
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, true, body["valid"])
		assert.Equal(t, []any{}, body["errors"])
	})

	t.Run("invalid filter returns problem document", func(t *testing.T) {
		resp, body := get(t, srv, "/v1/filters/users/validate", url.Values{
			"filter": {`{"ghost":{"eq":1},"status":{"eq":"archived"}}`},
		})
		assert.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, validation.ProblemContentType, resp.Header.Get("Content-Type"))
		assert.Equal(t, validation.ProblemTypeInvalidFilter, body["type"])
		assert.Equal(t, "2 filters failed validation", body["detail"])
		assert.Equal(t, "/v1/filters/users/validate", body["instance"])

		errs := body["errors"].([]any)
		require.Len(t, errs, 2)
		assert.Equal(t, "UNKNOWN_FIELD", errs[0].(map[string]any)["code"])
		assert.Equal(t, "INVALID_ENUM", errs[1].(map[string]any)["code"])
	})

	t.Run("malformed filter", func(t *testing.T) {
		resp, body := get(t, srv, "/v1/filters/users/validate", url.Values{"filter": {"status:eq"}})
		assert.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, "Malformed filter", body["title"])

		errs := body["errors"].([]any)
		require.Len(t, errs, 1)
		assert.Equal(t, "INVALID_FORMAT", errs[0].(map[string]any)["code"])
		assert.Equal(t, "status:eq", errs[0].(map[string]any)["value"])
	})

	t.Run("too many filters", func(t *testing.T) {
		params := url.Values{}
		for i := 0; i < 6; i++ {
			params.Add("filter", "name:eq:x")
		}
		resp, body := get(t, srv, "/v1/filters/users/validate", params)
		assert.Equal(t, 400, resp.StatusCode)
		assert.Contains(t, body["detail"], "too many filters")
	})

	t.Run("unknown resource", func(t *testing.T) {
		resp, _ := get(t, srv, "/v1/filters/ghost/validate", nil)
		assert.Equal(t, 404, resp.StatusCode)
	})
}

// =============================================================================
// Compile Endpoint Tests
// =============================================================================

func TestCompileEndpoint_Get(t *testing.T) {
	srv := testServer(t)

	resp, body := get(t, srv, "/v1/filters/users/compile", url.Values{
		"filter": {"age:gte:18"},
		"sort":   {"-createdAt"},
		"limit":  {"500"},
	})
	require.Equal(t, 200, resp.StatusCode, body)

	assert.Equal(t, "users", body["resource"])
	assert.Equal(t, "age >= $1", body["sql"])
	assert.Equal(t, "WHERE age >= $1", body["where"])
	assert.Equal(t, []any{float64(18)}, body["params"])
	assert.Equal(t, []any{map[string]any{"field": "createdAt", "desc": true}}, body["sort"])
	assert.Equal(t, float64(100), body["limit"])
}

func TestCompileEndpoint_Post(t *testing.T) {
	srv := testServer(t)

	resp, body := post(t, srv, "/v1/filters/users/compile",
		`{"filter":{"status":{"in":["active","disabled"]},"deletedAt":{"isNull":null}},"logic":"or"}`)
	require.Equal(t, 200, resp.StatusCode, body)

	assert.Equal(t, "status = ANY($1) OR deleted_at IS NULL", body["sql"])
	assert.Equal(t, []any{[]any{"active", "disabled"}}, body["params"])
}

func TestCompileEndpoint_CoercesValues(t *testing.T) {
	resp, body := post(t, testServer(t), "/v1/filters/users/compile",
		`{"filter":["createdAt:gte:2024-01-01","name:contains:bob"]}`)
	require.Equal(t, 200, resp.StatusCode, body)

	assert.Equal(t, "created_at >= $1 AND name ILIKE $2", body["sql"])
	assert.Equal(t, []any{"2024-01-01T00:00:00.000Z", "%bob%"}, body["params"])
}

func TestCompileEndpoint_Placeholder(t *testing.T) {
	resp, body := get(t, testServer(t), "/v1/filters/users/compile", url.Values{
		"filter":      {`{"name":{"eq":"a"},"age":{"lt":3}}`},
		"placeholder": {"question"},
	})
	require.Equal(t, 200, resp.StatusCode, body)
	assert.Equal(t, "name = ? AND age < ?", body["sql"])
}

func TestCompileEndpoint_Empty(t *testing.T) {
	resp, body := post(t, testServer(t), "/v1/filters/users/compile", `{}`)
	require.Equal(t, 200, resp.StatusCode, body)

	assert.Equal(t, "", body["sql"])
	assert.Equal(t, "", body["where"])
	assert.Equal(t, []any{}, body["params"])
}

func TestCompileEndpoint_Errors(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"invalid logic", `{"filter":"name:eq:a","logic":"xor"}`, 400, "INVALID_LOGIC"},
		{"invalid placeholder", `{"filter":"name:eq:a","placeholder":"percent"}`, 400, "INVALID_PLACEHOLDER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := post(t, srv, "/v1/filters/users/compile", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body["code"])
		})
	}

	t.Run("invalid value type is a problem", func(t *testing.T) {
		resp, body := post(t, srv, "/v1/filters/users/compile", `{"filter":{"age":{"gt":"old"}}}`)
		assert.Equal(t, 400, resp.StatusCode)
		errs := body["errors"].([]any)
		assert.Equal(t, "INVALID_TYPE", errs[0].(map[string]any)["code"])
	})

	t.Run("non-JSON body", func(t *testing.T) {
		resp, body := post(t, srv, "/v1/filters/users/compile", `not json`)
		assert.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, "Malformed filter", body["title"])
	})

	t.Run("invalid limit", func(t *testing.T) {
		resp, body := get(t, srv, "/v1/filters/users/compile", url.Values{"limit": {"-1"}})
		assert.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, "INVALID_QUERY", body["code"])
	})
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)

	get(t, srv, "/v1/filters/users/compile", url.Values{"filter": {"age:gt:1"}})
	get(t, srv, "/v1/filters/users/validate", url.Values{"filter": {"ghost:eq:1"}})

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	assert.Contains(t, text, `fluxfilter_filter_compiles_total{resource="users",status="success"} 1`)
	assert.Contains(t, text, `fluxfilter_filter_validation_errors_total{code="UNKNOWN_FIELD",resource="users"} 1`)
	assert.Contains(t, text, "fluxfilter_schemas_loaded 1")
	assert.Contains(t, text, "go_goroutines")
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	srv := NewServer(cfg, schema.NewRegistry(), nil)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestRateLimitedFilters(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, Backend: "memory", Max: 2, Window: time.Minute}

	store := ratelimit.NewMemoryStore(time.Minute)
	srv := testServerWithLimiter(t, cfg, store)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	query := url.Values{"filter": {"age:gt:1"}}
	for i := 0; i < 2; i++ {
		resp, _ := get(t, srv, "/v1/filters/users/compile", query)
		assert.Equal(t, 200, resp.StatusCode)
	}

	resp, body := get(t, srv, "/v1/filters/users/validate", query)
	assert.Equal(t, 429, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", body["code"])
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))

	// Schema listing is not limited
	resp, _ = get(t, srv, "/v1/schemas/users", nil)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	metrics, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(metrics), `fluxfilter_rate_limit_hits_total{backend="memory",resource="users"} 1`)
}

// =============================================================================
// customErrorHandler Tests
// =============================================================================

func TestCustomErrorHandler(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		expectedCode  int
		expectedError string
	}{
		{
			name:          "generic error returns 500",
			err:           errors.New("something went wrong"),
			expectedCode:  500,
			expectedError: "Internal Server Error",
		},
		{
			name:          "fiber 400 error",
			err:           fiber.NewError(fiber.StatusBadRequest, "Invalid request"),
			expectedCode:  400,
			expectedError: "Invalid request",
		},
		{
			name:          "fiber 413 error",
			err:           fiber.NewError(fiber.StatusRequestEntityTooLarge, "Request Entity Too Large"),
			expectedCode:  413,
			expectedError: "Request Entity Too Large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{
				ErrorHandler: customErrorHandler,
			})

			app.Get("/test", func(c *fiber.Ctx) error {
				return tt.err
			})

			resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedCode, resp.StatusCode)

			body, _ := io.ReadAll(resp.Body)
			var result map[string]interface{}
			require.NoError(t, json.Unmarshal(body, &result))

			assert.Equal(t, tt.expectedError, result["error"])
			assert.Equal(t, float64(tt.expectedCode), result["code"])
		})
	}
}

func TestGetRequestID(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(getRequestID(c))
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "abc-123", string(body))
}
