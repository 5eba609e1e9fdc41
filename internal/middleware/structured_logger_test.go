package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// DefaultStructuredLoggerConfig Tests
// =============================================================================

func TestDefaultStructuredLoggerConfig(t *testing.T) {
	cfg := DefaultStructuredLoggerConfig()

	assert.Equal(t, []string{"/health", "/metrics"}, cfg.SkipPaths)
	assert.False(t, cfg.SkipSuccessfulRequests)
	assert.Nil(t, cfg.Logger)
	assert.False(t, cfg.LogRequestBody)
	assert.Equal(t, 250*time.Millisecond, cfg.SlowRequestThreshold)
}

// =============================================================================
// redactQueryString Tests
// =============================================================================

func TestRedactQueryString(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    []string
		notExpected []string
	}{
		{
			name:     "filter params are kept",
			input:    "filter=age%3Agte%3A18&limit=10",
			expected: []string{"filter=age%3Agte%3A18", "limit=10"},
		},
		{
			name:        "redacts token",
			input:       "token=secret123&filter=x",
			expected:    []string{"token=%5Bredacted%5D", "filter=x"},
			notExpected: []string{"secret123"},
		},
		{
			name:        "case insensitive",
			input:       "Api_Key=mixedcase",
			expected:    []string{"%5Bredacted%5D"},
			notExpected: []string{"mixedcase"},
		},
		{
			name:     "invalid query string returns redacted",
			input:    "invalid=%zz",
			expected: []string{"[redacted]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := redactQueryString(tt.input)
			for _, exp := range tt.expected {
				assert.Contains(t, result, exp)
			}
			for _, notExp := range tt.notExpected {
				assert.NotContains(t, result, notExp)
			}
		})
	}

	assert.Equal(t, "", redactQueryString(""))
}

func TestToString(t *testing.T) {
	assert.Equal(t, "", toString(nil))
	assert.Equal(t, "hello", toString("hello"))
	assert.Equal(t, "", toString(42))
}

// =============================================================================
// StructuredLogger Tests
// =============================================================================

func newLoggedApp(buf *bytes.Buffer, cfg StructuredLoggerConfig) *fiber.App {
	logger := zerolog.New(buf)
	cfg.Logger = &logger

	app := fiber.New()
	app.Use(requestid.New())
	app.Use(StructuredLogger(cfg))
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/v1/filters/:resource/compile", func(c *fiber.Ctx) error {
		c.Locals(LocalResource, c.Params("resource"))
		c.Locals(LocalFilterCount, 2)
		return c.SendString("compiled")
	})
	app.Get("/bad", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusBadRequest, "malformed filter")
	})
	return app
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestStructuredLogger_LogsFilterContext(t *testing.T) {
	var buf bytes.Buffer
	app := newLoggedApp(&buf, DefaultStructuredLoggerConfig())

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/filters/users/compile?filter=age:gt:1&token=abc", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "HTTP request", entry["message"])
	assert.Equal(t, "users", entry["resource"])
	assert.Equal(t, float64(2), entry["filters"])
	assert.Equal(t, float64(200), entry["status"])
	assert.NotEmpty(t, entry["request_id"])
	assert.NotContains(t, entry["query"], "abc")
}

func TestStructuredLogger_SkipsPaths(t *testing.T) {
	var buf bytes.Buffer
	app := newLoggedApp(&buf, DefaultStructuredLoggerConfig())

	_, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestStructuredLogger_ClientErrorIsWarn(t *testing.T) {
	var buf bytes.Buffer
	app := newLoggedApp(&buf, DefaultStructuredLoggerConfig())

	resp, err := app.Test(httptest.NewRequest("GET", "/bad", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, float64(400), entries[0]["status"])
	assert.Equal(t, "malformed filter", entries[0]["error"])
}

func TestStructuredLogger_SkipSuccessful(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultStructuredLoggerConfig()
	cfg.SkipSuccessfulRequests = true
	app := newLoggedApp(&buf, cfg)

	_, err := app.Test(httptest.NewRequest("GET", "/v1/filters/users/compile", nil))
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestStructuredLogger_TraceID(t *testing.T) {
	withRecorder(t)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	app := fiber.New()
	app.Use(TracingMiddleware(DefaultTracingConfig()))
	app.Use(StructuredLogger(StructuredLoggerConfig{Logger: &logger}))
	app.Get("/v1/schemas", func(c *fiber.Ctx) error {
		return c.SendString("[]")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/schemas", nil))
	require.NoError(t, err)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, resp.Header.Get("X-Trace-ID"), entries[0]["trace_id"])
	assert.NotEmpty(t, entries[0]["trace_id"])
}
