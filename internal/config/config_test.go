package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/fluxfilter/internal/compiler"
	"github.com/fluxbase-eu/fluxfilter/internal/query"
)

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  ServerConfig
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			config: ServerConfig{
				Address:      ":8080",
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  60 * time.Second,
				BodyLimit:    1024 * 1024,
			},
			wantErr: false,
		},
		{
			name: "empty address",
			config: ServerConfig{
				Address:      "",
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  60 * time.Second,
				BodyLimit:    1024 * 1024,
			},
			wantErr: true,
			errMsg:  "server address cannot be empty",
		},
		{
			name: "zero read timeout",
			config: ServerConfig{
				Address:      ":8080",
				ReadTimeout:  0,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  60 * time.Second,
				BodyLimit:    1024 * 1024,
			},
			wantErr: true,
			errMsg:  "read_timeout must be positive",
		},
		{
			name: "negative write timeout",
			config: ServerConfig{
				Address:      ":8080",
				ReadTimeout:  30 * time.Second,
				WriteTimeout: -1 * time.Second,
				IdleTimeout:  60 * time.Second,
				BodyLimit:    1024 * 1024,
			},
			wantErr: true,
			errMsg:  "write_timeout must be positive",
		},
		{
			name: "zero idle timeout",
			config: ServerConfig{
				Address:      ":8080",
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  0,
				BodyLimit:    1024 * 1024,
			},
			wantErr: true,
			errMsg:  "idle_timeout must be positive",
		},
		{
			name: "zero body limit",
			config: ServerConfig{
				Address:      ":8080",
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  60 * time.Second,
				BodyLimit:    0,
			},
			wantErr: true,
			errMsg:  "body_limit must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func validFilterConfig() FilterConfig {
	return FilterConfig{
		MaxFilters:       50,
		MaxInValues:      500,
		DefaultLogic:     "and",
		PlaceholderStyle: "dollar",
		MaxPageSize:      1000,
	}
}

func TestFilterConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*FilterConfig)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			modify:  func(fc *FilterConfig) {},
			wantErr: false,
		},
		{
			name:    "or logic",
			modify:  func(fc *FilterConfig) { fc.DefaultLogic = "OR" },
			wantErr: false,
		},
		{
			name:    "empty placeholder style defaults to dollar",
			modify:  func(fc *FilterConfig) { fc.PlaceholderStyle = "" },
			wantErr: false,
		},
		{
			name:    "zero max filters",
			modify:  func(fc *FilterConfig) { fc.MaxFilters = 0 },
			wantErr: true,
			errMsg:  "max_filters must be positive",
		},
		{
			name:    "zero max in values",
			modify:  func(fc *FilterConfig) { fc.MaxInValues = 0 },
			wantErr: true,
			errMsg:  "max_in_values must be positive",
		},
		{
			name:    "invalid logic",
			modify:  func(fc *FilterConfig) { fc.DefaultLogic = "xor" },
			wantErr: true,
			errMsg:  "default_logic",
		},
		{
			name:    "invalid placeholder style",
			modify:  func(fc *FilterConfig) { fc.PlaceholderStyle = "percent" },
			wantErr: true,
			errMsg:  "placeholder_style",
		},
		{
			name:    "negative page size",
			modify:  func(fc *FilterConfig) { fc.DefaultPageSize = -1 },
			wantErr: true,
			errMsg:  "page sizes cannot be negative",
		},
		{
			name:    "default page size above max",
			modify:  func(fc *FilterConfig) { fc.DefaultPageSize = 2000 },
			wantErr: true,
			errMsg:  "cannot exceed max_page_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := validFilterConfig()
			tt.modify(&fc)
			err := fc.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestFilterConfig_Options(t *testing.T) {
	fc := FilterConfig{
		MaxFilters:       10,
		MaxInValues:      20,
		DefaultLogic:     "or",
		QuoteIdentifiers: true,
		PlaceholderStyle: "question",
		VerifySQL:        true,
		DefaultPageSize:  25,
		MaxPageSize:      100,
	}

	assert.Equal(t, query.ParseOptions{MaxFilters: 10, MaxInValues: 20, DefaultPageSize: 25, MaxPageSize: 100}, fc.ParseOptions())
	assert.Equal(t, compiler.Options{
		Logic:            compiler.LogicOr,
		QuoteIdentifiers: true,
		Placeholder:      compiler.PlaceholderQuestion,
		Verify:           true,
	}, fc.CompileOptions())
}

func TestTracingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  TracingConfig
		wantErr bool
		errMsg  string
	}{
		{
			name: "disabled tracing doesn't validate",
			config: TracingConfig{
				Enabled: false,
			},
			wantErr: false,
		},
		{
			name: "valid enabled config",
			config: TracingConfig{
				Enabled:    true,
				Endpoint:   "localhost:4317",
				SampleRate: 0.5,
			},
			wantErr: false,
		},
		{
			name: "enabled without endpoint",
			config: TracingConfig{
				Enabled:  true,
				Endpoint: "",
			},
			wantErr: true,
			errMsg:  "tracing endpoint is required",
		},
		{
			name: "sample rate too low",
			config: TracingConfig{
				Enabled:    true,
				Endpoint:   "localhost:4317",
				SampleRate: -0.1,
			},
			wantErr: true,
			errMsg:  "sample_rate must be between 0.0 and 1.0",
		},
		{
			name: "sample rate too high",
			config: TracingConfig{
				Enabled:    true,
				Endpoint:   "localhost:4317",
				SampleRate: 1.5,
			},
			wantErr: true,
			errMsg:  "sample_rate must be between 0.0 and 1.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RateLimitConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:    "disabled rate limit doesn't validate",
			config:  RateLimitConfig{Enabled: false, Backend: "memcached"},
			wantErr: false,
		},
		{
			name:    "valid memory config",
			config:  RateLimitConfig{Enabled: true, Backend: "memory", Max: 10, Window: time.Minute},
			wantErr: false,
		},
		{
			name:    "non-positive max",
			config:  RateLimitConfig{Enabled: true, Backend: "memory", Max: 0, Window: time.Minute},
			wantErr: true,
			errMsg:  "max must be positive",
		},
		{
			name:    "non-positive window",
			config:  RateLimitConfig{Enabled: true, Backend: "memory", Max: 10},
			wantErr: true,
			errMsg:  "window must be positive",
		},
		{
			name:    "postgres without url",
			config:  RateLimitConfig{Enabled: true, Backend: "postgres", Max: 10, Window: time.Minute},
			wantErr: true,
			errMsg:  "postgres_url is required",
		},
		{
			name:    "redis without url",
			config:  RateLimitConfig{Enabled: true, Backend: "redis", Max: 10, Window: time.Minute},
			wantErr: true,
			errMsg:  "redis_url is required",
		},
		{
			name:    "unknown backend",
			config:  RateLimitConfig{Enabled: true, Backend: "memcached", Max: 10, Window: time.Minute},
			wantErr: true,
			errMsg:  "unknown backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// =============================================================================
// Load Tests
// =============================================================================

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 50, cfg.Filters.MaxFilters)
	assert.Equal(t, 500, cfg.Filters.MaxInValues)
	assert.Equal(t, "and", cfg.Filters.DefaultLogic)
	assert.Equal(t, "dollar", cfg.Filters.PlaceholderStyle)
	assert.Equal(t, "./schemas", cfg.Schemas.Dir)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "fluxfilter", cfg.Tracing.ServiceName)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Debug)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fluxfilter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9090"
filters:
  max_filters: 5
  default_logic: or
  placeholder_style: question
schemas:
  dir: /srv/schemas
log:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 5, cfg.Filters.MaxFilters)
	assert.Equal(t, 500, cfg.Filters.MaxInValues, "unset keys keep defaults")
	assert.Equal(t, "or", cfg.Filters.DefaultLogic)
	assert.Equal(t, "question", cfg.Filters.PlaceholderStyle)
	assert.Equal(t, "/srv/schemas", cfg.Schemas.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FLUXFILTER_FILTERS_MAX_FILTERS", "7")
	t.Setenv("FLUXFILTER_SCHEMAS_DIR", "/tmp/schemas")
	t.Setenv("FLUXFILTER_DEBUG", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Filters.MaxFilters)
	assert.Equal(t, "/tmp/schemas", cfg.Schemas.Dir)
	assert.True(t, cfg.Debug)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fluxfilter.yaml")
		require.NoError(t, os.WriteFile(path, []byte("filters:\n  default_logic: xor\n"), 0o600))

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("invalid log level", func(t *testing.T) {
		t.Setenv("FLUXFILTER_LOG_LEVEL", "loud")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}
