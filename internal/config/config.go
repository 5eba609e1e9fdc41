package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/fluxfilter/internal/compiler"
	"github.com/fluxbase-eu/fluxfilter/internal/query"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Filters   FilterConfig    `mapstructure:"filters"`
	Schemas   SchemaConfig    `mapstructure:"schemas"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
	Debug     bool            `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`
}

// FilterConfig contains parser limits and compiler defaults
type FilterConfig struct {
	MaxFilters       int    `mapstructure:"max_filters"`
	MaxInValues      int    `mapstructure:"max_in_values"`
	DefaultLogic     string `mapstructure:"default_logic"`
	QuoteIdentifiers bool   `mapstructure:"quote_identifiers"`
	PlaceholderStyle string `mapstructure:"placeholder_style"` // dollar, question, named, at
	VerifySQL        bool   `mapstructure:"verify_sql"`
	DefaultPageSize  int    `mapstructure:"default_page_size"`
	MaxPageSize      int    `mapstructure:"max_page_size"`
}

// SchemaConfig locates the filter schema documents
type SchemaConfig struct {
	Dir string `mapstructure:"dir"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TracingConfig mirrors observability.TracerConfig so it converts directly
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// RateLimitConfig limits requests to the filter endpoints per client
type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Backend     string        `mapstructure:"backend"` // memory, postgres, redis
	Max         int           `mapstructure:"max"`
	Window      time.Duration `mapstructure:"window"`
	PostgresURL string        `mapstructure:"postgres_url"`
	RedisURL    string        `mapstructure:"redis_url"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads configuration from file and environment variables. An empty
// configFile searches the default locations.
func Load(configFile string) (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("fluxfilter")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/fluxfilter")
	}

	setDefaults(v)

	// Enable environment variable support with underscore replacer
	v.AutomaticEnv()
	v.SetEnvPrefix("FLUXFILTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Debug().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.body_limit", 1024*1024) // 1MB

	// Filter defaults
	v.SetDefault("filters.max_filters", 50)
	v.SetDefault("filters.max_in_values", 500)
	v.SetDefault("filters.default_logic", "and")
	v.SetDefault("filters.quote_identifiers", false)
	v.SetDefault("filters.placeholder_style", "dollar")
	v.SetDefault("filters.verify_sql", false)
	v.SetDefault("filters.default_page_size", 0)
	v.SetDefault("filters.max_page_size", 1000)

	v.SetDefault("schemas.dir", "./schemas")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "fluxfilter")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.max", 100)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.postgres_url", "")
	v.SetDefault("rate_limit.redis_url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}
	if err := c.Filters.Validate(); err != nil {
		return fmt.Errorf("filters configuration error: %w", err)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with '/'")
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing configuration error: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit configuration error: %w", err)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	return nil
}

// Validate validates server configuration
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive, got: %v", sc.ReadTimeout)
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got: %v", sc.WriteTimeout)
	}
	if sc.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got: %v", sc.IdleTimeout)
	}
	if sc.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive, got: %d", sc.BodyLimit)
	}
	return nil
}

// Validate validates filter configuration
func (fc *FilterConfig) Validate() error {
	if fc.MaxFilters <= 0 {
		return fmt.Errorf("max_filters must be positive, got: %d", fc.MaxFilters)
	}
	if fc.MaxInValues <= 0 {
		return fmt.Errorf("max_in_values must be positive, got: %d", fc.MaxInValues)
	}
	if _, err := compiler.ParseLogic(fc.DefaultLogic); err != nil {
		return fmt.Errorf("default_logic: %w", err)
	}
	if _, err := compiler.ParsePlaceholderStyle(fc.PlaceholderStyle); err != nil {
		return fmt.Errorf("placeholder_style: %w", err)
	}
	if fc.DefaultPageSize < 0 || fc.MaxPageSize < 0 {
		return fmt.Errorf("page sizes cannot be negative")
	}
	if fc.MaxPageSize > 0 && fc.DefaultPageSize > fc.MaxPageSize {
		return fmt.Errorf("default_page_size (%d) cannot exceed max_page_size (%d)", fc.DefaultPageSize, fc.MaxPageSize)
	}
	return nil
}

// ParseOptions returns the parser limits.
func (fc *FilterConfig) ParseOptions() query.ParseOptions {
	return query.ParseOptions{
		MaxFilters:      fc.MaxFilters,
		MaxInValues:     fc.MaxInValues,
		DefaultPageSize: fc.DefaultPageSize,
		MaxPageSize:     fc.MaxPageSize,
	}
}

// CompileOptions returns compiler options. Call after Validate.
func (fc *FilterConfig) CompileOptions() compiler.Options {
	logic, _ := compiler.ParseLogic(fc.DefaultLogic)
	style, _ := compiler.ParsePlaceholderStyle(fc.PlaceholderStyle)
	return compiler.Options{
		Logic:            logic,
		QuoteIdentifiers: fc.QuoteIdentifiers,
		Placeholder:      style,
		Verify:           fc.VerifySQL,
	}
}

// Validate validates tracing configuration
func (tc *TracingConfig) Validate() error {
	if !tc.Enabled {
		return nil
	}
	if tc.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	if tc.SampleRate < 0 || tc.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0.0 and 1.0, got: %v", tc.SampleRate)
	}
	return nil
}

// Validate validates rate limit configuration
func (rc *RateLimitConfig) Validate() error {
	if !rc.Enabled {
		return nil
	}
	if rc.Max <= 0 {
		return fmt.Errorf("max must be positive, got: %d", rc.Max)
	}
	if rc.Window <= 0 {
		return fmt.Errorf("window must be positive, got: %v", rc.Window)
	}
	switch rc.Backend {
	case "memory", "":
	case "postgres":
		if rc.PostgresURL == "" {
			return fmt.Errorf("postgres_url is required for the postgres backend")
		}
	case "redis":
		if rc.RedisURL == "" {
			return fmt.Errorf("redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown backend: %s (valid options: memory, postgres, redis)", rc.Backend)
	}
	return nil
}
