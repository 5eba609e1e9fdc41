package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/fluxfilter/internal/api"
	"github.com/fluxbase-eu/fluxfilter/internal/config"
	"github.com/fluxbase-eu/fluxfilter/internal/observability"
	"github.com/fluxbase-eu/fluxfilter/internal/ratelimit"
	"github.com/fluxbase-eu/fluxfilter/internal/schema"
)

var shutdownTimeout time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the filter HTTP API",
	Long: `Load every filter schema in the configured directory and serve the
validate and compile endpoints over HTTP.

Configuration is read from --config, ./fluxfilter.yaml, ./config or /etc/fluxfilter,
with FLUXFILTER_* environment variables taking precedence.

Examples:
  fluxfilter serve
  fluxfilter serve --config fluxfilter.yaml
  FLUXFILTER_SCHEMAS_DIR=/srv/schemas fluxfilter serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second,
		"time allowed for in-flight requests on shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level, _ := zerolog.ParseLevel(cfg.Log.Level)
	if cfg.Debug || debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	observability.ServiceVersion = Version
	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting fluxfilter")

	registry := schema.NewRegistry()
	loaded, err := registry.LoadDir(cfg.Schemas.Dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Str("dir", cfg.Schemas.Dir).Msg("Schema directory not found, serving no resources")
	case err != nil:
		return fmt.Errorf("failed to load filter schemas: %w", err)
	default:
		log.Info().Int("count", loaded).Str("dir", cfg.Schemas.Dir).Msg("Filter schemas loaded")
	}

	var limiter ratelimit.Store
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.NewStore(cmd.Context(), cfg.RateLimit)
		if err != nil {
			return fmt.Errorf("failed to create rate limit store: %w", err)
		}
	}

	server := api.NewServer(cfg, registry, limiter)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Starting fluxfilter server")
		errCh <- server.Start()
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-quit:
	}

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server exited")
	return nil
}
