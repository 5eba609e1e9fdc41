package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/fluxfilter/internal/config"
)

// NewStore creates the counter backend named by cfg.Backend:
// "memory" (or empty) for a single instance, "postgres" or "redis" for a
// quota shared between instances.
func NewStore(ctx context.Context, cfg config.RateLimitConfig) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		log.Info().Msg("Using in-memory rate limit store (single instance mode)")
		return NewMemoryStore(10 * time.Minute), nil

	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres_url is required for postgres rate limit backend")
		}
		store, err := ConnectPostgresStore(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		log.Info().Msg("Using PostgreSQL rate limit store (multi-instance mode)")
		return store, nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis rate limit backend")
		}
		store, err := NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info().Msg("Using Redis rate limit store (multi-instance mode)")
		return store, nil

	default:
		return nil, fmt.Errorf("unknown rate limit backend: %s (valid options: memory, postgres, redis)", cfg.Backend)
	}
}

// BackendName returns the label used for store in logs and metrics.
func BackendName(store Store) string {
	switch store.(type) {
	case *MemoryStore:
		return "memory"
	case *PostgresStore:
		return "postgres"
	case *RedisStore:
		return "redis"
	default:
		return "custom"
	}
}
