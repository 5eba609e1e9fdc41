package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore keeps counters in a PostgreSQL table so that every instance
// pointed at the same database shares one quota. Increments are a single
// upsert.
type PostgresStore struct {
	pool    *pgxpool.Pool
	table   string
	ownPool bool
}

// NewPostgresStore uses an existing pool. Close leaves the pool open.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, table: pgx.Identifier{"fluxfilter_rate_limits"}.Sanitize()}
}

// ConnectPostgresStore opens a pool for databaseURL and creates the counter
// table if it is missing.
func ConnectPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewPostgresStore(pool)
	store.ownPool = true
	if err := store.EnsureTable(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create rate limit table: %w", err)
	}
	return store, nil
}

// Get returns the count and window end for key.
func (s *PostgresStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	var count int64
	var expiresAt time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT count, expires_at FROM `+s.table+` WHERE key = $1 AND expires_at > NOW()`,
		key,
	).Scan(&count, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}

	return count, expiresAt, nil
}

// Increment adds one to key, restarting the window when it has expired.
func (s *PostgresStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	var count int64
	var expiresAt time.Time

	err := s.pool.QueryRow(ctx, `
		INSERT INTO `+s.table+` AS rl (key, count, expires_at)
		VALUES ($1, 1, NOW() + $2::interval)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE WHEN rl.expires_at <= NOW() THEN 1 ELSE rl.count + 1 END,
			expires_at = CASE WHEN rl.expires_at <= NOW() THEN EXCLUDED.expires_at ELSE rl.expires_at END
		RETURNING count, expires_at
	`, key, window).Scan(&count, &expiresAt)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to increment rate limit counter")
		return 0, time.Time{}, err
	}

	return count, expiresAt, nil
}

// Reset deletes the counter for key.
func (s *PostgresStore) Reset(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE key = $1`, key)
	return err
}

// Close closes the pool when the store opened it.
func (s *PostgresStore) Close() error {
	if s.ownPool {
		s.pool.Close()
	}
	return nil
}

// Cleanup deletes expired counters and returns how many were removed.
func (s *PostgresStore) Cleanup(ctx context.Context) (int64, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// EnsureTable creates the counter table and its expiry index.
func (s *PostgresStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			key TEXT PRIMARY KEY,
			count BIGINT NOT NULL DEFAULT 1,
			expires_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS fluxfilter_rate_limits_expires_at_idx
		ON `+s.table+` (expires_at);
	`)
	return err
}
