// Package ratelimit counts requests per client in fixed windows. Counters
// live in memory for a single instance, or in PostgreSQL or Redis when
// several instances share one quota.
package ratelimit

import (
	"context"
	"time"
)

// Store is a fixed-window counter backend.
type Store interface {
	// Get returns the count and window end for key. A missing or expired key
	// returns a zero count and a zero time.
	Get(ctx context.Context, key string) (int64, time.Time, error)

	// Increment adds one to key, opening a new window of length window when
	// none is active, and returns the new count and the window end.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)

	// Reset deletes the counter for key.
	Reset(ctx context.Context, key string) error

	// Close releases the backend.
	Close() error
}

// Result is the outcome of one Check.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
	Limit     int64
}

// RetryAfter returns the time left in the window, rounded up to a second.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return (d + time.Second - 1).Truncate(time.Second)
}

// Check counts one request for key and reports whether it fits in limit.
func Check(ctx context.Context, store Store, key string, limit int64, window time.Duration) (*Result, error) {
	count, resetAt, err := store.Increment(ctx, key, window)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Allowed:   count <= limit,
		Remaining: limit - count,
		Limit:     limit,
		ResetAt:   resetAt,
	}
	if result.Remaining < 0 {
		result.Remaining = 0
	}

	return result, nil
}
