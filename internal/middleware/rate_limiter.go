package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/fluxfilter/internal/ratelimit"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	Store   ratelimit.Store
	Max     int                     // Maximum number of requests per window
	Window  time.Duration           // Length of the fixed window
	KeyFunc func(*fiber.Ctx) string // Identifies the client; defaults to the IP
	Message string                  // Custom error message
	OnLimit func(*fiber.Ctx)        // Called for every rejected request
}

// NewRateLimiter limits each client to Max requests per Window. When the
// store fails the request is let through.
func NewRateLimiter(config RateLimiterConfig) fiber.Handler {
	if config.KeyFunc == nil {
		config.KeyFunc = func(c *fiber.Ctx) string {
			return "filters:" + c.IP()
		}
	}

	if config.Message == "" {
		config.Message = fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %s allowed.",
			config.Max, config.Window.String())
	}

	limit := int64(config.Max)

	return func(c *fiber.Ctx) error {
		key := config.KeyFunc(c)

		result, err := ratelimit.Check(c.UserContext(), config.Store, key, limit, config.Window)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Rate limit check failed, allowing request")
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if result.Allowed {
			return c.Next()
		}

		retryAfter := int(result.RetryAfter(time.Now()).Seconds())
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))

		if config.OnLimit != nil {
			config.OnLimit(c)
		}

		log.Debug().Str("key", key).Int64("limit", result.Limit).Msg("Rate limit exceeded")

		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       "Rate limit exceeded",
			"code":        "RATE_LIMITED",
			"message":     config.Message,
			"retry_after": retryAfter,
		})
	}
}
