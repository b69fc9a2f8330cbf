package middleware

import (
	"fmt"
	"strconv"
	"time"

	redisStore "payment-reconciler/internal/adapter/storage/redis"
	"payment-reconciler/pkg/apperror"
	"payment-reconciler/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// Endpoint groups with their own counters.
const (
	GroupPayments      = "payments"
	GroupStatus        = "status"
	GroupNotifications = "notifications"
	GroupAdmin         = "admin"
)

// DefaultRateLimitRules returns the per-client limits for each endpoint group.
// Notifications get a generous budget since the gateway retries on failure.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		GroupPayments:      {Limit: 60, Window: time.Minute},
		GroupStatus:        {Limit: 120, Window: time.Minute},
		GroupNotifications: {Limit: 600, Window: time.Minute},
		GroupAdmin:         {Limit: 60, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// If Redis is unavailable the request is allowed.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier keys operators by subject and everyone else by client IP.
func extractIdentifier(c *gin.Context) string {
	if op, ok := Operator(c); ok {
		return "op:" + op
	}
	return c.ClientIP()
}
