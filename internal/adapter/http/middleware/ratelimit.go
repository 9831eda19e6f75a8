package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redisStore "agent-wallet-bridge/internal/adapter/storage/redis"
	"agent-wallet-bridge/pkg/apperror"
	"agent-wallet-bridge/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Route groups with their own counters.
const (
	GroupAuth       = "auth_token"
	GroupTasks      = "tasks"
	GroupWallets    = "wallets"
	GroupAdjust     = "wallets_adjust"
	GroupRequests   = "requests"
	GroupModeration = "moderation"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// Limiter is the counter backing RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*redisStore.RateLimitResult, error)
}

// DefaultRateLimitRules returns the per-group limits.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return RateLimitRules(RateLimitRule{Limit: 120, Window: time.Minute})
}

// RateLimitRules derives every group's limit from the configured base rule.
// Token issuance and manual adjustments get a tighter share.
func RateLimitRules(base RateLimitRule) map[string]RateLimitRule {
	if base.Limit <= 0 {
		base.Limit = 120
	}
	if base.Window <= 0 {
		base.Window = time.Minute
	}
	fraction := func(div int64) RateLimitRule {
		limit := base.Limit / div
		if limit < 1 {
			limit = 1
		}
		return RateLimitRule{Limit: limit, Window: base.Window}
	}
	return map[string]RateLimitRule{
		GroupAuth:       fraction(12),
		GroupTasks:      fraction(2),
		GroupWallets:    base,
		GroupAdjust:     fraction(6),
		GroupRequests:   fraction(4),
		GroupModeration: base,
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
func RateLimiter(store Limiter, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request")
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

// extractIdentifier keys authenticated traffic by client and the rest by IP.
func extractIdentifier(c *gin.Context) string {
	if clientID := ClientID(c); clientID != "" {
		return "client:" + clientID
	}
	return "ip:" + c.ClientIP()
}
