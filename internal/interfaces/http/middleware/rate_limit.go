package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/linkguard/internal/application/dto"
	"github.com/turtacn/linkguard/internal/domain/models"
	"github.com/turtacn/linkguard/internal/domain/service"
	"github.com/turtacn/linkguard/pkg/constants"
	"github.com/turtacn/linkguard/pkg/errors"
	"github.com/turtacn/linkguard/pkg/logger"
)

// IdentityFunc derives the rate limit identity of a request.
type IdentityFunc func(c *gin.Context) string

// ClientRouteIdentity hashes the client address together with the matched route.
// The client address honors only the engine's trusted proxies.
func ClientRouteIdentity(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	return HashClientRoute(c.ClientIP(), route)
}

// HashClientRoute is the identity ClientRouteIdentity derives for ip and route.
func HashClientRoute(ip, route string) string {
	sum := sha256.Sum256([]byte(ip + "|" + route))
	return hex.EncodeToString(sum[:])
}

// UserOrClientIdentity keys authenticated requests by user and falls back to
// ClientRouteIdentity otherwise.
func UserOrClientIdentity(c *gin.Context) string {
	if userID := c.GetString(string(constants.ContextKeyUserID)); userID != "" {
		return "user-" + userID
	}
	return ClientRouteIdentity(c)
}

// RateLimit admits or rejects requests under policy. Rejections get 429 with
// Retry-After; every response carries the quota headers.
func RateLimit(limiter service.RateLimiter, policy models.RateLimitPolicy, identity IdentityFunc, log logger.Logger) gin.HandlerFunc {
	if identity == nil {
		identity = ClientRouteIdentity
	}
	log = log.WithComponent("rate_limit_middleware")

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		decision := limiter.Check(ctx, identity(c), policy)

		h := c.Writer.Header()
		h.Set(constants.HeaderRateLimitLimit, strconv.FormatInt(decision.Limit, 10))
		h.Set(constants.HeaderRateLimitRemaining, strconv.FormatInt(decision.Remaining, 10))
		h.Set(constants.HeaderRateLimitReset, strconv.FormatInt(decision.ResetAtEpochSeconds(), 10))

		if !decision.Allowed {
			h.Set(constants.HeaderRetryAfter, strconv.FormatInt(decision.RetryAfterSeconds(), 10))
			log.Info(ctx, "Rate limit exceeded",
				logger.String("policy", policy.Name),
				logger.String("route", c.FullPath()),
				logger.Int64("retry_after_seconds", decision.RetryAfterSeconds()),
			)
			dto.SendError(c, errors.ErrRateLimitExceeded(policy.Name, decision.Limit))
			return
		}
		c.Next()
	}
}
