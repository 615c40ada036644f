package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/linkguard/internal/application/dto"
	"github.com/turtacn/linkguard/internal/domain/service"
	"github.com/turtacn/linkguard/pkg/constants"
	"github.com/turtacn/linkguard/pkg/errors"
	"github.com/turtacn/linkguard/pkg/logger"
)

// extractBearer extracts the token from the Authorization header.
func extractBearer(authHeader string) string {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// RequireAuth verifies the bearer token and rejects revoked ones. A revoked token
// gets the same 401 as an invalid one. Verified tokens are registered for their user.
func RequireAuth(verifier service.TokenVerifier, registry service.TokenRegistry, log logger.Logger) gin.HandlerFunc {
	log = log.WithComponent("auth_middleware")

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		token := extractBearer(c.GetHeader(constants.HeaderAuthorization))
		if token == "" {
			dto.SendError(c, errors.ErrUnauthorized)
			return
		}

		claims, err := verifier.Verify(ctx, token)
		if err != nil {
			dto.SendError(c, errors.ErrUnauthorized)
			return
		}

		if registry.IsBlacklisted(ctx, token) {
			log.Info(ctx, "Rejected revoked token", logger.String("user_id", claims.UserID))
			dto.SendError(c, errors.ErrUnauthorized)
			return
		}

		registry.RegisterToken(ctx, claims.UserID, token, claims.ExpiresAt)

		c.Set(string(constants.ContextKeyUserID), claims.UserID)
		c.Set(string(constants.ContextKeyToken), token)
		c.Set(string(constants.ContextKeyTokenExpiresAt), claims.ExpiresAt)
		c.Next()
	}
}

// UserID returns the authenticated user of the request, or "".
func UserID(c *gin.Context) string {
	return c.GetString(string(constants.ContextKeyUserID))
}

// Token returns the verified bearer token of the request, or "".
func Token(c *gin.Context) string {
	return c.GetString(string(constants.ContextKeyToken))
}

// TokenExpiresAt returns the expiry of the verified bearer token.
func TokenExpiresAt(c *gin.Context) time.Time {
	return c.GetTime(string(constants.ContextKeyTokenExpiresAt))
}
