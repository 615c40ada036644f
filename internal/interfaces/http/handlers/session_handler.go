package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/linkguard/internal/application/dto"
	"github.com/turtacn/linkguard/internal/domain/service"
	"github.com/turtacn/linkguard/internal/interfaces/http/middleware"
	"github.com/turtacn/linkguard/pkg/errors"
	"github.com/turtacn/linkguard/pkg/logger"
)

// SessionRegistry is the part of the token registry the session endpoints use.
type SessionRegistry interface {
	service.TokenRegistry
	ActiveTokenCount(ctx context.Context, userID string) (int64, error)
}

// SessionHandler serves logout and session management for authenticated users.
type SessionHandler struct {
	registry SessionRegistry
	log      logger.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(registry SessionRegistry, log logger.Logger) *SessionHandler {
	return &SessionHandler{registry: registry, log: log.WithComponent("session_handler")}
}

// Logout godoc
// @Summary      Log out
// @Description  Revokes the presented token, and every other token of the user when configured to.
// @Tags         auth
// @Success      204
// @Failure      401  {object}  dto.APIResponse
// @Router       /api/v1/auth/logout [post]
func (h *SessionHandler) Logout(c *gin.Context) {
	userID := middleware.UserID(c)
	expiresAt := middleware.TokenExpiresAt(c)
	if expiresAt.IsZero() {
		expiresAt = time.Now()
	}
	h.registry.BlacklistToken(c.Request.Context(), middleware.Token(c), userID, expiresAt)
	h.log.Info(c.Request.Context(), "User logged out", logger.String("user_id", userID))
	c.Status(http.StatusNoContent)
}

// RevokeAll godoc
// @Summary      Revoke all sessions
// @Description  Revokes every registered token of the caller, e.g. after a password change.
// @Tags         auth
// @Success      204
// @Router       /api/v1/auth/sessions/revoke-all [post]
func (h *SessionHandler) RevokeAll(c *gin.Context) {
	userID := middleware.UserID(c)
	h.registry.InvalidateAllUserTokens(c.Request.Context(), userID)
	h.log.Info(c.Request.Context(), "All sessions revoked", logger.String("user_id", userID))
	c.Status(http.StatusNoContent)
}

// ForgetCurrent drops the presented token from the caller's session list without revoking it.
func (h *SessionHandler) ForgetCurrent(c *gin.Context) {
	h.registry.RemoveUserToken(c.Request.Context(), middleware.UserID(c), middleware.Token(c))
	c.Status(http.StatusNoContent)
}

// ListSessions reports how many sessions the caller has registered.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID := middleware.UserID(c)
	count, err := h.registry.ActiveTokenCount(c.Request.Context(), userID)
	if err != nil {
		h.log.Warn(c.Request.Context(), "Failed to count sessions", logger.String("user_id", userID), logger.Err(err))
		dto.SendError(c, errors.ErrStoreUnavailable)
		return
	}
	dto.SendSuccess(c, http.StatusOK, dto.SessionCountResponse{UserID: userID, ActiveSessions: count})
}
