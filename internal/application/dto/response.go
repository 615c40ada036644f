// Package dto holds the JSON bodies exchanged by the gateway's own endpoints.
package dto

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/linkguard/pkg/constants"
	"github.com/turtacn/linkguard/pkg/errors"
)

// APIResponse is the envelope of every gateway response.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorDTO   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ErrorDTO describes a failed request.
type ErrorDTO struct {
	Code        string `json:"code"`
	Message     string `json:"message,omitempty"`
	Description string `json:"description,omitempty"`
}

// SessionCountResponse reports the caller's registered sessions.
type SessionCountResponse struct {
	UserID         string `json:"user_id"`
	ActiveSessions int64  `json:"active_sessions"`
}

// SuccessResponse wraps data in a successful envelope.
func SuccessResponse(data interface{}, requestID string) *APIResponse {
	return &APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}

// ErrorResponse converts err into an error envelope. Foreign errors are reported
// as internal errors without their message.
func ErrorResponse(err error, requestID string) *APIResponse {
	errorDTO := &ErrorDTO{
		Code:        string(errors.CodeInternal),
		Description: errors.ErrInternal.Description(),
	}
	var appErr errors.AppError
	if errors.As(err, &appErr) {
		errorDTO = &ErrorDTO{
			Code:        string(appErr.Code()),
			Description: appErr.Description(),
		}
		if appErr.Code() == errors.CodeInvalidRequest || appErr.Code() == errors.CodeRateLimitExceeded {
			errorDTO.Message = appErr.Error()
		}
	}
	return &APIResponse{
		Success:   false,
		Error:     errorDTO,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}

// SendSuccess writes data in a success envelope.
func SendSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse(data, c.GetString(string(constants.ContextKeyRequestID))))
}

// SendError writes the error envelope with the status carried by err and aborts the chain.
func SendError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errors.HTTPStatus(err), ErrorResponse(err, c.GetString(string(constants.ContextKeyRequestID))))
}
