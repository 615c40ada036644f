// Package errors defines custom error types and error handling utilities for linkguard.
// Errors carry a stable code and an HTTP status so the gateway can translate them
// without inspecting messages.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error code.
type Code string

const (
	CodeInvalidRequest     Code = "invalid_request"
	CodeInvalidPolicy      Code = "invalid_policy"
	CodeInvalidConfig      Code = "invalid_config"
	CodeUnauthorized       Code = "unauthorized"
	CodeNotFound           Code = "not_found"
	CodeRateLimitExceeded  Code = "rate_limit_exceeded"
	CodeStoreUnavailable   Code = "store_unavailable"
	CodeServiceUnavailable Code = "service_unavailable"
	CodeInternal           Code = "internal_error"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// AppError represents a structured error with additional metadata
type AppError interface {
	error

	// Code returns the machine-readable error code
	Code() Code

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause returns a copy carrying cause in its error chain
	WithCause(cause error) AppError

	// WithMetadata returns a copy carrying an additional metadata entry
	WithMetadata(key string, value interface{}) AppError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

type baseError struct {
	code        Code
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *baseError) Code() Code          { return e.code }
func (e *baseError) HTTPStatus() int     { return e.httpStatus }
func (e *baseError) Description() string { return e.description }
func (e *baseError) Unwrap() error       { return e.cause }

// Is matches any AppError with the same code, so sentinel values work with errors.Is.
func (e *baseError) Is(target error) bool {
	var t AppError
	if stderrors.As(target, &t) {
		return t.Code() == e.code
	}
	return false
}

func (e *baseError) clone() *baseError {
	c := *e
	c.metadata = make(map[string]interface{}, len(e.metadata))
	for k, v := range e.metadata {
		c.metadata[k] = v
	}
	return &c
}

// WithCause returns a copy so shared sentinels are never mutated.
func (e *baseError) WithCause(cause error) AppError {
	c := e.clone()
	c.cause = cause
	return c
}

func (e *baseError) WithMetadata(key string, value interface{}) AppError {
	c := e.clone()
	c.metadata[key] = value
	return c
}

func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// NewError creates a new AppError with the specified parameters
func NewError(code Code, httpStatus int, description, message string) AppError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Sentinels
// ================================================================================

var (
	// ErrStoreUnavailable reports a network failure or timeout talking to the shared store.
	// It never crosses a public boundary of the limiter or registry; both fail open.
	ErrStoreUnavailable = NewError(CodeStoreUnavailable, http.StatusServiceUnavailable,
		"The shared key-value store is unavailable.", "")

	// ErrKeyNotFound reports a missing key. It is not a store failure.
	ErrKeyNotFound = NewError(CodeNotFound, http.StatusNotFound, "Key not found.", "")

	// ErrUnauthorized is returned for missing, invalid, expired or revoked tokens alike.
	ErrUnauthorized = NewError(CodeUnauthorized, http.StatusUnauthorized,
		"The access token is missing or invalid.", "")

	// ErrInternal reports an unexpected server condition.
	ErrInternal = NewError(CodeInternal, http.StatusInternalServerError,
		"The server encountered an unexpected condition.", "")
)

// ================================================================================
// Constructors
// ================================================================================

// ErrInvalidRequest creates an invalid_request error
func ErrInvalidRequest(message string) AppError {
	return NewError(CodeInvalidRequest, http.StatusBadRequest,
		"The request is missing a required parameter or is otherwise malformed.", message)
}

// ErrInvalidPolicy creates an invalid_policy error. It is a startup configuration
// error and should abort initialization.
func ErrInvalidPolicy(policy, reason string) AppError {
	return NewError(CodeInvalidPolicy, http.StatusInternalServerError,
		"A rate limit policy is malformed.",
		fmt.Sprintf("invalid rate limit policy %q: %s", policy, reason)).
		WithMetadata("policy", policy)
}

// ErrInvalidConfig creates an invalid_config error
func ErrInvalidConfig(message string) AppError {
	return NewError(CodeInvalidConfig, http.StatusInternalServerError,
		"The service configuration is invalid.", message)
}

// ErrRateLimitExceeded creates a rate limit exceeded error
func ErrRateLimitExceeded(policy string, limit int64) AppError {
	return NewError(CodeRateLimitExceeded, http.StatusTooManyRequests,
		"Rate limit exceeded. Please try again later.",
		fmt.Sprintf("rate limit exceeded for policy '%s': %d requests", policy, limit)).
		WithMetadata("policy", policy).
		WithMetadata("limit", limit)
}

// StoreUnavailable wraps a store failure for the given operation.
func StoreUnavailable(op string, cause error) AppError {
	return ErrStoreUnavailable.WithCause(cause).WithMetadata("operation", op)
}

// ================================================================================
// Helpers
// ================================================================================

// Is, As and New re-export the standard library so callers need a single import.
var (
	Is  = stderrors.Is
	As  = stderrors.As
	New = stderrors.New
)

// IsStoreUnavailable reports whether err is, or wraps, a store failure.
func IsStoreUnavailable(err error) bool {
	return stderrors.Is(err, ErrStoreUnavailable)
}

// IsNotFound reports whether err is, or wraps, ErrKeyNotFound.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrKeyNotFound)
}

// HTTPStatus returns the status carried by err, or 500 for foreign errors.
func HTTPStatus(err error) int {
	var appErr AppError
	if stderrors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}
