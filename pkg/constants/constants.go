// Package constants defines system-wide constants for the linkguard access control plane.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Store Key Namespaces
// ================================================================================

// Key namespaces owned by the access control plane. The rate limiter and the
// token registry never share a namespace, so no coordination between them is needed.
const (
	// RateLimitKeyNamespace prefixes every fixed-window counter
	RateLimitKeyNamespace = "ratelimit"

	// BlacklistKeyNamespace prefixes every blacklist entry
	BlacklistKeyNamespace = "blacklisted_token"

	// UserTokensKeyNamespace prefixes every per-user token set
	UserTokensKeyNamespace = "user_tokens"

	// KeySeparator joins namespace, prefix and identifier
	KeySeparator = ":"
)

// ================================================================================
// Rate Limit Policy Names
// ================================================================================

// PolicyName identifies a configured rate limit policy
type PolicyName string

const (
	// PolicyAuth gates login and other authentication attempts
	PolicyAuth PolicyName = "auth"

	// PolicyURLCreate gates short URL creation
	PolicyURLCreate PolicyName = "url_create"
)

const (
	// DefaultAuthWindow is the window for authentication attempts (15 minutes)
	DefaultAuthWindow = 15 * time.Minute

	// DefaultAuthMaxRequests is the number of authentication attempts per window
	DefaultAuthMaxRequests = 5

	// DefaultURLCreateWindow is the window for URL creation (1 minute)
	DefaultURLCreateWindow = 1 * time.Minute

	// DefaultURLCreateMaxRequests is the number of URL creations per window
	DefaultURLCreateMaxRequests = 20

	// MaxIdentityLength is the longest client identity stored verbatim; longer ones are hashed
	MaxIdentityLength = 256

	// UnknownIdentity is used when the caller could not derive an identity
	UnknownIdentity = "unknown"
)

// ================================================================================
// Token Lifetime Constants
// ================================================================================

const (
	// DefaultMaxTokenLifetime bounds session token lifetime and the user token set TTL (24 hours)
	DefaultMaxTokenLifetime = 24 * time.Hour

	// DefaultAccessTokenTTL is the lifetime of tokens issued by the admin tool (1 hour)
	DefaultAccessTokenTTL = 1 * time.Hour

	// DefaultStoreOperationTimeout bounds every shared store call
	DefaultStoreOperationTimeout = 150 * time.Millisecond
)

// ================================================================================
// Failure Tags
// ================================================================================

const (
	// FailureStoreUnavailable tags log entries written when the shared store failed
	// and the caller fell back to the permissive default
	FailureStoreUnavailable = "store_unavailable"

	// LogFieldFailure is the field key carrying a failure tag
	LogFieldFailure = "failure"

	// LogFieldOperation is the field key carrying the failed operation name
	LogFieldOperation = "operation"
)

// Operation names used in logs and metrics.
const (
	OpRateLimitCheck    = "ratelimit.check"
	OpRegistryRegister  = "registry.register"
	OpRegistryCheck     = "registry.is_blacklisted"
	OpRegistryBlacklist = "registry.blacklist"
	OpRegistryBulk      = "registry.invalidate_all"
	OpRegistryRemove    = "registry.remove"
	OpRegistryRemote    = "registry.apply_remote"
)

// ================================================================================
// Revocation Reasons
// ================================================================================

// RevocationReason records why a token entered the blacklist
type RevocationReason string

const (
	// RevocationReasonLogout is an explicit logout of the presented token
	RevocationReasonLogout RevocationReason = "logout"

	// RevocationReasonBulk is a bulk invalidation of every token of a user
	RevocationReasonBulk RevocationReason = "bulk"

	// RevocationReasonRemote is a revocation replicated from another region
	RevocationReasonRemote RevocationReason = "remote"
)

// ================================================================================
// Audit Event Types
// ================================================================================

// AuditEventType represents different types of auditable events
type AuditEventType string

const (
	// AuditEventTokenRevoked is emitted for every blacklisted token
	AuditEventTokenRevoked AuditEventType = "token.revoked"

	// AuditEventUserTokensInvalidated is emitted once per bulk invalidation
	AuditEventUserTokensInvalidated AuditEventType = "user.tokens_invalidated"

	// AuditEventBlacklistFailedOpen is emitted when a blacklist check could not reach the store
	AuditEventBlacklistFailedOpen AuditEventType = "blacklist.check_failed_open"
)

// ================================================================================
// HTTP Headers
// ================================================================================

const (
	HeaderAuthorization      = "Authorization"
	HeaderRequestID          = "X-Request-ID"
	HeaderUserID             = "X-User-ID"
	HeaderRetryAfter         = "Retry-After"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type of keys stored in request contexts
type ContextKey string

const (
	ContextKeyRequestID      ContextKey = "request_id"
	ContextKeyTraceID        ContextKey = "trace_id"
	ContextKeyUserID         ContextKey = "user_id"
	ContextKeyToken          ContextKey = "token"
	ContextKeyTokenExpiresAt ContextKey = "token_expires_at"
)

// ServiceName is reported in traces and metrics namespaces
const ServiceName = "linkguard"
