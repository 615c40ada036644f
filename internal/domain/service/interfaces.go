package service

import (
	"context"
	"time"

	"github.com/turtacn/linkguard/internal/domain/models"
)

//go:generate mockery --name KeyValueStore --output mocks --outpkg mocks
// KeyValueStore is the shared low-latency store behind the access control plane.
// Every method is a single atomic operation against one key; implementations bound
// each call with a short timeout and report failures as errors.ErrStoreUnavailable.
type KeyValueStore interface {
	// Get returns the value stored at key, or errors.ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetWithTTL stores value at key, expiring after ttl.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// IncrWithTTL increments the counter at key. When the increment creates the key,
	// or the key carries no expiry, ttl is applied in the same atomic step. It returns
	// the new count and the counter's remaining TTL as seen by the store.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error)

	// TTL returns the remaining time to live of key; zero when the key is missing
	// or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// SetAdd adds members to the set at key.
	SetAdd(ctx context.Context, key string, members ...string) error

	// SetRemove removes members from the set at key.
	SetRemove(ctx context.Context, key string, members ...string) error

	// SetCard returns the number of members of the set at key.
	SetCard(ctx context.Context, key string) (int64, error)

	// SetMembers returns all members of the set at key.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// Expire sets the TTL of key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// ExpireAt sets the absolute expiry of key.
	ExpireAt(ctx context.Context, key string, at time.Time) error

	// ExtendTTL raises the TTL of key to ttl unless it already lives longer.
	// It never shortens a TTL.
	ExtendTTL(ctx context.Context, key string, ttl time.Duration) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

//go:generate mockery --name RateLimiter --output mocks --outpkg mocks
// RateLimiter admits or rejects requests per (client identity, policy).
// It never returns an error: store failures produce an allowed, FailedOpen decision.
type RateLimiter interface {
	Check(ctx context.Context, clientIdentity string, policy models.RateLimitPolicy) models.Decision
}

//go:generate mockery --name TokenRegistry --output mocks --outpkg mocks
// TokenRegistry tracks each user's active tokens and the blacklist of revoked ones.
// None of its request-path methods surface store failures to callers.
type TokenRegistry interface {
	// RegisterToken records a verified token for its user. Best effort.
	RegisterToken(ctx context.Context, userID, token string, expiresAt time.Time)

	// IsBlacklisted reports whether token was revoked. Fails open.
	IsBlacklisted(ctx context.Context, token string) bool

	// BlacklistToken revokes token until expiresAt.
	BlacklistToken(ctx context.Context, token, userID string, expiresAt time.Time)

	// InvalidateAllUserTokens revokes every registered token of the user.
	InvalidateAllUserTokens(ctx context.Context, userID string)

	// RemoveUserToken forgets token without revoking it.
	RemoveUserToken(ctx context.Context, userID, token string)
}

// TokenVerifier checks a token's signature and expiry. It never consults the registry.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.SessionClaims, error)
}

// AuditService defines the interface for logging security-sensitive audit events.
type AuditService interface {
	// LogEvent records an audit event.
	LogEvent(ctx context.Context, event models.AuditEvent) error
}

// MetricsRecorder receives access control plane measurements.
type MetricsRecorder interface {
	RecordRateLimitDecision(policy, result string)
	RecordStoreFailure(operation string)
	RecordTokenRevocation(reason string)
	RecordBlacklistHit()
}
