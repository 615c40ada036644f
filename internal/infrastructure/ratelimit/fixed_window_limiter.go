// Package ratelimit provides distributed fixed-window rate limiting over the shared store.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/linkguard/internal/domain/models"
	"github.com/turtacn/linkguard/internal/domain/service"
	"github.com/turtacn/linkguard/pkg/constants"
	"github.com/turtacn/linkguard/pkg/errors"
	"github.com/turtacn/linkguard/pkg/logger"
)

var _ service.RateLimiter = (*FixedWindowLimiter)(nil)

// Decision results reported to metrics.
const (
	ResultAllowed    = "allowed"
	ResultDenied     = "denied"
	ResultFailedOpen = "failed_open"
)

// FixedWindowLimiter counts requests per (policy, identity) in fixed windows.
// The first request of a window arms the counter's expiry; the window ends when
// the counter expires.
type FixedWindowLimiter struct {
	store   service.KeyValueStore
	metrics service.MetricsRecorder
	logger  logger.Logger
	now     func() time.Time
}

// Option customizes a FixedWindowLimiter.
type Option func(*FixedWindowLimiter)

// WithClock overrides the clock used to compute ResetAt.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindowLimiter) { l.now = now }
}

// NewFixedWindowLimiter creates a limiter on top of store.
func NewFixedWindowLimiter(store service.KeyValueStore, metrics service.MetricsRecorder, log logger.Logger, opts ...Option) *FixedWindowLimiter {
	l := &FixedWindowLimiter{
		store:   store,
		metrics: metrics,
		logger:  log.WithComponent("ratelimit"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one request against policy and decides whether to admit it.
// It never fails: when the store is unreachable the request is admitted and the
// decision is marked FailedOpen.
func (l *FixedWindowLimiter) Check(ctx context.Context, clientIdentity string, policy models.RateLimitPolicy) models.Decision {
	key := l.buildKey(ctx, clientIdentity, policy)

	count, ttlLeft, err := l.store.IncrWithTTL(ctx, key, policy.Window)
	if err != nil {
		l.logger.Error(ctx, "Rate limit check failed, allowing request", err,
			logger.String(constants.LogFieldFailure, constants.FailureStoreUnavailable),
			logger.String(constants.LogFieldOperation, constants.OpRateLimitCheck),
			logger.String("policy", policy.Name),
			logger.String("key", key),
		)
		l.metrics.RecordStoreFailure(constants.OpRateLimitCheck)
		l.metrics.RecordRateLimitDecision(policy.Name, ResultFailedOpen)
		return models.Decision{
			Allowed:    true,
			Limit:      policy.MaxRequests,
			Remaining:  policy.MaxRequests - 1,
			ResetAt:    l.now().Add(policy.Window),
			FailedOpen: true,
		}
	}

	remaining := policy.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	d := models.Decision{
		Allowed:   count <= policy.MaxRequests,
		Limit:     policy.MaxRequests,
		Remaining: remaining,
		ResetAt:   l.now().Add(ttlLeft),
	}
	if !d.Allowed {
		d.RetryAfter = ttlLeft
		l.metrics.RecordRateLimitDecision(policy.Name, ResultDenied)
		l.logger.Debug(ctx, "Rate limit exceeded",
			logger.String("policy", policy.Name),
			logger.String("key", key),
			logger.Int64("count", count),
			logger.Duration("retry_after", ttlLeft),
		)
		return d
	}
	l.metrics.RecordRateLimitDecision(policy.Name, ResultAllowed)
	return d
}

// Reset deletes the counter for identity, opening a fresh window on the next request.
func (l *FixedWindowLimiter) Reset(ctx context.Context, clientIdentity string, policy models.RateLimitPolicy) error {
	key := l.buildKey(ctx, clientIdentity, policy)
	if err := l.store.Delete(ctx, key); err != nil {
		return err
	}
	l.logger.Info(ctx, "Rate limit reset",
		logger.String("policy", policy.Name),
		logger.String("key", key),
	)
	return nil
}

// Usage reports the counter for identity without incrementing it.
func (l *FixedWindowLimiter) Usage(ctx context.Context, clientIdentity string, policy models.RateLimitPolicy) (*models.RateLimitUsage, error) {
	key := l.buildKey(ctx, clientIdentity, policy)

	var used int64
	raw, err := l.store.Get(ctx, key)
	switch {
	case errors.IsNotFound(err):
	case err != nil:
		return nil, err
	default:
		used, err = strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return nil, errors.ErrInternal.WithCause(err).WithMetadata("key", key)
		}
	}

	usage := &models.RateLimitUsage{
		Key:   key,
		Used:  used,
		Limit: policy.MaxRequests,
	}
	usage.Remaining = policy.MaxRequests - used
	if usage.Remaining < 0 {
		usage.Remaining = 0
	}
	usage.Percentage = float64(used) / float64(policy.MaxRequests) * 100.0
	if usage.Percentage > 100.0 {
		usage.Percentage = 100.0
	}

	if used > 0 {
		ttl, err := l.store.TTL(ctx, key)
		if err != nil {
			return nil, err
		}
		if ttl > 0 {
			usage.ResetAt = l.now().Add(ttl)
		}
	}
	return usage, nil
}

// buildKey returns ratelimit:{prefix}:{identity}.
func (l *FixedWindowLimiter) buildKey(ctx context.Context, clientIdentity string, policy models.RateLimitPolicy) string {
	return strings.Join([]string{
		constants.RateLimitKeyNamespace,
		policy.KeyPrefix,
		l.normalizeIdentity(ctx, clientIdentity, policy),
	}, constants.KeySeparator)
}

func (l *FixedWindowLimiter) normalizeIdentity(ctx context.Context, identity string, policy models.RateLimitPolicy) string {
	if identity == "" {
		l.logger.Debug(ctx, "Empty client identity, using fallback",
			logger.String("policy", policy.Name),
			logger.String("identity", constants.UnknownIdentity),
		)
		return constants.UnknownIdentity
	}
	if len(identity) > constants.MaxIdentityLength {
		sum := sha256.Sum256([]byte(identity))
		return "sha256-" + hex.EncodeToString(sum[:])
	}
	return identity
}
