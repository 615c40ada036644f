// Package revocation tracks each user's issued session tokens and the blacklist of
// revoked ones in the shared store.
package revocation

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/linkguard/internal/domain/models"
	"github.com/turtacn/linkguard/internal/domain/service"
	"github.com/turtacn/linkguard/pkg/constants"
	"github.com/turtacn/linkguard/pkg/logger"
)

var _ service.TokenRegistry = (*Registry)(nil)

// Audit metadata keys written by the registry.
const (
	MetaToken     = models.AuditMetaToken
	MetaTokenHash = "token_hash"
	MetaExpiresAt = "expires_at"
	MetaReason    = "reason"
	MetaRevoked   = "revoked"
	MetaFailed    = "failed"
)

// Config controls registry behavior.
type Config struct {
	// RevokeAllOnLogout makes BlacklistToken invalidate every token of the user
	RevokeAllOnLogout bool
	// MaxTokenLifetime bounds the user set TTL and the TTL of bulk-revoked entries
	MaxTokenLifetime time.Duration
	// Region stamps audit events so other regions can tell replicated revocations apart
	Region string
	// Clock defaults to time.Now
	Clock func() time.Time
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		RevokeAllOnLogout: true,
		MaxTokenLifetime:  constants.DefaultMaxTokenLifetime,
		Clock:             time.Now,
	}
}

// Registry implements service.TokenRegistry. Request-path methods never return
// errors: store failures are logged, metered and absorbed.
type Registry struct {
	store   service.KeyValueStore
	metrics service.MetricsRecorder
	audit   service.AuditService
	logger  logger.Logger
	cfg     Config
}

// NewRegistry creates a registry. A nil audit service disables audit events.
func NewRegistry(store service.KeyValueStore, metrics service.MetricsRecorder, audit service.AuditService, log logger.Logger, cfg Config) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.MaxTokenLifetime <= 0 {
		cfg.MaxTokenLifetime = constants.DefaultMaxTokenLifetime
	}
	return &Registry{
		store:   store,
		metrics: metrics,
		audit:   audit,
		logger:  log.WithComponent("revocation"),
		cfg:     cfg,
	}
}

func blacklistKey(token string) string {
	return strings.Join([]string{constants.BlacklistKeyNamespace, token}, constants.KeySeparator)
}

func userTokensKey(userID string) string {
	return strings.Join([]string{constants.UserTokensKeyNamespace, userID}, constants.KeySeparator)
}

// RegisterToken adds token to the user's set and extends the set TTL to cover it.
// Best effort: a store failure is logged and login proceeds.
func (r *Registry) RegisterToken(ctx context.Context, userID, token string, expiresAt time.Time) {
	if userID == "" || token == "" {
		return
	}
	ttl := expiresAt.Sub(r.cfg.Clock())
	if ttl <= 0 {
		return
	}
	if ttl > r.cfg.MaxTokenLifetime {
		ttl = r.cfg.MaxTokenLifetime
	}

	key := userTokensKey(userID)
	if err := r.store.SetAdd(ctx, key, token); err != nil {
		r.storeFailure(ctx, constants.OpRegistryRegister, err, logger.String("user_id", userID))
		return
	}
	if err := r.store.ExtendTTL(ctx, key, ttl); err != nil {
		r.storeFailure(ctx, constants.OpRegistryRegister, err, logger.String("user_id", userID))
	}
}

// IsBlacklisted reports whether token was revoked. It fails open: when the store
// cannot be reached the token is treated as valid.
func (r *Registry) IsBlacklisted(ctx context.Context, token string) bool {
	exists, err := r.store.Exists(ctx, blacklistKey(token))
	if err != nil {
		r.storeFailure(ctx, constants.OpRegistryCheck, err,
			logger.String("security_impact", "revoked_token_may_be_honored"),
			logger.String(MetaTokenHash, models.HashToken(token)),
		)
		r.emit(ctx, models.NewAuditEvent(constants.AuditEventBlacklistFailedOpen, "", false).
			With(MetaTokenHash, models.HashToken(token)))
		return false
	}
	if exists {
		r.metrics.RecordBlacklistHit()
	}
	return exists
}

// BlacklistToken revokes token until expiresAt. Tokens that have already expired
// need no entry and the call does nothing. Depending on configuration it then
// revokes every other token of the user or just forgets this one.
func (r *Registry) BlacklistToken(ctx context.Context, token, userID string, expiresAt time.Time) {
	now := r.cfg.Clock()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		r.logger.Debug(ctx, "Token already expired, not blacklisting",
			logger.String(MetaTokenHash, models.HashToken(token)),
			logger.String("user_id", userID),
		)
		return
	}

	r.writeEntry(ctx, token, userID, now, expiresAt, ttl, constants.RevocationReasonLogout, constants.OpRegistryBlacklist)

	if userID == "" {
		return
	}
	if err := r.store.SetRemove(ctx, userTokensKey(userID), token); err != nil {
		r.storeFailure(ctx, constants.OpRegistryBlacklist, err, logger.String("user_id", userID))
	}
	if r.cfg.RevokeAllOnLogout {
		r.InvalidateAllUserTokens(ctx, userID)
	}
}

// InvalidateAllUserTokens blacklists every token currently registered for the user
// for MaxTokenLifetime and then drops the user's set. The set is kept when any entry
// could not be written so that a retry still covers it.
//
// Tokens registered after the member snapshot is read are not revoked but are
// removed from the set with it.
func (r *Registry) InvalidateAllUserTokens(ctx context.Context, userID string) {
	key := userTokensKey(userID)
	members, err := r.store.SetMembers(ctx, key)
	if err != nil {
		r.storeFailure(ctx, constants.OpRegistryBulk, err, logger.String("user_id", userID))
		return
	}

	now := r.cfg.Clock()
	expiresAt := now.Add(r.cfg.MaxTokenLifetime)
	revoked, failed := 0, 0
	for _, token := range members {
		if r.writeEntry(ctx, token, userID, now, expiresAt, r.cfg.MaxTokenLifetime, constants.RevocationReasonBulk, constants.OpRegistryBulk) {
			revoked++
		} else {
			failed++
		}
	}

	if failed == 0 {
		if err := r.store.Delete(ctx, key); err != nil {
			r.storeFailure(ctx, constants.OpRegistryBulk, err, logger.String("user_id", userID))
		}
	} else {
		r.logger.Warn(ctx, "Keeping user token set after partial invalidation",
			logger.String("user_id", userID),
			logger.Int("revoked", revoked),
			logger.Int("failed", failed),
		)
	}

	r.logger.Info(ctx, "User tokens invalidated",
		logger.String("user_id", userID),
		logger.Int("revoked", revoked),
	)
	r.emit(ctx, models.NewAuditEvent(constants.AuditEventUserTokensInvalidated, userID, failed == 0).
		With(MetaRevoked, strconv.Itoa(revoked)).
		With(MetaFailed, strconv.Itoa(failed)))
}

// RemoveUserToken forgets token without revoking it.
func (r *Registry) RemoveUserToken(ctx context.Context, userID, token string) {
	if err := r.store.SetRemove(ctx, userTokensKey(userID), token); err != nil {
		r.storeFailure(ctx, constants.OpRegistryRemove, err, logger.String("user_id", userID))
	}
}

// ActiveTokenCount returns how many tokens are registered for the user. Unlike the
// request-path methods it reports store failures.
func (r *Registry) ActiveTokenCount(ctx context.Context, userID string) (int64, error) {
	return r.store.SetCard(ctx, userTokensKey(userID))
}

// ApplyRemoteRevocation writes a blacklist entry replicated from another region.
// It does not cascade and emits no audit event, so replication cannot loop.
func (r *Registry) ApplyRemoteRevocation(ctx context.Context, token, userID string, expiresAt time.Time) {
	now := r.cfg.Clock()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 || token == "" {
		return
	}
	entry, err := json.Marshal(models.BlacklistEntry{UserID: userID, IssuedAt: now.UTC(), ExpiresAt: expiresAt.UTC()})
	if err != nil {
		return
	}
	if err := r.store.SetWithTTL(ctx, blacklistKey(token), entry, ttl); err != nil {
		r.storeFailure(ctx, constants.OpRegistryRemote, err, logger.String("user_id", userID))
		return
	}
	r.metrics.RecordTokenRevocation(string(constants.RevocationReasonRemote))
}

// writeEntry stores one blacklist entry and reports whether it succeeded.
func (r *Registry) writeEntry(ctx context.Context, token, userID string, now, expiresAt time.Time, ttl time.Duration, reason constants.RevocationReason, op string) bool {
	entry, err := json.Marshal(models.BlacklistEntry{UserID: userID, IssuedAt: now.UTC(), ExpiresAt: expiresAt.UTC()})
	if err != nil {
		r.logger.Error(ctx, "Failed to encode blacklist entry", err, logger.String("user_id", userID))
		return false
	}
	if err := r.store.SetWithTTL(ctx, blacklistKey(token), entry, ttl); err != nil {
		r.storeFailure(ctx, op, err,
			logger.String("user_id", userID),
			logger.String(MetaTokenHash, models.HashToken(token)),
		)
		return false
	}

	r.metrics.RecordTokenRevocation(string(reason))
	r.emit(ctx, models.NewAuditEvent(constants.AuditEventTokenRevoked, userID, true).
		With(MetaToken, token).
		With(MetaTokenHash, models.HashToken(token)).
		With(MetaExpiresAt, expiresAt.UTC().Format(time.RFC3339)).
		With(MetaReason, string(reason)))
	return true
}

func (r *Registry) storeFailure(ctx context.Context, op string, err error, fields ...logger.Field) {
	fields = append(fields,
		logger.String(constants.LogFieldFailure, constants.FailureStoreUnavailable),
		logger.String(constants.LogFieldOperation, op),
	)
	r.logger.Error(ctx, "Token registry store operation failed", err, fields...)
	r.metrics.RecordStoreFailure(op)
}

func (r *Registry) emit(ctx context.Context, event models.AuditEvent) {
	if r.audit == nil {
		return
	}
	event.Region = r.cfg.Region
	if err := r.audit.LogEvent(ctx, event); err != nil {
		r.logger.Warn(ctx, "Failed to record audit event",
			logger.String("event_type", string(event.EventType)),
			logger.Err(err),
		)
	}
}
