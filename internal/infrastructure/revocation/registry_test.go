package revocation

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/linkguard/internal/domain/models"
	"github.com/turtacn/linkguard/internal/domain/service"
	"github.com/turtacn/linkguard/internal/infrastructure/monitoring"
	"github.com/turtacn/linkguard/internal/infrastructure/persistence/memory"
	"github.com/turtacn/linkguard/internal/infrastructure/persistence/redis"
	"github.com/turtacn/linkguard/pkg/constants"
	"github.com/turtacn/linkguard/pkg/errors"
	"github.com/turtacn/linkguard/pkg/logger"
)

type fakeAudit struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (f *fakeAudit) LogEvent(_ context.Context, e models.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeAudit) ofType(t constants.AuditEventType) []models.AuditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuditEvent
	for _, e := range f.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type countingMetrics struct {
	monitoring.NoopMetrics
	mu            sync.Mutex
	revocations   map[string]int
	storeFailures map[string]int
	hits          int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{revocations: map[string]int{}, storeFailures: map[string]int{}}
}

func (m *countingMetrics) RecordTokenRevocation(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revocations[reason]++
}

func (m *countingMetrics) RecordStoreFailure(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeFailures[op]++
}

func (m *countingMetrics) RecordBlacklistHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

// hookedStore lets a test run code in the middle of a registry operation or fail
// writes for selected keys.
type hookedStore struct {
	service.KeyValueStore
	afterSetMembers func()
	failSet         map[string]bool
}

func (h *hookedStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := h.KeyValueStore.SetMembers(ctx, key)
	if h.afterSetMembers != nil {
		h.afterSetMembers()
	}
	return members, err
}

func (h *hookedStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if h.failSet[key] {
		return errors.StoreUnavailable("set", context.DeadlineExceeded)
	}
	return h.KeyValueStore.SetWithTTL(ctx, key, value, ttl)
}

type RegistryTestSuite struct {
	suite.Suite
	mr      *miniredis.Miniredis
	client  *goredis.Client
	store   *hookedStore
	audit   *fakeAudit
	metrics *countingMetrics
	now     time.Time
	ctx     context.Context
}

func (s *RegistryTestSuite) SetupTest() {
	var err error
	s.mr, err = miniredis.Run()
	s.Require().NoError(err)
	s.client = goredis.NewClient(&goredis.Options{Addr: s.mr.Addr()})
	s.store = &hookedStore{
		KeyValueStore: redis.NewStore(s.client, redis.StoreOptions{}, logger.NewNoopLogger()),
		failSet:       map[string]bool{},
	}
	s.audit = &fakeAudit{}
	s.metrics = newCountingMetrics()
	s.now = time.Unix(1_700_000_000, 0)
	s.ctx = context.Background()
}

func (s *RegistryTestSuite) TearDownTest() {
	_ = s.client.Close()
	s.mr.Close()
}

func (s *RegistryTestSuite) registry(revokeAll bool) *Registry {
	return NewRegistry(s.store, s.metrics, s.audit, logger.NewNoopLogger(), Config{
		RevokeAllOnLogout: revokeAll,
		MaxTokenLifetime:  24 * time.Hour,
		Region:            "eu-west-1",
		Clock:             func() time.Time { return s.now },
	})
}

// advance moves both the registry clock and the store clock.
func (s *RegistryTestSuite) advance(d time.Duration) {
	s.now = s.now.Add(d)
	s.mr.FastForward(d)
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (s *RegistryTestSuite) TestRegisterTokenIsIdempotent() {
	r := s.registry(true)
	r.RegisterToken(s.ctx, "u1", "t1", s.now.Add(time.Hour))
	r.RegisterToken(s.ctx, "u1", "t1", s.now.Add(time.Hour))

	n, err := r.ActiveTokenCount(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(1), n)
	s.Equal(time.Hour, s.mr.TTL("user_tokens:u1"))
}

func (s *RegistryTestSuite) TestRegisterTokenSetTTLNeverShrinks() {
	r := s.registry(true)
	r.RegisterToken(s.ctx, "u1", "long", s.now.Add(10*time.Hour))
	r.RegisterToken(s.ctx, "u1", "short", s.now.Add(time.Hour))
	s.Equal(10*time.Hour, s.mr.TTL("user_tokens:u1"))

	r.RegisterToken(s.ctx, "u1", "forever", s.now.Add(90*24*time.Hour))
	s.Equal(24*time.Hour, s.mr.TTL("user_tokens:u1"), "capped at max token lifetime")
}

func (s *RegistryTestSuite) TestRegisterIgnoresExpiredTokens() {
	r := s.registry(true)
	r.RegisterToken(s.ctx, "u1", "old", s.now.Add(-time.Second))
	s.False(s.mr.Exists("user_tokens:u1"))
}

func (s *RegistryTestSuite) TestBlacklistEntryLivesUntilTokenExpiry() {
	r := s.registry(false)
	r.BlacklistToken(s.ctx, "t1", "u1", s.now.Add(3600*time.Second))

	raw, err := s.mr.Get("blacklisted_token:t1")
	s.Require().NoError(err)
	var entry models.BlacklistEntry
	s.Require().NoError(json.Unmarshal([]byte(raw), &entry))
	s.Equal("u1", entry.UserID)
	s.True(s.now.Add(time.Hour).Equal(entry.ExpiresAt))

	s.advance(1800 * time.Second)
	s.True(r.IsBlacklisted(s.ctx, "t1"))

	s.advance(1801 * time.Second)
	s.False(r.IsBlacklisted(s.ctx, "t1"))
	s.Equal(1, s.metrics.hits)
}

func (s *RegistryTestSuite) TestBlacklistExpiredTokenIsNoop() {
	r := s.registry(true)
	r.RegisterToken(s.ctx, "u1", "other", s.now.Add(time.Hour))

	r.BlacklistToken(s.ctx, "t1", "u1", s.now.Add(-time.Minute))

	s.False(s.mr.Exists("blacklisted_token:t1"))
	s.False(s.mr.Exists("blacklisted_token:other"), "no cascade either")
	s.True(s.mr.Exists("user_tokens:u1"))
	s.Empty(s.audit.events)
}

func (s *RegistryTestSuite) TestLogoutRevokesAllWhenEnabled() {
	r := s.registry(true)
	for _, tok := range []string{"t1", "t2", "t3"} {
		r.RegisterToken(s.ctx, "u1", tok, s.now.Add(time.Hour))
	}

	r.BlacklistToken(s.ctx, "t1", "u1", s.now.Add(time.Hour))

	for _, tok := range []string{"t1", "t2", "t3"} {
		s.True(r.IsBlacklisted(s.ctx, tok), tok)
	}
	s.Equal(time.Hour, s.mr.TTL("blacklisted_token:t1"), "presented token keeps its exact expiry")
	s.Equal(24*time.Hour, s.mr.TTL("blacklisted_token:t2"))
	s.False(s.mr.Exists("user_tokens:u1"))

	s.Equal(1, s.metrics.revocations["logout"])
	s.Equal(2, s.metrics.revocations["bulk"])
	s.Len(s.audit.ofType(constants.AuditEventTokenRevoked), 3)
	bulk := s.audit.ofType(constants.AuditEventUserTokensInvalidated)
	s.Require().Len(bulk, 1)
	s.Equal("2", bulk[0].Metadata[MetaRevoked])
	s.Equal("eu-west-1", bulk[0].Region)
}

func (s *RegistryTestSuite) TestLogoutRevokesOnlyPresentedTokenWhenDisabled() {
	r := s.registry(false)
	r.RegisterToken(s.ctx, "u1", "t1", s.now.Add(time.Hour))
	r.RegisterToken(s.ctx, "u1", "t2", s.now.Add(time.Hour))

	r.BlacklistToken(s.ctx, "t1", "u1", s.now.Add(time.Hour))

	s.True(r.IsBlacklisted(s.ctx, "t1"))
	s.False(r.IsBlacklisted(s.ctx, "t2"))
	members, err := s.mr.Members("user_tokens:u1")
	s.Require().NoError(err)
	s.Equal([]string{"t2"}, members)
}

func (s *RegistryTestSuite) TestInvalidateAllUserTokens() {
	r := s.registry(true)
	r.RegisterToken(s.ctx, "u1", "t1", s.now.Add(time.Hour))
	r.RegisterToken(s.ctx, "u1", "t2", s.now.Add(2*time.Hour))
	r.RegisterToken(s.ctx, "u2", "x1", s.now.Add(time.Hour))

	r.InvalidateAllUserTokens(s.ctx, "u1")

	s.True(r.IsBlacklisted(s.ctx, "t1"))
	s.True(r.IsBlacklisted(s.ctx, "t2"))
	s.False(r.IsBlacklisted(s.ctx, "x1"))
	s.False(s.mr.Exists("user_tokens:u1"))

	n, err := r.ActiveTokenCount(s.ctx, "u2")
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	// nothing registered: still safe
	r.InvalidateAllUserTokens(s.ctx, "nobody")
}

func (s *RegistryTestSuite) TestInvalidateAllKeepsSetWhenAnEntryFails() {
	r := s.registry(true)
	r.RegisterToken(s.ctx, "u1", "t1", s.now.Add(time.Hour))
	r.RegisterToken(s.ctx, "u1", "t2", s.now.Add(time.Hour))
	s.store.failSet["blacklisted_token:t2"] = true

	r.InvalidateAllUserTokens(s.ctx, "u1")

	s.True(r.IsBlacklisted(s.ctx, "t1"))
	s.False(r.IsBlacklisted(s.ctx, "t2"))
	s.True(s.mr.Exists("user_tokens:u1"), "set kept for retry")
	s.Equal(1, s.metrics.storeFailures[constants.OpRegistryBulk])

	delete(s.store.failSet, "blacklisted_token:t2")
	r.InvalidateAllUserTokens(s.ctx, "u1")
	s.True(r.IsBlacklisted(s.ctx, "t2"))
	s.False(s.mr.Exists("user_tokens:u1"))
}

// A token registered between the member snapshot and the set deletion is neither
// blacklisted nor tracked afterwards.
func (s *RegistryTestSuite) TestInvalidateAllRaceWithConcurrentLogin() {
	r := s.registry(true)
	r.RegisterToken(s.ctx, "u1", "t1", s.now.Add(time.Hour))
	s.store.afterSetMembers = func() {
		s.store.afterSetMembers = nil
		r.RegisterToken(s.ctx, "u1", "late", s.now.Add(time.Hour))
	}

	r.InvalidateAllUserTokens(s.ctx, "u1")

	s.True(r.IsBlacklisted(s.ctx, "t1"))
	s.False(r.IsBlacklisted(s.ctx, "late"))
	s.False(s.mr.Exists("user_tokens:u1"))
}

func (s *RegistryTestSuite) TestRemoveUserTokenDoesNotRevoke() {
	r := s.registry(true)
	r.RegisterToken(s.ctx, "u1", "t1", s.now.Add(time.Hour))

	r.RemoveUserToken(s.ctx, "u1", "t1")

	s.False(r.IsBlacklisted(s.ctx, "t1"))
	n, err := r.ActiveTokenCount(s.ctx, "u1")
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RegistryTestSuite) TestApplyRemoteRevocation() {
	r := s.registry(true)
	r.RegisterToken(s.ctx, "u1", "t1", s.now.Add(time.Hour))
	r.RegisterToken(s.ctx, "u1", "t2", s.now.Add(time.Hour))

	r.ApplyRemoteRevocation(s.ctx, "t1", "u1", s.now.Add(30*time.Minute))
	r.ApplyRemoteRevocation(s.ctx, "t2", "u1", s.now.Add(-time.Minute))

	s.True(r.IsBlacklisted(s.ctx, "t1"))
	s.Equal(30*time.Minute, s.mr.TTL("blacklisted_token:t1"))
	s.False(r.IsBlacklisted(s.ctx, "t2"), "expired remote revocations are skipped")
	s.True(s.mr.Exists("user_tokens:u1"), "no cascade")
	s.Equal(1, s.metrics.revocations["remote"])
	s.Empty(s.audit.ofType(constants.AuditEventTokenRevoked))
}

func TestRegistry_LifecycleOnEveryBackend(t *testing.T) {
	backends := map[string]func(t *testing.T) service.KeyValueStore{
		"redis": func(t *testing.T) service.KeyValueStore {
			mr := miniredis.RunT(t)
			client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return redis.NewStore(client, redis.StoreOptions{}, logger.NewNoopLogger())
		},
		"memory": func(*testing.T) service.KeyValueStore {
			return memory.NewStore(time.Minute)
		},
	}
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			cfg := DefaultConfig()
			cfg.RevokeAllOnLogout = false
			single := NewRegistry(store, monitoring.NoopMetrics{}, nil, logger.NewNoopLogger(), cfg)
			all := NewRegistry(store, monitoring.NoopMetrics{}, nil, logger.NewNoopLogger(), DefaultConfig())
			exp := time.Now().Add(time.Hour)

			for _, tok := range []string{"t1", "t2", "t3"} {
				single.RegisterToken(ctx, "u1", tok, exp)
			}
			single.RegisterToken(ctx, "u1", "t1", exp)
			n, err := single.ActiveTokenCount(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, int64(3), n)

			single.BlacklistToken(ctx, "t1", "u1", exp)
			assert.True(t, single.IsBlacklisted(ctx, "t1"))
			assert.False(t, single.IsBlacklisted(ctx, "t2"))

			single.RemoveUserToken(ctx, "u1", "t3")
			assert.False(t, single.IsBlacklisted(ctx, "t3"))
			n, err = single.ActiveTokenCount(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			all.RegisterToken(ctx, "u1", "t4", exp)
			all.BlacklistToken(ctx, "t4", "u1", exp)
			assert.True(t, all.IsBlacklisted(ctx, "t2"), "logout revokes the rest of the set")
			assert.True(t, all.IsBlacklisted(ctx, "t4"))
			n, err = all.ActiveTokenCount(ctx, "u1")
			require.NoError(t, err)
			assert.Zero(t, n)

			all.BlacklistToken(ctx, "old", "u1", time.Now().Add(-time.Second))
			assert.False(t, all.IsBlacklisted(ctx, "old"))
		})
	}
}

func TestRegistry_FailsOpenWhenStoreIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	store := redis.NewStore(client, redis.StoreOptions{OperationTimeout: 50 * time.Millisecond}, logger.NewNoopLogger())

	core, logs := observer.New(zapcore.DebugLevel)
	audit := &fakeAudit{}
	metrics := newCountingMetrics()
	r := NewRegistry(store, metrics, audit, monitoring.NewZapLoggerWithCore(core), DefaultConfig())
	mr.Close()

	ctx := context.Background()
	assert.False(t, r.IsBlacklisted(ctx, "eyJhbGciOiJIUzI1NiJ9.payload.sig"))

	failures := logs.FilterField(zap.String(constants.LogFieldFailure, constants.FailureStoreUnavailable)).All()
	require.Len(t, failures, 1)
	fields := failures[0].ContextMap()
	assert.Equal(t, constants.OpRegistryCheck, fields[constants.LogFieldOperation])
	assert.Equal(t, "revoked_token_may_be_honored", fields["security_impact"])
	assert.Equal(t, models.HashToken("eyJhbGciOiJIUzI1NiJ9.payload.sig"), fields[MetaTokenHash])
	assert.Equal(t, 1, metrics.storeFailures[constants.OpRegistryCheck])
	assert.Len(t, audit.ofType(constants.AuditEventBlacklistFailedOpen), 1)

	// request-path methods absorb failures
	assert.NotPanics(t, func() {
		r.RegisterToken(ctx, "u1", "t1", time.Now().Add(time.Hour))
		r.BlacklistToken(ctx, "t1", "u1", time.Now().Add(time.Hour))
		r.InvalidateAllUserTokens(ctx, "u1")
		r.RemoveUserToken(ctx, "u1", "t1")
	})
	_, err := r.ActiveTokenCount(ctx, "u1")
	assert.True(t, errors.IsStoreUnavailable(err))
}
