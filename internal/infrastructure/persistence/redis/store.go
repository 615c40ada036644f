package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/linkguard/internal/domain/service"
	"github.com/turtacn/linkguard/pkg/constants"
	"github.com/turtacn/linkguard/pkg/errors"
	"github.com/turtacn/linkguard/pkg/logger"
)

var _ service.KeyValueStore = (*Store)(nil)

// incrWithTTLScript increments a counter and arms its expiry when the counter is new
// or has lost its TTL. Returns {count, pttl_ms}.
var incrWithTTLScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// extendTTLScript raises a key's TTL to ARGV[1] ms unless it already lives longer.
// A key without expiry receives the TTL. Missing keys are left alone.
var extendTTLScript = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[1])
if ttl == -2 then
  return 0
end
if ttl == -1 or ttl < tonumber(ARGV[1]) then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  return 1
end
return 0
`)

// StoreOptions configures a Store.
type StoreOptions struct {
	// Namespace, when set, is prepended to every key as "namespace:"
	Namespace string
	// OperationTimeout bounds every call; defaults to 150ms
	OperationTimeout time.Duration
}

// Store implements service.KeyValueStore on a Redis UniversalClient.
type Store struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	log     logger.Logger
}

// NewStore creates a Redis-backed key-value store.
func NewStore(client redis.UniversalClient, opts StoreOptions, log logger.Logger) *Store {
	timeout := opts.OperationTimeout
	if timeout <= 0 {
		timeout = constants.DefaultStoreOperationTimeout
	}
	prefix := ""
	if opts.Namespace != "" {
		prefix = opts.Namespace + constants.KeySeparator
	}
	return &Store{
		client:  client,
		prefix:  prefix,
		timeout: timeout,
		log:     log.WithComponent("redis_store"),
	}
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func (s *Store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) fail(ctx context.Context, op string, err error) error {
	s.log.Debug(ctx, "Redis operation failed",
		logger.String(constants.LogFieldOperation, op),
		logger.Err(err),
	)
	return errors.StoreUnavailable(op, err)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errors.ErrKeyNotFound
		}
		return nil, s.fail(ctx, "get", err)
	}
	return val, nil
}

func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return s.fail(ctx, "set", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return s.fail(ctx, "del", err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, s.fail(ctx, "exists", err)
	}
	return n == 1, nil
}

func (s *Store) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	res, err := incrWithTTLScript.Run(ctx, s.client, []string{s.key(key)}, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, s.fail(ctx, "incr", err)
	}
	if len(res) != 2 {
		return 0, 0, s.fail(ctx, "incr", errors.New("unexpected script reply"))
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	ttl, err := s.client.PTTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, s.fail(ctx, "pttl", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *Store) SetAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.client.SAdd(ctx, s.key(key), toArgs(members)...).Err(); err != nil {
		return s.fail(ctx, "sadd", err)
	}
	return nil
}

func (s *Store) SetRemove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.client.SRem(ctx, s.key(key), toArgs(members)...).Err(); err != nil {
		return s.fail(ctx, "srem", err)
	}
	return nil
}

func (s *Store) SetCard(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	n, err := s.client.SCard(ctx, s.key(key)).Result()
	if err != nil {
		return 0, s.fail(ctx, "scard", err)
	}
	return n, nil
}

func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	members, err := s.client.SMembers(ctx, s.key(key)).Result()
	if err != nil {
		return nil, s.fail(ctx, "smembers", err)
	}
	return members, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.client.PExpire(ctx, s.key(key), ttl).Err(); err != nil {
		return s.fail(ctx, "pexpire", err)
	}
	return nil
}

func (s *Store) ExpireAt(ctx context.Context, key string, at time.Time) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.client.PExpireAt(ctx, s.key(key), at).Err(); err != nil {
		return s.fail(ctx, "pexpireat", err)
	}
	return nil
}

func (s *Store) ExtendTTL(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := extendTTLScript.Run(ctx, s.client, []string{s.key(key)}, ttl.Milliseconds()).Err(); err != nil {
		return s.fail(ctx, "extend_ttl", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return s.fail(ctx, "ping", err)
	}
	return nil
}

func toArgs(members []string) []interface{} {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}
