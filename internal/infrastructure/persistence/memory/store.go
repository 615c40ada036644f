// Package memory provides an in-process key-value store for single-instance
// deployments and tests. State is not shared between processes.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/turtacn/linkguard/internal/domain/service"
	"github.com/turtacn/linkguard/pkg/errors"
)

var _ service.KeyValueStore = (*Store)(nil)

type memberSet map[string]struct{}

// Store implements service.KeyValueStore on go-cache. A single mutex makes every
// read-modify-write step atomic with respect to other callers.
type Store struct {
	mu sync.Mutex
	c  *cache.Cache
}

// NewStore creates an empty store. Expired entries are purged every cleanupInterval.
func NewStore(cleanupInterval time.Duration) *Store {
	return &Store{c: cache.New(cache.NoExpiration, cleanupInterval)}
}

func ttlOrForever(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return cache.NoExpiration
	}
	return ttl
}

// remaining converts an absolute expiration back into a go-cache duration.
func remaining(exp time.Time) time.Duration {
	if exp.IsZero() {
		return cache.NoExpiration
	}
	d := time.Until(exp)
	if d <= 0 {
		d = time.Nanosecond
	}
	return d
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.c.Get(key)
	if !ok {
		return nil, errors.ErrKeyNotFound
	}
	switch val := v.(type) {
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out, nil
	case int64:
		return []byte(strconv.FormatInt(val, 10)), nil
	default:
		return nil, errors.ErrInvalidRequest("key " + key + " does not hold a string value")
	}
}

func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, len(value))
	copy(buf, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Set(key, buf, ttlOrForever(ttl))
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.c.Delete(k)
	}
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.c.Get(key)
	return ok, nil
}

func (s *Store) IncrWithTTL(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, exp, ok := s.c.GetWithExpiration(key)
	if !ok {
		s.c.Set(key, int64(1), ttlOrForever(ttl))
		return 1, ttl, nil
	}

	var count int64
	switch val := v.(type) {
	case int64:
		count = val
	case []byte:
		n, err := strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			return 0, 0, errors.ErrInvalidRequest("value at " + key + " is not an integer")
		}
		count = n
	default:
		return 0, 0, errors.ErrInvalidRequest("value at " + key + " is not an integer")
	}
	count++

	if exp.IsZero() {
		s.c.Set(key, count, ttlOrForever(ttl))
		return count, ttl, nil
	}
	left := remaining(exp)
	s.c.Set(key, count, left)
	return count, left, nil
}

func (s *Store) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exp, ok := s.c.GetWithExpiration(key)
	if !ok || exp.IsZero() {
		return 0, nil
	}
	return remaining(exp), nil
}

func (s *Store) SetAdd(_ context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	set, exp, err := s.set(key)
	if err != nil {
		return err
	}
	if set == nil {
		set = make(memberSet, len(members))
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	s.c.Set(key, set, remaining(exp))
	return nil
}

func (s *Store) SetRemove(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, _, err := s.set(key)
	if err != nil || set == nil {
		return err
	}
	for _, m := range members {
		delete(set, m)
	}
	if len(set) == 0 {
		s.c.Delete(key)
	}
	return nil
}

func (s *Store) SetCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, _, err := s.set(key)
	if err != nil {
		return 0, err
	}
	return int64(len(set)), nil
}

func (s *Store) SetMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, _, err := s.set(key)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.c.Get(key); ok {
		if ttl <= 0 {
			s.c.Delete(key)
			return nil
		}
		s.c.Set(key, v, ttl)
	}
	return nil
}

func (s *Store) ExpireAt(ctx context.Context, key string, at time.Time) error {
	return s.Expire(ctx, key, time.Until(at))
}

func (s *Store) ExtendTTL(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, exp, ok := s.c.GetWithExpiration(key)
	if !ok {
		return nil
	}
	if exp.IsZero() || time.Until(exp) < ttl {
		s.c.Set(key, v, ttlOrForever(ttl))
	}
	return nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

// set returns the set stored at key, or nil when the key is absent. Callers hold mu.
func (s *Store) set(key string) (memberSet, time.Time, error) {
	v, exp, ok := s.c.GetWithExpiration(key)
	if !ok {
		return nil, time.Time{}, nil
	}
	set, isSet := v.(memberSet)
	if !isSet {
		return nil, time.Time{}, errors.ErrInvalidRequest("key " + key + " does not hold a set")
	}
	return set, exp, nil
}
