// Package persistence selects the shared key-value store backend.
package persistence

import (
	"context"
	"time"

	"github.com/turtacn/linkguard/internal/config"
	"github.com/turtacn/linkguard/internal/domain/service"
	"github.com/turtacn/linkguard/internal/infrastructure/persistence/memory"
	"github.com/turtacn/linkguard/internal/infrastructure/persistence/redis"
	"github.com/turtacn/linkguard/pkg/errors"
	"github.com/turtacn/linkguard/pkg/logger"
)

// Store is a KeyValueStore that owns its connection.
type Store interface {
	service.KeyValueStore
	Close() error
}

type redisStore struct {
	*redis.Store
	conn *redis.RedisConnection
}

func (s redisStore) Close() error { return s.conn.Close() }

type memoryStore struct {
	*memory.Store
}

func (memoryStore) Close() error { return nil }

// NewStore opens the configured backend. Redis must answer a ping at startup;
// later outages are absorbed by the fail-open request paths.
func NewStore(ctx context.Context, cfg *config.Config, log logger.Logger) (Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		conn := redis.NewRedisConnection(cfg.Redis, log)
		if err := conn.Connect(ctx); err != nil {
			return nil, errors.StoreUnavailable("connect", err)
		}
		store := redis.NewStore(conn.GetClient(), redis.StoreOptions{
			Namespace:        cfg.Store.Namespace,
			OperationTimeout: cfg.Store.OperationTimeout,
		}, log)
		return redisStore{Store: store, conn: conn}, nil
	case "memory":
		log.Warn(ctx, "Using the in-process memory store; limits and revocations are not shared between instances")
		return memoryStore{Store: memory.NewStore(time.Minute)}, nil
	default:
		return nil, errors.ErrInvalidConfig("unknown store backend: " + cfg.Store.Backend)
	}
}
