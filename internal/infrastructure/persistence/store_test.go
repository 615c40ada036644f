package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/linkguard/internal/config"
	"github.com/turtacn/linkguard/pkg/errors"
	"github.com/turtacn/linkguard/pkg/logger"
)

func storeConfig(backend string, addrs ...string) *config.Config {
	return &config.Config{
		Redis: config.RedisConfig{Mode: "standalone", Addresses: addrs},
		Store: config.StoreConfig{Backend: backend, Namespace: "t1", OperationTimeout: time.Second},
	}
}

func TestNewStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store, err := NewStore(ctx, storeConfig("redis", mr.Addr()), logger.NewNoopLogger())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SetWithTTL(ctx, "k", []byte("v"), time.Minute))
	assert.True(t, mr.Exists("t1:k"), "namespace is applied")
}

func TestNewStore_Memory(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, storeConfig("memory"), logger.NewNoopLogger())
	require.NoError(t, err)
	defer store.Close()

	n, _, err := store.IncrWithTTL(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNewStore_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := NewStore(ctx, storeConfig("etcd"), logger.NewNoopLogger())
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = NewStore(ctx, storeConfig("redis", addr), logger.NewNoopLogger())
	assert.True(t, errors.IsStoreUnavailable(err))
}
