//go:build integration
// +build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/linkguard/internal/config"
	"github.com/turtacn/linkguard/pkg/logger"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return endpoint
}

func TestStore_AgainstRealRedis(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	conn := NewRedisConnection(config.RedisConfig{Addresses: []string{addr}}, logger.NewNoopLogger())
	require.NoError(t, conn.Connect(ctx))
	defer conn.Close()

	health, err := conn.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, health["connected"])

	store := NewStore(conn.GetClient(), StoreOptions{OperationTimeout: time.Second}, logger.NewNoopLogger())

	for i := int64(1); i <= 3; i++ {
		count, ttl, err := store.IncrWithTTL(ctx, "ratelimit:auth:it", 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.True(t, ttl > 0 && ttl <= 10*time.Second)
	}

	require.NoError(t, store.SetAdd(ctx, "user_tokens:u1", "t1", "t2"))
	require.NoError(t, store.ExtendTTL(ctx, "user_tokens:u1", time.Hour))
	require.NoError(t, store.ExtendTTL(ctx, "user_tokens:u1", time.Minute))

	ttl, err := store.TTL(ctx, "user_tokens:u1")
	require.NoError(t, err)
	assert.True(t, ttl > 59*time.Minute)
}
