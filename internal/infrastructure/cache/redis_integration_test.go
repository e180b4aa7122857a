//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/orderhub/backend/internal/infrastructure/config"
)

func startRedis(t *testing.T) config.RedisConfig {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	return config.RedisConfig{Enabled: true, Host: host, Port: port.Int()}
}

func TestRedisCoordination(t *testing.T) {
	ctx := context.Background()
	c, err := NewCoordination(ctx, startRedis(t), WithInMemoryFallback(false))
	require.NoError(t, err)
	defer c.Close()
	require.True(t, c.Distributed())

	t.Run("scope lease", func(t *testing.T) {
		release, ok, err := c.Locker.TryAcquire(ctx, "marketplace-A", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = c.Locker.TryAcquire(ctx, "marketplace-A", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, release(ctx))
		again, ok, err := c.Locker.TryAcquire(ctx, "marketplace-A", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, again(ctx))
	})

	t.Run("expired lease is not released by its old holder", func(t *testing.T) {
		stale, ok, err := c.Locker.TryAcquire(ctx, "all", 100*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)

		time.Sleep(200 * time.Millisecond)
		fresh, ok, err := c.Locker.TryAcquire(ctx, "all", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, stale(ctx))
		_, ok, err = c.Locker.TryAcquire(ctx, "all", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
		require.NoError(t, fresh(ctx))
	})

	t.Run("idempotency ledger", func(t *testing.T) {
		isNew, err := c.Idempotency.MarkProcessed(ctx, "evt-1", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)

		isNew, err = c.Idempotency.MarkProcessed(ctx, "evt-1", time.Hour)
		require.NoError(t, err)
		assert.False(t, isNew)

		require.NoError(t, c.Idempotency.Forget(ctx, "evt-1"))
		isNew, err = c.Idempotency.MarkProcessed(ctx, "evt-1", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)
	})
}
