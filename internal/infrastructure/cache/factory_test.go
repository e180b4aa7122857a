package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderhub/backend/internal/infrastructure/config"
	"github.com/orderhub/backend/internal/infrastructure/event"
)

// Port 1 on loopback refuses connections immediately
var unreachableRedis = config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}

func TestNewCoordination_Disabled(t *testing.T) {
	c, err := NewCoordination(context.Background(), config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	defer c.Close()

	assert.False(t, c.Distributed())
	assert.IsType(t, &InMemoryScopeLocker{}, c.Locker)
	assert.IsType(t, &event.InMemoryIdempotencyStore{}, c.Idempotency)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestNewCoordination_Fallback(t *testing.T) {
	c, err := NewCoordination(context.Background(), unreachableRedis)
	require.NoError(t, err)
	assert.False(t, c.Distributed())
}

func TestNewCoordination_RequiredRedis(t *testing.T) {
	_, err := NewCoordination(context.Background(), unreachableRedis, WithInMemoryFallback(false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis required")
}
