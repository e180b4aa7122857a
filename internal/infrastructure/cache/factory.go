package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appfulfillment "github.com/orderhub/backend/internal/application/fulfillment"
	"github.com/orderhub/backend/internal/infrastructure/config"
	"github.com/orderhub/backend/internal/infrastructure/event"
)

// Coordination bundles the stores replicas share: the batch scope lease and
// the outbox delivery ledger
type Coordination struct {
	Locker      appfulfillment.ScopeLocker
	Idempotency event.IdempotencyStore

	client *redis.Client
}

// Distributed reports whether the stores are shared through Redis
func (c *Coordination) Distributed() bool {
	return c.client != nil
}

// Ping checks the Redis connection. In-process stores are always healthy.
func (c *Coordination) Ping(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis client
func (c *Coordination) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// CoordinationOption is a functional option for NewCoordination
type CoordinationOption func(*coordinationOptions)

type coordinationOptions struct {
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) CoordinationOption {
	return func(o *coordinationOptions) {
		o.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to
// in-process stores. Default is true.
func WithInMemoryFallback(allow bool) CoordinationOption {
	return func(o *coordinationOptions) {
		o.allowInMemoryFallback = allow
	}
}

// NewCoordination builds Redis-backed stores when Redis is enabled and
// in-process ones otherwise
func NewCoordination(ctx context.Context, cfg config.RedisConfig, opts ...CoordinationOption) (*Coordination, error) {
	o := &coordinationOptions{logger: zap.NewNop(), allowInMemoryFallback: true}
	for _, opt := range opts {
		opt(o)
	}

	if !cfg.Enabled {
		o.logger.Info("redis disabled, using in-process scope locks")
		return inMemoryCoordination(), nil
	}

	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		if !o.allowInMemoryFallback {
			return nil, fmt.Errorf("redis required for scope locks but unavailable: %w", err)
		}
		o.logger.Warn("Redis unavailable, falling back to in-process scope locks. "+
			"Replicas will not exclude each other.",
			zap.Error(err),
		)
		return inMemoryCoordination(), nil
	}

	o.logger.Info("using Redis scope locks",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Int("db", cfg.DB),
	)
	return &Coordination{
		Locker:      NewRedisScopeLocker(client, "", o.logger),
		Idempotency: NewRedisIdempotencyStore(client, ""),
		client:      client,
	}, nil
}

func inMemoryCoordination() *Coordination {
	return &Coordination{
		Locker:      NewInMemoryScopeLocker(),
		Idempotency: event.NewInMemoryIdempotencyStore(),
	}
}
