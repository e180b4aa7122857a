package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appfulfillment "github.com/orderhub/backend/internal/application/fulfillment"
)

const defaultLockPrefix = "fulfillment:batch-scope:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lease taken over by another replica is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisScopeLocker leases batch scopes across replicas with SET NX PX
type RedisScopeLocker struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisScopeLocker creates a locker over an existing client
func NewRedisScopeLocker(client redis.UniversalClient, keyPrefix string, logger *zap.Logger) *RedisScopeLocker {
	if keyPrefix == "" {
		keyPrefix = defaultLockPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisScopeLocker{client: client, keyPrefix: keyPrefix, logger: logger}
}

// TryAcquire takes the lease for scope if nobody holds it
func (l *RedisScopeLocker) TryAcquire(ctx context.Context, scope string, ttl time.Duration) (func(context.Context) error, bool, error) {
	key := l.keyPrefix + scope
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire scope lease %s: %w", scope, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
		if err != nil {
			return fmt.Errorf("failed to release scope lease %s: %w", scope, err)
		}
		if n == 0 {
			l.logger.Warn("scope lease expired before release", zap.String("scope", scope))
		}
		return nil
	}
	return release, true, nil
}

var _ appfulfillment.ScopeLocker = (*RedisScopeLocker)(nil)
