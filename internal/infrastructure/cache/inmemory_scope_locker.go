package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	appfulfillment "github.com/orderhub/backend/internal/application/fulfillment"
)

type lease struct {
	token     uuid.UUID
	expiresAt time.Time
}

// InMemoryScopeLocker leases batch scopes inside one process. It backs
// single-replica deployments and tests.
type InMemoryScopeLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// NewInMemoryScopeLocker creates an empty locker
func NewInMemoryScopeLocker() *InMemoryScopeLocker {
	return &InMemoryScopeLocker{leases: make(map[string]lease), now: time.Now}
}

// TryAcquire takes the lease unless an unexpired one is held
func (l *InMemoryScopeLocker) TryAcquire(ctx context.Context, scope string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[scope]; ok && now.Before(held.expiresAt) {
		return nil, false, nil
	}

	token := uuid.New()
	l.leases[scope] = lease{token: token, expiresAt: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if held, ok := l.leases[scope]; ok && held.token == token {
			delete(l.leases, scope)
		}
		return nil
	}, true, nil
}

// Size returns the number of leases, expired ones included
func (l *InMemoryScopeLocker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.leases)
}

var _ appfulfillment.ScopeLocker = (*InMemoryScopeLocker)(nil)
