package fulfillment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ScopeLocker is a lease held across replicas while a batch is created in a
// scope. TryAcquire does not wait: acquired is false when another holder has
// the lease.
type ScopeLocker interface {
	TryAcquire(ctx context.Context, scope string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// keyedMutex serializes work per key inside one process. Waiting honours
// context cancellation.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done
func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(key, e)
		})
	}, nil
}

func (k *keyedMutex) release(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// OrderLocks serializes every writer of one order inside the process. The
// status and label services share one instance.
type OrderLocks struct {
	km *keyedMutex
}

// NewOrderLocks creates an empty lock table
func NewOrderLocks() *OrderLocks {
	return &OrderLocks{km: newKeyedMutex()}
}

// Lock blocks until the order is free or ctx is done
func (l *OrderLocks) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	return l.km.Lock(ctx, "order:"+id.String())
}
