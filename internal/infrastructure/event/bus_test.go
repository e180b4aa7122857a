package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orderhub/backend/internal/domain/shared"
)

// testEvent implements DomainEvent for testing
type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New()),
		Data:            "test data",
	}
}

// testHandler implements EventHandler for testing
type testHandler struct {
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panicWith  any
	mu         sync.Mutex
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	h.handled = append(h.handled, event)
	return h.err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func TestInMemoryEventBus_PublishRoutesByType(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	created := newTestHandler("Created")
	updated := newTestHandler("Updated")
	bus.Subscribe(created)
	bus.Subscribe(updated)

	err := bus.Publish(context.Background(), newTestEvent("Created"), newTestEvent("Created"))
	require.NoError(t, err)

	assert.Equal(t, 2, created.count())
	assert.Equal(t, 0, updated.count())
}

func TestInMemoryEventBus_WildcardReceivesEverything(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	all := newTestHandler()
	bus.Subscribe(all)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("A"), newTestEvent("B")))
	assert.Equal(t, 2, all.count())
	assert.Equal(t, 1, bus.HandlerCount("anything"))
}

func TestInMemoryEventBus_ExplicitTypesOverrideHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler("Created")
	bus.Subscribe(h, "Shipped")

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("Created")))
	assert.Equal(t, 0, h.count())

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("Shipped")))
	assert.Equal(t, 1, h.count())
}

func TestInMemoryEventBus_HandlerErrorIsReturned(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	failing := newTestHandler("Created")
	failing.err = errors.New("sink down")
	ok := newTestHandler("Created")
	bus.Subscribe(failing)
	bus.Subscribe(ok)

	err := bus.Publish(context.Background(), newTestEvent("Created"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	assert.Equal(t, 1, ok.count(), "other handlers still run")
}

func TestInMemoryEventBus_PanicBecomesError(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler("Created")
	h.panicWith = "boom"
	bus.Subscribe(h)

	err := bus.Publish(context.Background(), newTestEvent("Created"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler("Created", "Updated")
	bus.Subscribe(h)
	require.Equal(t, 1, bus.HandlerCount("Updated"))

	bus.Unsubscribe(h)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("Created")))
	assert.Equal(t, 0, h.count())
	assert.Equal(t, 0, bus.HandlerCount("Updated"))
}

func TestInMemoryEventBus_ConcurrentPublish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler("Created")
	bus.Subscribe(h)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.Publish(context.Background(), newTestEvent("Created"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, h.count())
}
