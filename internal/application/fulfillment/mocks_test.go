package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
)

// MockOrderRepository is a mock implementation of fulfillment.OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*fulfillment.Order, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*fulfillment.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByExternalID(ctx context.Context, channel fulfillment.Channel, externalID string) (*fulfillment.Order, error) {
	args := m.Called(ctx, channel, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.Order), args.Error(1)
}

func (m *MockOrderRepository) FindAll(ctx context.Context, query fulfillment.OrderQuery) ([]*fulfillment.Order, int64, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*fulfillment.Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderRepository) FindPendingLabels(ctx context.Context, platform *fulfillment.Channel, statuses []fulfillment.OrderStatus) ([]*fulfillment.Order, error) {
	args := m.Called(ctx, platform, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*fulfillment.Order), args.Error(1)
}

func (m *MockOrderRepository) CountEligible(ctx context.Context, platform *fulfillment.Channel, ready []fulfillment.OrderStatus) (int64, error) {
	args := m.Called(ctx, platform, ready)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOrderRepository) CreateWithEvents(ctx context.Context, order *fulfillment.Order, events []shared.DomainEvent) error {
	args := m.Called(ctx, order, events)
	return args.Error(0)
}

func (m *MockOrderRepository) SaveTransition(ctx context.Context, order *fulfillment.Order, change fulfillment.StatusChange, events []shared.DomainEvent) error {
	args := m.Called(ctx, order, change, events)
	return args.Error(0)
}

func (m *MockOrderRepository) SavePrinted(ctx context.Context, order *fulfillment.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) FindStatusHistory(ctx context.Context, orderID uuid.UUID) ([]fulfillment.StatusChange, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fulfillment.StatusChange), args.Error(1)
}

// MockBatchRecomputer records batch refreshes
type MockBatchRecomputer struct {
	mock.Mock
}

func (m *MockBatchRecomputer) RecomputeProgress(ctx context.Context, batchID uuid.UUID) (*BatchResponse, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BatchResponse), args.Error(1)
}

// MockScopeLocker is a mock implementation of ScopeLocker
type MockScopeLocker struct {
	mock.Mock
}

func (m *MockScopeLocker) TryAcquire(ctx context.Context, scope string, ttl time.Duration) (func(context.Context) error, bool, error) {
	args := m.Called(ctx, scope, ttl)
	release, _ := args.Get(0).(func(context.Context) error)
	return release, args.Bool(1), args.Error(2)
}

// MockLabelRenderer is a mock implementation of fulfillment.LabelRenderer
type MockLabelRenderer struct {
	mock.Mock
}

func (m *MockLabelRenderer) Render(ctx context.Context, sheet fulfillment.LabelSheet) ([]byte, error) {
	args := m.Called(ctx, sheet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockLabelRenderer) ContentType() string {
	return "application/pdf"
}

// MockArtifactStore is a mock implementation of fulfillment.ArtifactStore
type MockArtifactStore struct {
	mock.Mock
}

func (m *MockArtifactStore) Save(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

// MockSignalSink is a mock implementation of SignalSink
type MockSignalSink struct {
	mock.Mock
}

func (m *MockSignalSink) Send(ctx context.Context, event shared.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
