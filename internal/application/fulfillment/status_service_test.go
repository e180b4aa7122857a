package fulfillment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
)

func createTestOrder(t *testing.T, status fulfillment.OrderStatus) *fulfillment.Order {
	t.Helper()
	o, err := fulfillment.NewOrder(fulfillment.NewOrderParams{
		Channel:         fulfillment.ChannelMarketplaceA,
		ExternalOrderID: "A-" + uuid.NewString()[:8],
		Items: []fulfillment.OrderItem{
			{SKU: "SKU-1", Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
		},
		InitialStatus: status,
	})
	require.NoError(t, err)
	o.ClearDomainEvents()
	return o
}

func newTestStatusService(repo *MockOrderRepository) *StatusService {
	svc := NewStatusService(repo, NewOrderLocks(), zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestStatusService_Transition(t *testing.T) {
	ctx := context.Background()

	t.Run("valid transition persists change and events", func(t *testing.T) {
		repo := new(MockOrderRepository)
		order := createTestOrder(t, fulfillment.StatusNew)
		repo.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		repo.On("SaveTransition", mock.Anything, order,
			mock.MatchedBy(func(c fulfillment.StatusChange) bool {
				return c.FromStatus == fulfillment.StatusNew && c.ToStatus == fulfillment.StatusPaid && c.Actor == "api:u-7"
			}),
			mock.MatchedBy(func(events []shared.DomainEvent) bool {
				return len(events) == 2 &&
					events[0].EventType() == fulfillment.EventTypeOrderStatusChanged &&
					events[1].EventType() == fulfillment.EventTypeFinanceReconciliationRequested
			}),
		).Return(nil)

		svc := newTestStatusService(repo)
		resp, err := svc.Transition(ctx, order.ID, TransitionRequest{Status: "PAID", ActorID: "u-7"})

		require.NoError(t, err)
		assert.Equal(t, "PAID", resp.Status)
		assert.NotNil(t, resp.PaidAt)
		assert.Empty(t, order.GetDomainEvents())
		repo.AssertExpectations(t)
	})

	t.Run("invalid transition is rejected without saving", func(t *testing.T) {
		repo := new(MockOrderRepository)
		order := createTestOrder(t, fulfillment.StatusPaid)
		repo.On("FindByID", mock.Anything, order.ID).Return(order, nil)

		svc := newTestStatusService(repo)
		_, err := svc.Transition(ctx, order.ID, TransitionRequest{Status: "READY_TO_SHIP"})

		require.Error(t, err)
		assert.Equal(t, shared.CodeInvalidTransition, shared.CodeOf(err))
		repo.AssertNotCalled(t, "SaveTransition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown order", func(t *testing.T) {
		repo := new(MockOrderRepository)
		id := uuid.New()
		repo.On("FindByID", mock.Anything, id).Return(nil, fulfillment.NewOrderNotFoundError(id))

		svc := newTestStatusService(repo)
		_, err := svc.Transition(ctx, id, TransitionRequest{Status: "PAID"})
		assert.Equal(t, shared.CodeNotFound, shared.CodeOf(err))
	})

	t.Run("stale version surfaces as concurrent modification", func(t *testing.T) {
		repo := new(MockOrderRepository)
		order := createTestOrder(t, fulfillment.StatusNew)
		repo.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		repo.On("SaveTransition", mock.Anything, order, mock.Anything, mock.Anything).
			Return(fulfillment.NewStaleOrderError(order.ID))

		svc := newTestStatusService(repo)
		_, err := svc.Transition(ctx, order.ID, TransitionRequest{Status: "CANCELLED"})
		assert.Equal(t, shared.CodeConcurrencyConflict, shared.CodeOf(err))
	})

	t.Run("batched order refreshes its batch", func(t *testing.T) {
		repo := new(MockOrderRepository)
		batches := new(MockBatchRecomputer)
		order := createTestOrder(t, fulfillment.StatusPaid)
		batchID := uuid.New()
		order.BatchID = &batchID

		repo.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		repo.On("SaveTransition", mock.Anything, order, mock.Anything, mock.Anything).Return(nil)
		batches.On("RecomputeProgress", mock.Anything, batchID).Return(&BatchResponse{ID: batchID}, nil)

		svc := newTestStatusService(repo)
		svc.SetBatchRecomputer(batches)
		_, err := svc.Transition(ctx, order.ID, TransitionRequest{Status: "PACKING"})

		require.NoError(t, err)
		batches.AssertExpectations(t)
	})

	t.Run("batch refresh survives caller cancellation after commit", func(t *testing.T) {
		repo := new(MockOrderRepository)
		batches := new(MockBatchRecomputer)
		order := createTestOrder(t, fulfillment.StatusPaid)
		batchID := uuid.New()
		order.BatchID = &batchID

		reqCtx, cancel := context.WithCancel(context.Background())
		defer cancel()

		repo.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		repo.On("SaveTransition", mock.Anything, order, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { cancel() }).
			Return(nil)
		batches.On("RecomputeProgress",
			mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }),
			batchID,
		).Return(&BatchResponse{ID: batchID, PackedCount: 1}, nil)

		svc := newTestStatusService(repo)
		svc.SetBatchRecomputer(batches)
		resp, err := svc.Transition(reqCtx, order.ID, TransitionRequest{Status: "PACKING"})

		require.NoError(t, err)
		assert.Equal(t, "PACKING", resp.Status)
		require.Error(t, reqCtx.Err())
		batches.AssertExpectations(t)
	})

	t.Run("unknown status is a validation error", func(t *testing.T) {
		svc := newTestStatusService(new(MockOrderRepository))
		_, err := svc.Transition(ctx, uuid.New(), TransitionRequest{Status: "LOST"})
		assert.Equal(t, shared.CodeInvalidInput, shared.CodeOf(err))
	})
}

func TestStatusService_BulkTransition(t *testing.T) {
	repo := new(MockOrderRepository)
	ok1 := createTestOrder(t, fulfillment.StatusPaid)
	ok2 := createTestOrder(t, fulfillment.StatusPacking)
	bad := createTestOrder(t, fulfillment.StatusDelivered)
	missing := uuid.New()

	for _, o := range []*fulfillment.Order{ok1, ok2, bad} {
		repo.On("FindByID", mock.Anything, o.ID).Return(o, nil)
	}
	repo.On("FindByID", mock.Anything, missing).Return(nil, fulfillment.NewOrderNotFoundError(missing))
	repo.On("SaveTransition", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := newTestStatusService(repo)
	res, err := svc.BulkTransition(context.Background(), BulkTransitionRequest{
		OrderIDs: []uuid.UUID{ok1.ID, bad.ID, missing, ok2.ID},
		Status:   "CANCELLED",
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Results, 4)
	assert.True(t, res.Results[0].Success)
	assert.Equal(t, "CANCELLED", res.Results[0].Status)
	assert.Equal(t, shared.CodeInvalidTransition, res.Results[1].Error.Kind)
	assert.Equal(t, shared.CodeNotFound, res.Results[2].Error.Kind)
	assert.Equal(t, ok2.ID, res.Results[3].OrderID)
	assert.True(t, res.Results[3].Success)
}

func TestStatusService_BulkTransition_CancelledContext(t *testing.T) {
	repo := new(MockOrderRepository)
	svc := newTestStatusService(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	res, err := svc.BulkTransition(ctx, BulkTransitionRequest{OrderIDs: ids, Status: "PAID"})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	for _, r := range res.Results {
		assert.Equal(t, shared.CodeCancelled, r.Error.Kind)
	}
	repo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}
