package fulfillment_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	app "github.com/orderhub/backend/internal/application/fulfillment"
	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
	"github.com/orderhub/backend/internal/infrastructure/config"
	"github.com/orderhub/backend/internal/infrastructure/event"
	"github.com/orderhub/backend/internal/infrastructure/persistence"
)

// stack wires the services onto a real sqlite store the way cmd/server does
type stack struct {
	db         *gorm.DB
	serializer *event.EventSerializer
	orderRepo  *persistence.GormOrderRepository
	batchRepo  *persistence.GormBatchRepository
	orders     *app.OrderService
	status     *app.StatusService
	batches    *app.BatchService
	labels     *app.LabelService
}

func newStack(t *testing.T) *stack {
	t.Helper()
	database, err := persistence.NewDatabase(&config.DatabaseConfig{
		Driver:     persistence.DriverSQLite,
		SQLitePath: ":memory:",
		LogLevel:   "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.AutoMigrate())

	serializer := event.NewEventSerializer()
	event.RegisterFulfillmentEvents(serializer)

	logger := zap.NewNop()
	orderRepo := persistence.NewGormOrderRepository(database.DB, event.NewOutboxPublisher(serializer, 0))
	batchRepo := persistence.NewGormBatchRepository(database.DB)
	locks := app.NewOrderLocks()

	status := app.NewStatusService(orderRepo, locks, logger)
	batches := app.NewBatchService(batchRepo, orderRepo, app.BatchServiceConfig{}, logger)
	labels := app.NewLabelService(orderRepo, locks, logger)
	status.SetBatchRecomputer(batches)
	labels.SetBatchRecomputer(batches)

	return &stack{
		db:         database.DB,
		serializer: serializer,
		orderRepo:  orderRepo,
		batchRepo:  batchRepo,
		orders:     app.NewOrderService(orderRepo, status, logger),
		status:     status,
		batches:    batches,
		labels:     labels,
	}
}

func (s *stack) ingest(t *testing.T, channel fulfillment.Channel, rows map[string]string) map[string]uuid.UUID {
	t.Helper()
	req := app.IngestOrdersRequest{Channel: channel}
	for ext, status := range rows {
		req.Rows = append(req.Rows, app.IngestRow{
			ExternalOrderID: ext,
			Status:          status,
			Items: []app.OrderItemInput{
				{SKU: "SKU-" + ext, Name: "Tote bag", Quantity: 1, UnitPrice: decimal.NewFromInt(12)},
			},
		})
	}
	res, err := s.orders.Ingest(context.Background(), req)
	require.NoError(t, err)
	require.Zero(t, res.Failed, "%+v", res.Rows)

	ids := make(map[string]uuid.UUID, len(res.Rows))
	for _, row := range res.Rows {
		ids[row.ExternalOrderID] = *row.OrderID
	}
	return ids
}

func TestFulfillmentFlow_BatchFromPendingPool(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	ids := s.ingest(t, fulfillment.ChannelMarketplaceA, map[string]string{
		"O1": "PAID",
		"O2": "PAID",
		"O3": "SHIPPED",
	})

	pending, err := s.batches.PendingCount(ctx, "marketplace-A")
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending)

	batch, err := s.batches.CreateBatch(ctx, app.CreateBatchRequest{Platform: "marketplace-A"})
	require.NoError(t, err)
	assert.Equal(t, 2, batch.OrderCount)
	assert.EqualValues(t, 1, batch.BatchNumber)

	detail, err := s.batches.GetDetail(ctx, batch.ID)
	require.NoError(t, err)
	memberIDs := make([]uuid.UUID, len(detail.Members))
	for i, m := range detail.Members {
		memberIDs[i] = m.ID
	}
	assert.ElementsMatch(t, []uuid.UUID{ids["O1"], ids["O2"]}, memberIDs)

	pending, err = s.batches.PendingCount(ctx, "marketplace-A")
	require.NoError(t, err)
	assert.Zero(t, pending)

	_, err = s.batches.CreateBatch(ctx, app.CreateBatchRequest{Platform: "marketplace-A"})
	assert.Equal(t, shared.CodeNoEligibleOrders, shared.CodeOf(err))
}

func TestFulfillmentFlow_SkippingPackingIsRejected(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	ids := s.ingest(t, fulfillment.ChannelMarketplaceA, map[string]string{"O1": "PAID"})

	_, err := s.status.Transition(ctx, ids["O1"], app.TransitionRequest{Status: "READY_TO_SHIP"})
	assert.Equal(t, shared.CodeInvalidTransition, shared.CodeOf(err))

	detail, err := s.orders.GetByID(ctx, ids["O1"])
	require.NoError(t, err)
	assert.Equal(t, "PAID", detail.Status)
	assert.Empty(t, detail.StatusHistory)
}

func TestFulfillmentFlow_BatchCompletesWhenPackedAndPrinted(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	ids := s.ingest(t, fulfillment.ChannelMarketplaceB, map[string]string{"B1": "PAID", "B2": "PAID"})
	orderIDs := []uuid.UUID{ids["B1"], ids["B2"]}

	batch, err := s.batches.CreateBatch(ctx, app.CreateBatchRequest{})
	require.NoError(t, err)

	bulk, err := s.status.BulkTransition(ctx, app.BulkTransitionRequest{OrderIDs: orderIDs, Status: "PACKING"})
	require.NoError(t, err)
	assert.Equal(t, 2, bulk.Succeeded)

	progress, err := s.batches.GetDetail(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.PackedCount)
	assert.Equal(t, string(fulfillment.BatchStatusInProgress), progress.Status)

	printed, err := s.labels.MarkPrinted(ctx, app.MarkPrintedRequest{OrderIDs: orderIDs})
	require.NoError(t, err)
	assert.Equal(t, 2, printed.UpdatedCount)
	assert.Empty(t, printed.SkippedIDs)

	done, err := s.batches.GetDetail(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, string(fulfillment.BatchStatusCompleted), done.Status)
	assert.Equal(t, 2, done.PrintedCount)
	assert.NotNil(t, done.CompletedAt)

	again, err := s.labels.MarkPrinted(ctx, app.MarkPrintedRequest{OrderIDs: orderIDs})
	require.NoError(t, err)
	assert.Zero(t, again.UpdatedCount)
	assert.ElementsMatch(t, orderIDs, again.SkippedIDs)
	assert.Empty(t, again.Failed)

	pendingLabels, err := s.labels.PendingLabels(ctx, "", true)
	require.NoError(t, err)
	assert.Empty(t, pendingLabels)

	_, err = s.batches.CancelBatch(ctx, batch.ID, app.CancelBatchRequest{Reason: "too late"})
	assert.Equal(t, shared.CodeInvalidState, shared.CodeOf(err))
}

func TestFulfillmentFlow_CancelReleasesThroughNull(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	ids := s.ingest(t, fulfillment.ChannelMarketplaceC, map[string]string{"C1": "PAID", "C2": "PACKING"})

	first, err := s.batches.CreateBatch(ctx, app.CreateBatchRequest{Platform: "marketplace-C"})
	require.NoError(t, err)

	_, err = s.batches.CancelBatch(ctx, first.ID, app.CancelBatchRequest{Reason: "courier no-show"})
	require.NoError(t, err)

	for _, id := range ids {
		o, err := s.orders.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, o.BatchID)
	}

	second, err := s.batches.CreateBatch(ctx, app.CreateBatchRequest{Platform: "marketplace-C"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, second.BatchNumber)
	assert.Equal(t, 2, second.OrderCount)

	cancelled, err := s.batches.GetDetail(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cancelled.OrderCount)
	assert.Len(t, cancelled.Members, 2)
}

func TestFulfillmentFlow_ConcurrentReplicasNeverShareOrders(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	rows := make(map[string]string, 30)
	for i := 0; i < 30; i++ {
		rows[uuid.NewString()] = "PAID"
	}
	s.ingest(t, fulfillment.ChannelMarketplaceA, rows)

	// separate services stand in for separate replicas sharing one store
	replicas := make([]*app.BatchService, 3)
	for i := range replicas {
		replicas[i] = app.NewBatchService(s.batchRepo, s.orderRepo, app.BatchServiceConfig{}, zap.NewNop())
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []uuid.UUID
	)
	for _, replica := range replicas {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(svc *app.BatchService) {
				defer wg.Done()
				b, err := svc.CreateBatch(ctx, app.CreateBatchRequest{Platform: "marketplace-A"})
				if err != nil {
					code := shared.CodeOf(err)
					assert.Contains(t, []string{shared.CodeNoEligibleOrders, shared.CodeConcurrentBatch}, code)
					return
				}
				mu.Lock()
				created = append(created, b.ID)
				mu.Unlock()
			}(replica)
		}
	}
	wg.Wait()

	seen := make(map[uuid.UUID]bool)
	total := 0
	for _, id := range created {
		detail, err := s.batches.GetDetail(ctx, id)
		require.NoError(t, err)
		for _, m := range detail.Members {
			assert.False(t, seen[m.ID], "order %s batched twice", m.ID)
			seen[m.ID] = true
		}
		total += detail.OrderCount
	}
	assert.Equal(t, 30, total)
}

type recordingSink struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (r *recordingSink) Send(_ context.Context, e shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func TestFulfillmentFlow_CancellationSignalReachesSink(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	ids := s.ingest(t, fulfillment.ChannelMarketplaceA, map[string]string{"O1": "PAID"})

	_, err := s.status.Transition(ctx, ids["O1"], app.TransitionRequest{
		Status: "CANCELLED", ActorID: "ops-7", Reason: "buyer request",
	})
	require.NoError(t, err)

	sink := &recordingSink{}
	bus := event.NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(app.NewSignalForwarder(sink, zap.NewNop()))
	processor := event.NewOutboxProcessor(event.NewGormOutboxRepository(s.db), bus, s.serializer,
		event.OutboxProcessorConfig{BatchSize: 10}, zap.NewNop())

	// finance signal from the PAID ingest, then status change and deallocation
	assert.Equal(t, 3, processor.ProcessOnce(ctx))

	types := make([]string, 0, len(sink.events))
	for _, e := range sink.events {
		types = append(types, e.EventType())
	}
	assert.ElementsMatch(t, []string{
		fulfillment.EventTypeFinanceReconciliationRequested,
		fulfillment.EventTypeStockDeallocationRequested,
	}, types)

	assert.Zero(t, processor.ProcessOnce(ctx))
}
