package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
	"github.com/orderhub/backend/internal/infrastructure/persistence/models"
)

func newTestOrderRepository(t *testing.T) (*GormOrderRepository, *GormBatchRepository) {
	db := setupTestDB(t)
	return NewGormOrderRepository(db, newTestOutbox()), NewGormBatchRepository(db)
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var de *shared.DomainError
	require.True(t, errors.As(err, &de), "expected a domain error, got %v", err)
	assert.Equal(t, code, de.Code)
}

func TestGormOrderRepository_CreateWithEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the order, its items and creation events", func(t *testing.T) {
		repo, _ := newTestOrderRepository(t)

		o := buildOrder(t, fulfillment.ChannelMarketplaceA, "A-100", withStatus(fulfillment.StatusPaid))
		require.Len(t, o.GetDomainEvents(), 1)
		require.NoError(t, repo.CreateWithEvents(ctx, o, o.GetDomainEvents()))

		found, err := repo.FindByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "A-100", found.ExternalOrderID)
		assert.Equal(t, fulfillment.StatusPaid, found.Status)
		require.Len(t, found.Items, 1)
		assert.Equal(t, "SKU-1", found.Items[0].SKU)
		assert.True(t, found.TotalAmount.Equal(o.TotalAmount))
		assert.NotNil(t, found.PaidAt)
		assert.Nil(t, found.BatchID)
		assert.Equal(t, baseOrderTime, found.OrderDatetime)

		assert.EqualValues(t, 1, countRows(t, repo.db, &models.OutboxEntryModel{}, "event_type = ?",
			fulfillment.EventTypeFinanceReconciliationRequested))
	})

	t.Run("rejects a duplicate marketplace key", func(t *testing.T) {
		repo, _ := newTestOrderRepository(t)
		seedOrder(t, repo, fulfillment.ChannelMarketplaceA, "A-100")

		dup := buildOrder(t, fulfillment.ChannelMarketplaceA, "A-100", withStatus(fulfillment.StatusPaid))
		err := repo.CreateWithEvents(ctx, dup, dup.GetDomainEvents())

		assert.ErrorIs(t, err, fulfillment.ErrDuplicateOrder)
		assert.EqualValues(t, 1, countRows(t, repo.db, &models.OrderModel{}, ""))
		assert.EqualValues(t, 0, countRows(t, repo.db, &models.OutboxEntryModel{}, ""))
	})

	t.Run("same external id on another channel is a different order", func(t *testing.T) {
		repo, _ := newTestOrderRepository(t)
		seedOrder(t, repo, fulfillment.ChannelMarketplaceA, "X-1")
		seedOrder(t, repo, fulfillment.ChannelMarketplaceB, "X-1")

		assert.EqualValues(t, 2, countRows(t, repo.db, &models.OrderModel{}, ""))
	})

	t.Run("manual orders without external id never collide", func(t *testing.T) {
		repo, _ := newTestOrderRepository(t)
		seedOrder(t, repo, fulfillment.ChannelManual, "")
		seedOrder(t, repo, fulfillment.ChannelManual, "")

		assert.EqualValues(t, 2, countRows(t, repo.db, &models.OrderModel{}, "external_order_id IS NULL"))
	})
}

func TestGormOrderRepository_FindByExternalID(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestOrderRepository(t)
	o := seedOrder(t, repo, fulfillment.ChannelMarketplaceB, "B-7")

	found, err := repo.FindByExternalID(ctx, fulfillment.ChannelMarketplaceB, "B-7")
	require.NoError(t, err)
	assert.Equal(t, o.ID, found.ID)

	_, err = repo.FindByExternalID(ctx, fulfillment.ChannelMarketplaceA, "B-7")
	requireCode(t, err, shared.CodeNotFound)

	_, err = repo.FindByID(ctx, uuid.New())
	requireCode(t, err, shared.CodeNotFound)
}

func TestGormOrderRepository_FindByIDs(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestOrderRepository(t)
	a := seedOrder(t, repo, fulfillment.ChannelMarketplaceA, "A-1")
	b := seedOrder(t, repo, fulfillment.ChannelMarketplaceA, "A-2")

	found, err := repo.FindByIDs(ctx, []uuid.UUID{a.ID, uuid.New(), b.ID})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	empty, err := repo.FindByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGormOrderRepository_SaveTransition(t *testing.T) {
	ctx := context.Background()
	actor := fulfillment.ActorContext{ActorID: "ops-1", Source: "api", Reason: "payment captured"}

	t.Run("persists status, history and signals", func(t *testing.T) {
		repo, _ := newTestOrderRepository(t)
		seeded := seedOrder(t, repo, fulfillment.ChannelMarketplaceA, "A-1")

		o, err := repo.FindByID(ctx, seeded.ID)
		require.NoError(t, err)
		change, err := o.Transition(fulfillment.StatusPaid, actor, baseOrderTime.Add(time.Hour))
		require.NoError(t, err)

		require.NoError(t, repo.SaveTransition(ctx, o, change, o.GetDomainEvents()))
		assert.Equal(t, seeded.Version+1, o.Version)

		reloaded, err := repo.FindByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, fulfillment.StatusPaid, reloaded.Status)
		assert.Equal(t, o.Version, reloaded.Version)
		require.NotNil(t, reloaded.PaidAt)
		assert.Equal(t, baseOrderTime.Add(time.Hour), *reloaded.PaidAt)

		history, err := repo.FindStatusHistory(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, fulfillment.StatusNew, history[0].FromStatus)
		assert.Equal(t, fulfillment.StatusPaid, history[0].ToStatus)
		assert.Equal(t, "payment captured", history[0].Reason)

		assert.EqualValues(t, 1, countRows(t, repo.db, &models.OutboxEntryModel{}, "event_type = ?",
			fulfillment.EventTypeOrderStatusChanged))
		assert.EqualValues(t, 1, countRows(t, repo.db, &models.OutboxEntryModel{}, "event_type = ?",
			fulfillment.EventTypeFinanceReconciliationRequested))
	})

	t.Run("a stale copy loses and leaves no trace", func(t *testing.T) {
		repo, _ := newTestOrderRepository(t)
		seeded := seedOrder(t, repo, fulfillment.ChannelMarketplaceA, "A-1")

		first, err := repo.FindByID(ctx, seeded.ID)
		require.NoError(t, err)
		second, err := repo.FindByID(ctx, seeded.ID)
		require.NoError(t, err)

		change, err := first.Transition(fulfillment.StatusPaid, actor, baseOrderTime.Add(time.Hour))
		require.NoError(t, err)
		require.NoError(t, repo.SaveTransition(ctx, first, change, first.GetDomainEvents()))

		change, err = second.Transition(fulfillment.StatusCancelled, actor, baseOrderTime.Add(2*time.Hour))
		require.NoError(t, err)
		err = repo.SaveTransition(ctx, second, change, second.GetDomainEvents())
		requireCode(t, err, shared.CodeConcurrencyConflict)

		reloaded, err := repo.FindByID(ctx, seeded.ID)
		require.NoError(t, err)
		assert.Equal(t, fulfillment.StatusPaid, reloaded.Status)
		assert.EqualValues(t, 1, countRows(t, repo.db, &models.StatusHistoryModel{}, "order_id = ?", seeded.ID))
		assert.EqualValues(t, 0, countRows(t, repo.db, &models.OutboxEntryModel{}, "event_type = ?",
			fulfillment.EventTypeStockDeallocationRequested))
	})

	t.Run("reports a missing order as not found", func(t *testing.T) {
		repo, _ := newTestOrderRepository(t)
		o := buildOrder(t, fulfillment.ChannelMarketplaceA, "ghost")
		change, err := o.Transition(fulfillment.StatusPaid, actor, baseOrderTime)
		require.NoError(t, err)

		err = repo.SaveTransition(ctx, o, change, nil)
		requireCode(t, err, shared.CodeNotFound)
	})
}

func TestGormOrderRepository_SavePrinted(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestOrderRepository(t)
	seeded := seedOrder(t, repo, fulfillment.ChannelMarketplaceA, "A-1", withStatus(fulfillment.StatusPacking))

	o, err := repo.FindByID(ctx, seeded.ID)
	require.NoError(t, err)
	stale, err := repo.FindByID(ctx, seeded.ID)
	require.NoError(t, err)

	printedAt := baseOrderTime.Add(3 * time.Hour)
	updated, err := o.MarkPrinted(printedAt)
	require.NoError(t, err)
	require.True(t, updated)
	require.NoError(t, repo.SavePrinted(ctx, o))

	reloaded, err := repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.PrintedAt)
	assert.Equal(t, printedAt, *reloaded.PrintedAt)

	_, err = stale.MarkPrinted(printedAt.Add(time.Minute))
	require.NoError(t, err)
	requireCode(t, repo.SavePrinted(ctx, stale), shared.CodeConcurrencyConflict)
}

func TestGormOrderRepository_SavePrinted_SQL(t *testing.T) {
	db, mock, mockDB := setupMockPostgres(t)
	defer mockDB.Close()
	repo := NewGormOrderRepository(db, nil)

	o := buildOrder(t, fulfillment.ChannelMarketplaceA, "A-1", withStatus(fulfillment.StatusPacking))
	_, err := o.MarkPrinted(baseOrderTime)
	require.NoError(t, err)

	t.Run("versioned update", func(t *testing.T) {
		mock.ExpectExec(`UPDATE "orders" SET "printed_at"=\$1,"updated_at"=\$2,"version"=version \+ 1 WHERE id = \$3 AND version = \$4`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), o.ID, o.Version).
			WillReturnResult(sqlmock.NewResult(0, 1))

		version := o.Version
		require.NoError(t, repo.SavePrinted(context.Background(), o))
		assert.Equal(t, version+1, o.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no row matched and the order exists", func(t *testing.T) {
		mock.ExpectExec(`UPDATE "orders" SET .* WHERE id = \$3 AND version = \$4`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "orders" WHERE id = \$1`).
			WithArgs(o.ID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		err := repo.SavePrinted(context.Background(), o)
		requireCode(t, err, shared.CodeConcurrencyConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormOrderRepository_FindAll(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestOrderRepository(t)

	alice := seedOrder(t, repo, fulfillment.ChannelMarketplaceA, "A-1",
		withRecipient("Alice Liddell"), placedAt(baseOrderTime), withStatus(fulfillment.StatusPaid))
	seedOrder(t, repo, fulfillment.ChannelMarketplaceA, "A-2",
		placedAt(baseOrderTime.Add(time.Hour)), withSKU("MUG-BLUE"))
	seedOrder(t, repo, fulfillment.ChannelMarketplaceB, "B-1",
		placedAt(baseOrderTime.Add(2*time.Hour)), withStatus(fulfillment.StatusPaid))
	seedOrder(t, repo, fulfillment.ChannelMarketplaceB, "B-2",
		placedAt(baseOrderTime.Add(3*time.Hour)), withStatus(fulfillment.StatusPacking))
	seedOrder(t, repo, fulfillment.ChannelManual, "",
		placedAt(baseOrderTime.Add(4*time.Hour)))

	platformA := fulfillment.ChannelMarketplaceA

	tests := []struct {
		name      string
		query     fulfillment.OrderQuery
		wantTotal int64
	}{
		{"everything", fulfillment.OrderQuery{}, 5},
		{"by platform", fulfillment.OrderQuery{Platform: &platformA}, 2},
		{"by status", fulfillment.OrderQuery{Statuses: []fulfillment.OrderStatus{fulfillment.StatusPaid}}, 2},
		{"search recipient", fulfillment.OrderQuery{Filter: shared.Filter{Search: "alice"}}, 1},
		{"search sku", fulfillment.OrderQuery{Filter: shared.Filter{Search: "mug-blue"}}, 1},
		{"search external id", fulfillment.OrderQuery{Filter: shared.Filter{Search: "b-"}}, 2},
		{"unprinted", fulfillment.OrderQuery{Filter: shared.Filter{Filters: map[string]any{"printed": false}}}, 5},
		{"printed", fulfillment.OrderQuery{Filter: shared.Filter{Filters: map[string]any{"printed": true}}}, 0},
		{"date window", fulfillment.OrderQuery{Filter: shared.Filter{
			DateFrom: timePtr(baseOrderTime.Add(time.Hour)),
			DateTo:   timePtr(baseOrderTime.Add(3 * time.Hour)),
		}}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders, total, err := repo.FindAll(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			assert.Len(t, orders, int(tt.wantTotal))
		})
	}

	t.Run("pages in the requested order", func(t *testing.T) {
		orders, total, err := repo.FindAll(ctx, fulfillment.OrderQuery{Filter: shared.Filter{
			Page: 1, PageSize: 2, OrderBy: "order_datetime", OrderDir: "asc",
		}})
		require.NoError(t, err)
		assert.EqualValues(t, 5, total)
		require.Len(t, orders, 2)
		assert.Equal(t, alice.ID, orders[0].ID)

		orders, _, err = repo.FindAll(ctx, fulfillment.OrderQuery{Filter: shared.Filter{
			Page: 3, PageSize: 2, OrderBy: "order_datetime", OrderDir: "asc",
		}})
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Equal(t, fulfillment.ChannelManual, orders[0].Channel)
	})

	t.Run("unknown sort field falls back", func(t *testing.T) {
		_, total, err := repo.FindAll(ctx, fulfillment.OrderQuery{Filter: shared.Filter{OrderBy: "1; DROP TABLE orders"}})
		require.NoError(t, err)
		assert.EqualValues(t, 5, total)
	})
}

func TestGormOrderRepository_PendingAndEligible(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestOrderRepository(t)

	later := seedOrder(t, repo, fulfillment.ChannelMarketplaceA, "A-2",
		withStatus(fulfillment.StatusPaid), placedAt(baseOrderTime.Add(time.Hour)))
	earlier := seedOrder(t, repo, fulfillment.ChannelMarketplaceA, "A-1",
		withStatus(fulfillment.StatusPacking), placedAt(baseOrderTime))
	seedOrder(t, repo, fulfillment.ChannelMarketplaceB, "B-1", withStatus(fulfillment.StatusPaid))
	seedOrder(t, repo, fulfillment.ChannelMarketplaceB, "B-2", withStatus(fulfillment.StatusShipped))
	seedOrder(t, repo, fulfillment.ChannelMarketplaceB, "B-3")

	platformA := fulfillment.ChannelMarketplaceA
	pending, err := repo.FindPendingLabels(ctx, &platformA, fulfillment.LabelPendingStatuses(false))
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, earlier.ID, pending[0].ID)
	assert.Equal(t, later.ID, pending[1].ID)

	ready := []fulfillment.OrderStatus{fulfillment.StatusPaid, fulfillment.StatusPacking}
	n, err := repo.CountEligible(ctx, nil, ready)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = repo.CountEligible(ctx, &platformA, ready)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.CountEligible(ctx, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChunkIDs(t *testing.T) {
	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
	}

	chunks := chunkIDs(ids, 2)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[2], 1)
	assert.Empty(t, chunkIDs(nil, 2))
}

func timePtr(t time.Time) *time.Time {
	return &t
}
