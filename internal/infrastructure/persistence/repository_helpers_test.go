package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/infrastructure/config"
	"github.com/orderhub/backend/internal/infrastructure/event"
)

// setupTestDB opens an in-memory sqlite database with the fulfillment schema
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDatabase(&config.DatabaseConfig{
		Driver:     DriverSQLite,
		SQLitePath: ":memory:",
		LogLevel:   "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.AutoMigrate())
	return db.DB
}

// setupMockPostgres returns a postgres-dialect gorm DB backed by sqlmock
func setupMockPostgres(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func newTestOutbox() *event.OutboxPublisher {
	serializer := event.NewEventSerializer()
	event.RegisterFulfillmentEvents(serializer)
	return event.NewOutboxPublisher(serializer, 0)
}

var baseOrderTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type orderOpt func(p *fulfillment.NewOrderParams)

func withStatus(s fulfillment.OrderStatus) orderOpt {
	return func(p *fulfillment.NewOrderParams) { p.InitialStatus = s }
}

func withRecipient(name string) orderOpt {
	return func(p *fulfillment.NewOrderParams) { p.RecipientName = name }
}

func withSKU(sku string) orderOpt {
	return func(p *fulfillment.NewOrderParams) { p.Items[0].SKU = sku }
}

func placedAt(at time.Time) orderOpt {
	return func(p *fulfillment.NewOrderParams) { p.OrderDatetime = at }
}

func buildOrder(t *testing.T, channel fulfillment.Channel, externalID string, opts ...orderOpt) *fulfillment.Order {
	t.Helper()
	p := fulfillment.NewOrderParams{
		Channel:         channel,
		ExternalOrderID: externalID,
		Items: []fulfillment.OrderItem{
			{SKU: "SKU-1", Name: "Mug", Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
		},
		ShippingFee:   decimal.NewFromInt(5),
		OrderDatetime: baseOrderTime,
	}
	for _, opt := range opts {
		opt(&p)
	}
	o, err := fulfillment.NewOrder(p)
	require.NoError(t, err)
	return o
}

// seedOrder builds an order and stores it with its creation events
func seedOrder(t *testing.T, repo *GormOrderRepository, channel fulfillment.Channel, externalID string, opts ...orderOpt) *fulfillment.Order {
	t.Helper()
	o := buildOrder(t, channel, externalID, opts...)
	require.NoError(t, repo.CreateWithEvents(context.Background(), o, o.GetDomainEvents()))
	o.ClearDomainEvents()
	return o
}

func countRows(t *testing.T, db *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
