package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
	"github.com/orderhub/backend/internal/infrastructure/persistence/models"
)

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db     *gorm.DB
	outbox shared.OutboxEventSaver
}

// NewGormOrderRepository creates a new GormOrderRepository. Events passed to
// the write methods go through outbox inside the same transaction.
func NewGormOrderRepository(db *gorm.DB, outbox shared.OutboxEventSaver) *GormOrderRepository {
	return &GormOrderRepository{db: db, outbox: outbox}
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("line_no ASC")
	})
}

// FindByID finds an order by ID with its items
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	var model models.OrderModel
	if err := preloadItems(r.db.WithContext(ctx)).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fulfillment.NewOrderNotFoundError(id)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs loads the orders that exist among ids
func (r *GormOrderRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*fulfillment.Order, error) {
	if len(ids) == 0 {
		return []*fulfillment.Order{}, nil
	}
	var orderModels []models.OrderModel
	for _, chunk := range chunkIDs(ids, inClauseChunk) {
		var page []models.OrderModel
		if err := preloadItems(r.db.WithContext(ctx)).Where("id IN ?", chunk).Find(&page).Error; err != nil {
			return nil, err
		}
		orderModels = append(orderModels, page...)
	}
	return toDomainOrders(orderModels), nil
}

// FindByExternalID looks up an order by its marketplace key
func (r *GormOrderRepository) FindByExternalID(ctx context.Context, channel fulfillment.Channel, externalID string) (*fulfillment.Order, error) {
	var model models.OrderModel
	err := preloadItems(r.db.WithContext(ctx)).
		Where("channel = ? AND external_order_id = ?", channel, externalID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewDomainErrorf(shared.CodeNotFound,
				"order %s on %s not found", externalID, channel)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists orders matching the query and returns the total count
func (r *GormOrderRepository) FindAll(ctx context.Context, query fulfillment.OrderQuery) ([]*fulfillment.Order, int64, error) {
	filter := query.Filter.Normalize()

	scoped := func() *gorm.DB {
		return r.applyOrderQuery(r.db.WithContext(ctx).Model(&models.OrderModel{}), query)
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orderModels []models.OrderModel
	err := preloadItems(r.applyFilter(scoped(), filter)).Find(&orderModels).Error
	if err != nil {
		return nil, 0, err
	}
	return toDomainOrders(orderModels), total, nil
}

// FindPendingLabels lists unprinted orders in statuses, oldest first
func (r *GormOrderRepository) FindPendingLabels(ctx context.Context, platform *fulfillment.Channel, statuses []fulfillment.OrderStatus) ([]*fulfillment.Order, error) {
	if len(statuses) == 0 {
		return []*fulfillment.Order{}, nil
	}
	q := r.db.WithContext(ctx).Where("printed_at IS NULL AND status IN ?", statuses)
	if platform != nil {
		q = q.Where("channel = ?", *platform)
	}

	var orderModels []models.OrderModel
	if err := preloadItems(q).Order("order_datetime ASC, id ASC").Find(&orderModels).Error; err != nil {
		return nil, err
	}
	return toDomainOrders(orderModels), nil
}

// CountEligible counts unbatched orders in the ready statuses
func (r *GormOrderRepository) CountEligible(ctx context.Context, platform *fulfillment.Channel, ready []fulfillment.OrderStatus) (int64, error) {
	if len(ready) == 0 {
		return 0, nil
	}
	var count int64
	err := eligibleScope(r.db.WithContext(ctx).Model(&models.OrderModel{}), platform, ready).
		Count(&count).Error
	return count, err
}

// CreateWithEvents inserts a new order and its items and writes events to
// the outbox in one transaction
func (r *GormOrderRepository) CreateWithEvents(ctx context.Context, order *fulfillment.Order, events []shared.DomainEvent) error {
	model := models.OrderModelFromDomain(order)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		return r.saveEvents(ctx, tx, events)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fulfillment.ErrDuplicateOrder
	}
	return err
}

// SaveTransition persists a status change with an optimistic version check,
// appends the history row and writes events to the outbox
func (r *GormOrderRepository) SaveTransition(ctx context.Context, order *fulfillment.Order, change fulfillment.StatusChange, events []shared.DomainEvent) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.OrderModel{}).
			Where("id = ? AND version = ?", order.ID, order.Version).
			Updates(map[string]any{
				"status":       order.Status,
				"paid_at":      order.PaidAt,
				"shipped_at":   order.ShippedAt,
				"delivered_at": order.DeliveredAt,
				"cancelled_at": order.CancelledAt,
				"updated_at":   order.UpdatedAt,
				"version":      gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return staleOrMissing(tx, order.ID)
		}

		if err := tx.Create(models.StatusHistoryModelFromDomain(change)).Error; err != nil {
			return err
		}
		return r.saveEvents(ctx, tx, events)
	})
	if err != nil {
		return err
	}
	order.IncrementVersion()
	return nil
}

// SavePrinted records printed_at with an optimistic version check
func (r *GormOrderRepository) SavePrinted(ctx context.Context, order *fulfillment.Order) error {
	db := r.db.WithContext(ctx)
	result := db.Model(&models.OrderModel{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(map[string]any{
			"printed_at": order.PrintedAt,
			"updated_at": order.UpdatedAt,
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return staleOrMissing(db, order.ID)
	}
	order.IncrementVersion()
	return nil
}

// FindStatusHistory returns the committed transitions of an order, oldest first
func (r *GormOrderRepository) FindStatusHistory(ctx context.Context, orderID uuid.UUID) ([]fulfillment.StatusChange, error) {
	var rows []models.StatusHistoryModel
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("changed_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]fulfillment.StatusChange, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// staleOrMissing tells a lost version check apart from a missing row
func staleOrMissing(db *gorm.DB, id uuid.UUID) error {
	var count int64
	if err := db.Model(&models.OrderModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fulfillment.NewOrderNotFoundError(id)
	}
	return fulfillment.NewStaleOrderError(id)
}

func (r *GormOrderRepository) saveEvents(ctx context.Context, tx *gorm.DB, events []shared.DomainEvent) error {
	if r.outbox == nil || len(events) == 0 {
		return nil
	}
	return r.outbox.SaveEvents(ctx, tx, events...)
}

func (r *GormOrderRepository) applyOrderQuery(q *gorm.DB, query fulfillment.OrderQuery) *gorm.DB {
	if query.Platform != nil {
		q = q.Where("channel = ?", *query.Platform)
	}
	if len(query.Statuses) > 0 {
		q = q.Where("status IN ?", query.Statuses)
	}
	if query.BatchID != nil {
		q = q.Where("batch_id = ?", *query.BatchID)
	}
	if query.DateFrom != nil {
		q = q.Where("order_datetime >= ?", query.DateFrom.UTC())
	}
	if query.DateTo != nil {
		q = q.Where("order_datetime <= ?", query.DateTo.UTC())
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		q = q.Where(
			"LOWER(external_order_id) LIKE ? OR LOWER(recipient_name) LIKE ? OR id IN (?)",
			pattern, pattern,
			r.db.Model(&models.OrderItemModel{}).Select("order_id").Where("LOWER(sku) LIKE ?", pattern),
		)
	}
	for key, value := range query.Filters {
		switch key {
		case "printed":
			if printed, ok := value.(bool); ok {
				if printed {
					q = q.Where("printed_at IS NOT NULL")
				} else {
					q = q.Where("printed_at IS NULL")
				}
			}
		case "unbatched":
			if v, ok := value.(bool); ok && v {
				q = q.Where("batch_id IS NULL")
			}
		}
	}
	return q
}

// applyFilter applies paging and ordering
func (r *GormOrderRepository) applyFilter(q *gorm.DB, filter shared.Filter) *gorm.DB {
	field := ValidateSortField(filter.OrderBy, OrderSortFields, "created_at")
	q = q.Order(field + " " + ValidateSortOrder(filter.OrderDir)).Order("id ASC")
	return q.Offset(filter.Offset()).Limit(filter.PageSize)
}

func eligibleScope(q *gorm.DB, platform *fulfillment.Channel, ready []fulfillment.OrderStatus) *gorm.DB {
	q = q.Where("batch_id IS NULL AND status IN ?", ready)
	if platform != nil {
		q = q.Where("channel = ?", *platform)
	}
	return q
}

func toDomainOrders(rows []models.OrderModel) []*fulfillment.Order {
	out := make([]*fulfillment.Order, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// inClauseChunk keeps IN lists well under the postgres bind parameter limit
const inClauseChunk = 1000

func chunkIDs(ids []uuid.UUID, size int) [][]uuid.UUID {
	var chunks [][]uuid.UUID
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

// Ensure GormOrderRepository implements OrderRepository
var _ fulfillment.OrderRepository = (*GormOrderRepository)(nil)
