package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/orderhub/backend/internal/domain/fulfillment"
)

// OrderModel is the persistence model for the Order aggregate root.
// Manual orders store a NULL external id so the (channel, external_order_id)
// unique index only binds marketplace orders.
type OrderModel struct {
	AggregateModel
	ExternalOrderID *string                 `gorm:"type:varchar(100);uniqueIndex:idx_orders_channel_external,priority:2"`
	Channel         fulfillment.Channel     `gorm:"type:varchar(32);not null;uniqueIndex:idx_orders_channel_external,priority:1;index:idx_orders_channel_status,priority:1"`
	Status          fulfillment.OrderStatus `gorm:"type:varchar(20);not null;default:'NEW';index:idx_orders_channel_status,priority:2"`
	Items           []OrderItemModel        `gorm:"foreignKey:OrderID;references:ID"`
	ShippingFee     decimal.Decimal         `gorm:"type:decimal(18,4);not null;default:0"`
	Discount        decimal.Decimal         `gorm:"type:decimal(18,4);not null;default:0"`
	TotalAmount     decimal.Decimal         `gorm:"type:decimal(18,4);not null;default:0"`
	RecipientName   string                  `gorm:"type:varchar(200)"`
	ShippingAddress string                  `gorm:"type:text"`
	Remark          string                  `gorm:"type:text"`
	OrderDatetime   time.Time               `gorm:"not null;index"`
	PaidAt          *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	PrintedAt       *time.Time `gorm:"index"`
	BatchID         *uuid.UUID `gorm:"type:uuid;index"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() *fulfillment.Order {
	order := &fulfillment.Order{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Channel:           m.Channel,
		Status:            m.Status,
		ShippingFee:       m.ShippingFee,
		Discount:          m.Discount,
		TotalAmount:       m.TotalAmount,
		RecipientName:     m.RecipientName,
		ShippingAddress:   m.ShippingAddress,
		Remark:            m.Remark,
		OrderDatetime:     m.OrderDatetime.UTC(),
		PaidAt:            utcPtr(m.PaidAt),
		ShippedAt:         utcPtr(m.ShippedAt),
		DeliveredAt:       utcPtr(m.DeliveredAt),
		CancelledAt:       utcPtr(m.CancelledAt),
		PrintedAt:         utcPtr(m.PrintedAt),
		BatchID:           m.BatchID,
	}
	if m.ExternalOrderID != nil {
		order.ExternalOrderID = *m.ExternalOrderID
	}
	order.Items = make([]fulfillment.OrderItem, len(m.Items))
	for i, item := range m.Items {
		order.Items[i] = item.ToDomain()
	}
	return order
}

// FromDomain populates the persistence model from a domain Order
func (m *OrderModel) FromDomain(o *fulfillment.Order) {
	m.FromDomainAggregateRoot(o.BaseAggregateRoot)
	m.ExternalOrderID = nil
	if o.ExternalOrderID != "" {
		ext := o.ExternalOrderID
		m.ExternalOrderID = &ext
	}
	m.Channel = o.Channel
	m.Status = o.Status
	m.ShippingFee = o.ShippingFee
	m.Discount = o.Discount
	m.TotalAmount = o.TotalAmount
	m.RecipientName = o.RecipientName
	m.ShippingAddress = o.ShippingAddress
	m.Remark = o.Remark
	m.OrderDatetime = o.OrderDatetime.UTC()
	m.PaidAt = o.PaidAt
	m.ShippedAt = o.ShippedAt
	m.DeliveredAt = o.DeliveredAt
	m.CancelledAt = o.CancelledAt
	m.PrintedAt = o.PrintedAt
	m.BatchID = o.BatchID

	m.Items = make([]OrderItemModel, len(o.Items))
	for i, item := range o.Items {
		m.Items[i] = OrderItemModel{
			ID:        uuid.New(),
			OrderID:   o.ID,
			LineNo:    i + 1,
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
}

// OrderModelFromDomain creates a new persistence model from a domain Order
func OrderModelFromDomain(o *fulfillment.Order) *OrderModel {
	m := &OrderModel{}
	m.FromDomain(o)
	return m
}

// OrderItemModel is one order line
type OrderItemModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNo    int             `gorm:"not null"`
	SKU       string          `gorm:"type:varchar(100);not null;index"`
	Name      string          `gorm:"type:varchar(200)"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// ToDomain converts the line to a domain OrderItem
func (m *OrderItemModel) ToDomain() fulfillment.OrderItem {
	return fulfillment.OrderItem{
		SKU:       m.SKU,
		Name:      m.Name,
		Quantity:  m.Quantity,
		UnitPrice: m.UnitPrice,
	}
}

// StatusHistoryModel is one committed status transition
type StatusHistoryModel struct {
	ID         uuid.UUID               `gorm:"type:uuid;primary_key"`
	OrderID    uuid.UUID               `gorm:"type:uuid;not null;index:idx_status_history_order,priority:1"`
	FromStatus fulfillment.OrderStatus `gorm:"type:varchar(20);not null"`
	ToStatus   fulfillment.OrderStatus `gorm:"type:varchar(20);not null"`
	Actor      string                  `gorm:"type:varchar(200);not null"`
	Reason     string                  `gorm:"type:varchar(500)"`
	ChangedAt  time.Time               `gorm:"not null;index:idx_status_history_order,priority:2"`
}

// TableName returns the table name for GORM
func (StatusHistoryModel) TableName() string {
	return "order_status_history"
}

// StatusHistoryModelFromDomain creates a history row
func StatusHistoryModelFromDomain(c fulfillment.StatusChange) *StatusHistoryModel {
	return &StatusHistoryModel{
		ID:         uuid.New(),
		OrderID:    c.OrderID,
		FromStatus: c.FromStatus,
		ToStatus:   c.ToStatus,
		Actor:      c.Actor,
		Reason:     c.Reason,
		ChangedAt:  c.ChangedAt,
	}
}

// ToDomain converts the row to a domain StatusChange
func (m *StatusHistoryModel) ToDomain() fulfillment.StatusChange {
	return fulfillment.StatusChange{
		OrderID:    m.OrderID,
		FromStatus: m.FromStatus,
		ToStatus:   m.ToStatus,
		Actor:      m.Actor,
		Reason:     m.Reason,
		ChangedAt:  m.ChangedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
