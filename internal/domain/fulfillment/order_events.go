package fulfillment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/orderhub/backend/internal/domain/shared"
)

// AggregateTypeOrder is the aggregate type for orders
const AggregateTypeOrder = "Order"

// Event types emitted by orders
const (
	EventTypeOrderStatusChanged             = "OrderStatusChanged"
	EventTypeStockDeallocationRequested     = "StockDeallocationRequested"
	EventTypeFinanceReconciliationRequested = "FinanceReconciliationRequested"
)

// SignalItem is the stock-relevant part of an order line
type SignalItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

func signalItems(items []OrderItem) []SignalItem {
	out := make([]SignalItem, len(items))
	for i, item := range items {
		out[i] = SignalItem{SKU: item.SKU, Quantity: item.Quantity}
	}
	return out
}

// OrderStatusChangedEvent is raised for every committed transition
type OrderStatusChangedEvent struct {
	shared.BaseDomainEvent
	OrderID         uuid.UUID   `json:"order_id"`
	Channel         Channel     `json:"channel"`
	ExternalOrderID string      `json:"external_order_id,omitempty"`
	FromStatus      OrderStatus `json:"from_status"`
	ToStatus        OrderStatus `json:"to_status"`
	Actor           string      `json:"actor"`
	ChangedAt       time.Time   `json:"changed_at"`
}

// NewOrderStatusChangedEvent creates the event for a status change
func NewOrderStatusChangedEvent(o *Order, change StatusChange) *OrderStatusChangedEvent {
	return &OrderStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderStatusChanged, AggregateTypeOrder, o.ID),
		OrderID:         o.ID,
		Channel:         o.Channel,
		ExternalOrderID: o.ExternalOrderID,
		FromStatus:      change.FromStatus,
		ToStatus:        change.ToStatus,
		Actor:           change.Actor,
		ChangedAt:       change.ChangedAt,
	}
}

// StockDeallocationRequestedEvent asks the stock collaborator to release
// what was reserved for a cancelled order.
type StockDeallocationRequestedEvent struct {
	shared.BaseDomainEvent
	OrderID         uuid.UUID    `json:"order_id"`
	Channel         Channel      `json:"channel"`
	ExternalOrderID string       `json:"external_order_id,omitempty"`
	PreviousStatus  OrderStatus  `json:"previous_status"`
	Items           []SignalItem `json:"items"`
}

// NewStockDeallocationRequestedEvent creates the cancellation signal
func NewStockDeallocationRequestedEvent(o *Order, previous OrderStatus) *StockDeallocationRequestedEvent {
	return &StockDeallocationRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockDeallocationRequested, AggregateTypeOrder, o.ID),
		OrderID:         o.ID,
		Channel:         o.Channel,
		ExternalOrderID: o.ExternalOrderID,
		PreviousStatus:  previous,
		Items:           signalItems(o.Items),
	}
}

// FinanceReconciliationRequestedEvent asks finance to match the payment
type FinanceReconciliationRequestedEvent struct {
	shared.BaseDomainEvent
	OrderID         uuid.UUID       `json:"order_id"`
	Channel         Channel         `json:"channel"`
	ExternalOrderID string          `json:"external_order_id,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
}

// NewFinanceReconciliationRequestedEvent creates the payment signal
func NewFinanceReconciliationRequestedEvent(o *Order) *FinanceReconciliationRequestedEvent {
	return &FinanceReconciliationRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeFinanceReconciliationRequested, AggregateTypeOrder, o.ID),
		OrderID:         o.ID,
		Channel:         o.Channel,
		ExternalOrderID: o.ExternalOrderID,
		TotalAmount:     o.TotalAmount,
		PaidAt:          o.PaidAt,
	}
}

// SignalEventTypes lists the events relayed to external collaborators
func SignalEventTypes() []string {
	return []string{
		EventTypeOrderStatusChanged,
		EventTypeStockDeallocationRequested,
		EventTypeFinanceReconciliationRequested,
	}
}
