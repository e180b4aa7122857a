package event

import (
	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
)

// RegisterFulfillmentEvents registers the order signals with the serializer.
// The outbox processor cannot relay an entry whose type is not registered.
func RegisterFulfillmentEvents(serializer *EventSerializer) {
	serializer.Register(fulfillment.EventTypeOrderStatusChanged, func() shared.DomainEvent {
		return &fulfillment.OrderStatusChangedEvent{}
	})
	serializer.Register(fulfillment.EventTypeStockDeallocationRequested, func() shared.DomainEvent {
		return &fulfillment.StockDeallocationRequestedEvent{}
	})
	serializer.Register(fulfillment.EventTypeFinanceReconciliationRequested, func() shared.DomainEvent {
		return &fulfillment.FinanceReconciliationRequestedEvent{}
	})
}
