package fulfillment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
	"github.com/orderhub/backend/internal/infrastructure/telemetry"
)

// SignalSink delivers stock and finance signals to external collaborators
type SignalSink interface {
	Send(ctx context.Context, event shared.DomainEvent) error
}

// SignalForwarder relays order signals from the event bus to a SignalSink.
// A returned error leaves the outbox entry for retry, so delivery is at
// least once and collaborators must deduplicate on event id.
type SignalForwarder struct {
	sink    SignalSink
	logger  *zap.Logger
	metrics *telemetry.FulfillmentMetrics
}

// NewSignalForwarder creates a new SignalForwarder
func NewSignalForwarder(sink SignalSink, logger *zap.Logger) *SignalForwarder {
	return &SignalForwarder{sink: sink, logger: logger}
}

// SetMetrics sets the metrics collector
func (h *SignalForwarder) SetMetrics(m *telemetry.FulfillmentMetrics) {
	h.metrics = m
}

// EventTypes returns the event types this handler is interested in
func (h *SignalForwarder) EventTypes() []string {
	return []string{
		fulfillment.EventTypeStockDeallocationRequested,
		fulfillment.EventTypeFinanceReconciliationRequested,
	}
}

// Handle forwards one signal
func (h *SignalForwarder) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *fulfillment.StockDeallocationRequestedEvent:
		h.logger.Info("forwarding stock deallocation request",
			zap.String("event_id", e.EventID().String()),
			zap.String("order_id", e.OrderID.String()),
			zap.String("previous_status", e.PreviousStatus.String()),
			zap.Int("items", len(e.Items)),
		)
	case *fulfillment.FinanceReconciliationRequestedEvent:
		h.logger.Info("forwarding finance reconciliation request",
			zap.String("event_id", e.EventID().String()),
			zap.String("order_id", e.OrderID.String()),
			zap.String("total_amount", e.TotalAmount.StringFixed(2)),
		)
	default:
		h.logger.Error("unexpected event type", zap.String("actual", event.EventType()))
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}

	if err := h.sink.Send(ctx, event); err != nil {
		h.metrics.RecordSignal(event.EventType(), "error")
		h.logger.Warn("signal delivery failed, will retry",
			zap.String("event_id", event.EventID().String()),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
		return err
	}
	h.metrics.RecordSignal(event.EventType(), "sent")
	return nil
}
