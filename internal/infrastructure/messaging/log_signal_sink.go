package messaging

import (
	"context"

	"go.uber.org/zap"

	appfulfillment "github.com/orderhub/backend/internal/application/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
)

// LogSignalSink only logs signals. It is used when Kafka is disabled.
type LogSignalSink struct {
	logger *zap.Logger
}

// NewLogSignalSink creates a new LogSignalSink
func NewLogSignalSink(logger *zap.Logger) *LogSignalSink {
	return &LogSignalSink{logger: logger}
}

// Send logs the signal
func (s *LogSignalSink) Send(_ context.Context, event shared.DomainEvent) error {
	s.logger.Info("signal recorded (no broker configured)",
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
		zap.String("order_id", event.AggregateID().String()),
	)
	return nil
}

var _ appfulfillment.SignalSink = (*LogSignalSink)(nil)
