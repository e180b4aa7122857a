package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
	"github.com/orderhub/backend/internal/infrastructure/telemetry"
)

// bulkConcurrency bounds how many orders of a bulk call are in flight
const bulkConcurrency = 4

// BatchProgressRecomputer refreshes a batch after one of its members moved
type BatchProgressRecomputer interface {
	RecomputeProgress(ctx context.Context, batchID uuid.UUID) (*BatchResponse, error)
}

// StatusService is the single writer of order status. Transitions on the same
// order are serialized by a keyed mutex and guarded by the version column.
type StatusService struct {
	orderRepo fulfillment.OrderRepository
	batches   BatchProgressRecomputer
	locks     *OrderLocks
	logger    *zap.Logger
	metrics   *telemetry.FulfillmentMetrics
	now       func() time.Time
}

// NewStatusService creates a new StatusService
func NewStatusService(orderRepo fulfillment.OrderRepository, locks *OrderLocks, logger *zap.Logger) *StatusService {
	return &StatusService{
		orderRepo: orderRepo,
		locks:     locks,
		logger:    logger,
		now:       time.Now,
	}
}

// SetBatchRecomputer wires batch progress refresh after transitions
func (s *StatusService) SetBatchRecomputer(r BatchProgressRecomputer) {
	s.batches = r
}

// SetMetrics sets the metrics collector
func (s *StatusService) SetMetrics(m *telemetry.FulfillmentMetrics) {
	s.metrics = m
}

// Transition moves one order to target
func (s *StatusService) Transition(ctx context.Context, orderID uuid.UUID, req TransitionRequest) (*OrderResponse, error) {
	target, err := parseStatus(req.Status)
	if err != nil {
		return nil, err
	}
	order, err := s.transition(ctx, orderID, target, fulfillment.ActorContext{
		ActorID: req.ActorID,
		Source:  "api",
		Reason:  req.Reason,
	})
	if err != nil {
		return nil, err
	}
	resp := ToOrderResponse(order)
	return &resp, nil
}

func (s *StatusService) transition(ctx context.Context, orderID uuid.UUID, target fulfillment.OrderStatus, actor fulfillment.ActorContext) (*fulfillment.Order, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order_status", "transition",
		telemetry.WithAttribute("order_id", orderID.String()),
		telemetry.WithAttribute("target_status", target.String()),
	)
	defer span.End()

	order, err := s.commitTransition(ctx, orderID, target, actor)
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordTransition(target.String(), shared.CodeOf(err))
		return nil, err
	}
	s.metrics.RecordTransition(target.String(), "ok")

	// committed: batch counters follow regardless of caller cancellation
	if order.BatchID != nil && s.batches != nil {
		if _, err := s.batches.RecomputeProgress(context.WithoutCancel(ctx), *order.BatchID); err != nil {
			s.logger.Warn("batch progress recompute failed after transition",
				zap.String("order_id", orderID.String()),
				zap.String("batch_id", order.BatchID.String()),
				zap.Error(err),
			)
		}
	}
	return order, nil
}

func (s *StatusService) commitTransition(ctx context.Context, orderID uuid.UUID, target fulfillment.OrderStatus, actor fulfillment.ActorContext) (*fulfillment.Order, error) {
	unlock, err := s.locks.Lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	change, err := order.Transition(target, actor, s.now())
	if err != nil {
		return nil, err
	}

	events := order.GetDomainEvents()
	if err := s.orderRepo.SaveTransition(ctx, order, change, events); err != nil {
		return nil, err
	}
	order.ClearDomainEvents()

	s.logger.Info("order status changed",
		zap.String("order_id", orderID.String()),
		zap.String("channel", order.Channel.String()),
		zap.String("from", change.FromStatus.String()),
		zap.String("to", change.ToStatus.String()),
		zap.String("actor", change.Actor),
	)
	logSignals(s.logger, events)
	return order, nil
}

// BulkTransition moves each order independently. Results keep request order.
// Once ctx is done no further order is started; those are reported as
// cancelled while committed results stay committed.
func (s *StatusService) BulkTransition(ctx context.Context, req BulkTransitionRequest) (*BulkTransitionResult, error) {
	target, err := parseStatus(req.Status)
	if err != nil {
		return nil, err
	}
	actor := fulfillment.ActorContext{ActorID: req.ActorID, Source: "bulk", Reason: req.Reason}

	results := make([]TransitionItemResult, len(req.OrderIDs))
	g := new(errgroup.Group)
	g.SetLimit(bulkConcurrency)

	for i, id := range req.OrderIDs {
		if ctx.Err() != nil {
			results[i] = TransitionItemResult{OrderID: id, Error: NewErrorBody(errCancelledBeforeStart)}
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = TransitionItemResult{OrderID: id, Error: NewErrorBody(errCancelledBeforeStart)}
				return nil
			}
			order, err := s.transition(ctx, id, target, actor)
			if err != nil {
				results[i] = TransitionItemResult{OrderID: id, Error: NewErrorBody(err)}
				return nil
			}
			results[i] = TransitionItemResult{OrderID: id, Success: true, Status: order.Status.String()}
			return nil
		})
	}
	_ = g.Wait()

	out := &BulkTransitionResult{Results: results}
	for _, r := range results {
		if r.Success {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}
	s.logger.Info("bulk transition finished",
		zap.String("target", target.String()),
		zap.Int("succeeded", out.Succeeded),
		zap.Int("failed", out.Failed),
	)
	return out, nil
}

// logSignals records each queued signal. Delivery happens through the outbox.
func logSignals(logger *zap.Logger, events []shared.DomainEvent) {
	for _, e := range events {
		if e.EventType() == fulfillment.EventTypeOrderStatusChanged {
			continue
		}
		logger.Info("signal queued",
			zap.String("event_type", e.EventType()),
			zap.String("event_id", e.EventID().String()),
			zap.String("order_id", e.AggregateID().String()),
		)
	}
}
