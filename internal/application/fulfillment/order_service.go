package fulfillment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
	"github.com/orderhub/backend/internal/infrastructure/telemetry"
)

// OrderService handles order entry, ingestion and queries
type OrderService struct {
	orderRepo fulfillment.OrderRepository
	status    *StatusService
	logger    *zap.Logger
	metrics   *telemetry.FulfillmentMetrics
	now       func() time.Time
}

// NewOrderService creates a new OrderService
func NewOrderService(orderRepo fulfillment.OrderRepository, status *StatusService, logger *zap.Logger) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
		status:    status,
		logger:    logger,
		now:       time.Now,
	}
}

// SetMetrics sets the metrics collector
func (s *OrderService) SetMetrics(m *telemetry.FulfillmentMetrics) {
	s.metrics = m
}

// Create creates an order in NEW status
func (s *OrderService) Create(ctx context.Context, req CreateOrderRequest) (*OrderResponse, error) {
	params := fulfillment.NewOrderParams{
		Channel:         req.Channel,
		ExternalOrderID: req.ExternalOrderID,
		Items:           toDomainItems(req.Items),
		ShippingFee:     req.ShippingFee,
		Discount:        req.Discount,
		RecipientName:   req.RecipientName,
		ShippingAddress: req.ShippingAddress,
		Remark:          req.Remark,
		ExpectedTotal:   req.TotalAmount,
	}
	if req.OrderDatetime != nil {
		params.OrderDatetime = *req.OrderDatetime
	}

	order, err := s.createOrder(ctx, params)
	if err != nil {
		return nil, err
	}
	resp := ToOrderResponse(order)
	return &resp, nil
}

func (s *OrderService) createOrder(ctx context.Context, params fulfillment.NewOrderParams) (*fulfillment.Order, error) {
	order, err := fulfillment.NewOrder(params)
	if err != nil {
		return nil, err
	}
	if params.ExternalOrderID != "" {
		if _, err := s.orderRepo.FindByExternalID(ctx, order.Channel, order.ExternalOrderID); err == nil {
			return nil, fulfillment.ErrDuplicateOrder
		} else if shared.CodeOf(err) != shared.CodeNotFound {
			return nil, err
		}
	}

	events := order.GetDomainEvents()
	if err := s.orderRepo.CreateWithEvents(ctx, order, events); err != nil {
		return nil, err
	}
	order.ClearDomainEvents()

	s.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("channel", order.Channel.String()),
		zap.String("external_order_id", order.ExternalOrderID),
		zap.String("status", order.Status.String()),
	)
	logSignals(s.logger, events)
	return order, nil
}

// GetByID returns an order with its status history
func (s *OrderService) GetByID(ctx context.Context, id uuid.UUID) (*OrderDetailResponse, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.orderRepo.FindStatusHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &OrderDetailResponse{
		OrderResponse: ToOrderResponse(order),
		StatusHistory: make([]StatusChangeResponse, len(history)),
	}
	for i, h := range history {
		detail.StatusHistory[i] = StatusChangeResponse{
			FromStatus: h.FromStatus.String(),
			ToStatus:   h.ToStatus.String(),
			Actor:      h.Actor,
			Reason:     h.Reason,
			ChangedAt:  h.ChangedAt,
		}
	}
	return detail, nil
}

// List retrieves orders with filtering and pagination
func (s *OrderService) List(ctx context.Context, filter OrderListFilter) ([]OrderResponse, int64, error) {
	platform, err := parsePlatform(filter.Platform)
	if err != nil {
		return nil, 0, err
	}

	query := fulfillment.OrderQuery{Filter: shared.DefaultFilter(), Platform: platform, BatchID: filter.BatchID}
	if filter.Page > 0 {
		query.Page = filter.Page
	}
	if filter.PerPage > 0 {
		query.PageSize = filter.PerPage
	}
	if filter.OrderBy != "" {
		query.OrderBy = filter.OrderBy
	}
	if filter.OrderDir != "" {
		query.OrderDir = filter.OrderDir
	}
	query.Search = filter.Search
	query.DateFrom = filter.DateFrom
	if filter.DateTo != nil {
		// date_to is inclusive of the whole day
		end := filter.DateTo.AddDate(0, 0, 1)
		query.DateTo = &end
	}
	if filter.Status != "" {
		status, err := parseStatus(filter.Status)
		if err != nil {
			return nil, 0, err
		}
		query.Statuses = []fulfillment.OrderStatus{status}
	}
	query.Filter = query.Filter.Normalize()

	orders, total, err := s.orderRepo.FindAll(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	return ToOrderResponses(orders), total, nil
}

// Ingest upserts platform rows by (channel, external_order_id). New rows
// start in their reported status; a changed status on a known row goes
// through the status machine as one transition. One bad row never aborts
// the others.
func (s *OrderService) Ingest(ctx context.Context, req IngestOrdersRequest) (*IngestResult, error) {
	if !req.Channel.IsMarketplace() {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "channel %q does not support ingestion", req.Channel)
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "order", "ingest",
		telemetry.WithAttribute("channel", req.Channel.String()),
		telemetry.WithAttribute("rows", len(req.Rows)))
	defer span.End()

	result := &IngestResult{Rows: make([]IngestRowResult, 0, len(req.Rows))}
	for _, row := range req.Rows {
		if ctx.Err() != nil {
			result.add(IngestRowResult{
				ExternalOrderID: row.ExternalOrderID,
				Outcome:         IngestFailed,
				Error:           NewErrorBody(errCancelledBeforeStart),
			})
			continue
		}
		r := s.ingestRow(ctx, req.Channel, row)
		s.metrics.RecordIngest(req.Channel.String(), r.Outcome)
		result.add(r)
	}

	s.logger.Info("orders ingested",
		zap.String("channel", req.Channel.String()),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *OrderService) ingestRow(ctx context.Context, channel fulfillment.Channel, row IngestRow) IngestRowResult {
	res := IngestRowResult{ExternalOrderID: row.ExternalOrderID}
	fail := func(err error) IngestRowResult {
		res.Outcome = IngestFailed
		res.Error = NewErrorBody(err)
		return res
	}

	status, err := parseStatus(row.Status)
	if err != nil {
		return fail(err)
	}

	existing, err := s.orderRepo.FindByExternalID(ctx, channel, row.ExternalOrderID)
	if err != nil && shared.CodeOf(err) != shared.CodeNotFound {
		return fail(err)
	}

	if existing == nil {
		params := fulfillment.NewOrderParams{
			Channel:         channel,
			ExternalOrderID: row.ExternalOrderID,
			Items:           toDomainItems(row.Items),
			ShippingFee:     row.ShippingFee,
			Discount:        row.Discount,
			RecipientName:   row.RecipientName,
			ShippingAddress: row.ShippingAddress,
			Remark:          row.Remark,
			InitialStatus:   status,
			ExpectedTotal:   row.TotalAmount,
		}
		if row.OrderDatetime != nil {
			params.OrderDatetime = *row.OrderDatetime
		}
		order, err := s.createOrder(ctx, params)
		if err == nil {
			res.OrderID = &order.ID
			res.Outcome = IngestCreated
			res.Status = order.Status.String()
			return res
		}
		if !errors.Is(err, fulfillment.ErrDuplicateOrder) {
			return fail(err)
		}
		// lost a race with a concurrent ingest of the same row
		existing, err = s.orderRepo.FindByExternalID(ctx, channel, row.ExternalOrderID)
		if err != nil {
			return fail(err)
		}
	}

	res.OrderID = &existing.ID
	if existing.Status == status {
		res.Outcome = IngestUnchanged
		res.Status = status.String()
		return res
	}

	order, err := s.status.transition(ctx, existing.ID, status, fulfillment.ActorContext{
		Source: "ingest:" + channel.String(),
		Reason: "platform reported " + status.String(),
	})
	if err != nil {
		return fail(err)
	}
	res.Outcome = IngestUpdated
	res.Status = order.Status.String()
	return res
}
