package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
	"github.com/orderhub/backend/internal/infrastructure/telemetry"
)

// BatchServiceConfig holds batch manager settings
type BatchServiceConfig struct {
	ReadyStatuses []fulfillment.OrderStatus
	ScopeLockTTL  time.Duration
}

// BatchService partitions ready orders into packing batches
type BatchService struct {
	batchRepo fulfillment.BatchRepository
	orderRepo fulfillment.OrderRepository
	locker    ScopeLocker
	scopes    *keyedMutex
	ready     []fulfillment.OrderStatus
	lockTTL   time.Duration
	logger    *zap.Logger
	metrics   *telemetry.FulfillmentMetrics
	now       func() time.Time
}

// NewBatchService creates a new BatchService
func NewBatchService(
	batchRepo fulfillment.BatchRepository,
	orderRepo fulfillment.OrderRepository,
	cfg BatchServiceConfig,
	logger *zap.Logger,
) *BatchService {
	ready := cfg.ReadyStatuses
	if len(ready) == 0 {
		ready = fulfillment.DefaultReadyStatuses()
	}
	ttl := cfg.ScopeLockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &BatchService{
		batchRepo: batchRepo,
		orderRepo: orderRepo,
		scopes:    newKeyedMutex(),
		ready:     ready,
		lockTTL:   ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// SetScopeLocker sets the cross-replica scope lease
func (s *BatchService) SetScopeLocker(l ScopeLocker) {
	s.locker = l
}

// SetMetrics sets the metrics collector
func (s *BatchService) SetMetrics(m *telemetry.FulfillmentMetrics) {
	s.metrics = m
}

// ReadyStatuses returns the configured ready set
func (s *BatchService) ReadyStatuses() []fulfillment.OrderStatus {
	return append([]fulfillment.OrderStatus(nil), s.ready...)
}

// PendingCount counts unbatched orders in the ready set
func (s *BatchService) PendingCount(ctx context.Context, platform string) (int64, error) {
	p, err := parsePlatform(platform)
	if err != nil {
		return 0, err
	}
	n, err := s.orderRepo.CountEligible(ctx, p, s.ready)
	if err != nil {
		return 0, err
	}
	s.metrics.SetPendingCount(fulfillment.ScopeKey(p), n)
	return n, nil
}

// CreateBatch claims every eligible order of the scope as of now. Creations
// in one scope are serialized in process and leased across replicas; a lease
// held elsewhere fails fast with CONCURRENT_BATCH_CONFLICT.
func (s *BatchService) CreateBatch(ctx context.Context, req CreateBatchRequest) (*BatchResponse, error) {
	platform, err := parsePlatform(req.Platform)
	if err != nil {
		return nil, err
	}
	scope := fulfillment.ScopeKey(platform)

	ctx, span := telemetry.StartServiceSpan(ctx, "batch", "create", telemetry.WithAttribute("scope", scope))
	defer span.End()

	unlock, err := s.scopes.Lock(ctx, "batch-scope:"+scope)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if s.locker != nil {
		release, acquired, err := s.locker.TryAcquire(ctx, "batch-scope:"+scope, s.lockTTL)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("acquire batch scope lease: %w", err)
		}
		if !acquired {
			s.metrics.RecordBatchConflict(scope)
			return nil, fulfillment.ErrConcurrentBatchConflict
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release batch scope lease", zap.String("scope", scope), zap.Error(err))
			}
		}()
	}

	cutoff := s.now().UTC()
	sel := fulfillment.BatchSelection{
		Platform:      platform,
		ReadyStatuses: s.ready,
		CutoffAt:      cutoff,
	}
	batch, err := s.batchRepo.CreateFromEligible(ctx, sel, func(number int64, members []uuid.UUID) (*fulfillment.Batch, error) {
		return fulfillment.NewBatch(platform, number, cutoff, members, req.Notes)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if shared.CodeOf(err) == shared.CodeConcurrentBatch {
			s.metrics.RecordBatchConflict(scope)
		}
		return nil, err
	}

	s.metrics.RecordBatchCreated(scope)
	s.logger.Info("batch created",
		zap.String("batch_id", batch.ID.String()),
		zap.String("scope", scope),
		zap.Int64("batch_number", batch.BatchNumber),
		zap.Int("order_count", batch.OrderCount),
	)
	resp := ToBatchResponse(batch)
	return &resp, nil
}

// RecomputeProgress rescans a batch's members and advances its status.
// Calling it repeatedly without member changes is a no-op.
func (s *BatchService) RecomputeProgress(ctx context.Context, batchID uuid.UUID) (*BatchResponse, error) {
	now := s.now()
	batch, err := s.batchRepo.UpdateProgress(ctx, batchID, func(b *fulfillment.Batch, members []*fulfillment.Order) (bool, error) {
		before := b.Status
		changed := b.ApplyProgress(fulfillment.ComputeProgress(members), now)
		if changed && before != b.Status {
			s.logger.Info("batch status advanced",
				zap.String("batch_id", b.ID.String()),
				zap.String("from", string(before)),
				zap.String("to", string(b.Status)),
			)
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	resp := ToBatchResponse(batch)
	return &resp, nil
}

// CancelBatch cancels a PENDING or IN_PROGRESS batch and releases its members
// back to the pending pool
func (s *BatchService) CancelBatch(ctx context.Context, batchID uuid.UUID, req CancelBatchRequest) (*BatchResponse, error) {
	now := s.now()
	batch, err := s.batchRepo.CancelAndRelease(ctx, batchID, func(b *fulfillment.Batch) error {
		return b.Cancel(req.Reason, now)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordBatchCancelled(batch.Scope())
	s.logger.Info("batch cancelled",
		zap.String("batch_id", batch.ID.String()),
		zap.Int64("batch_number", batch.BatchNumber),
		zap.String("reason", req.Reason),
	)
	resp := ToBatchResponse(batch)
	return &resp, nil
}

// List lists batches
func (s *BatchService) List(ctx context.Context, filter BatchListFilter) ([]BatchResponse, int64, error) {
	platform, err := parsePlatform(filter.Platform)
	if err != nil {
		return nil, 0, err
	}
	query := fulfillment.BatchQuery{Filter: shared.DefaultFilter(), Platform: platform}
	if filter.Page > 0 {
		query.Page = filter.Page
	}
	if filter.PerPage > 0 {
		query.PageSize = filter.PerPage
	}
	if filter.Status != "" {
		query.Statuses = []fulfillment.BatchStatus{fulfillment.BatchStatus(filter.Status)}
	}
	query.Filter = query.Filter.Normalize()

	batches, total, err := s.batchRepo.FindAll(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	out := make([]BatchResponse, len(batches))
	for i, b := range batches {
		out[i] = ToBatchResponse(b)
	}
	return out, total, nil
}

// GetDetail returns a batch with its current member orders
func (s *BatchService) GetDetail(ctx context.Context, batchID uuid.UUID) (*BatchDetailResponse, error) {
	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	members, err := s.orderRepo.FindByIDs(ctx, batch.MemberIDs)
	if err != nil {
		return nil, err
	}
	return &BatchDetailResponse{
		BatchResponse: ToBatchResponse(batch),
		Members:       ToOrderResponses(members),
	}, nil
}
