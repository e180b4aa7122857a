package fulfillment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
	"github.com/orderhub/backend/internal/infrastructure/telemetry"
)

// maxLabelsPerArtifact caps one rendered document
const maxLabelsPerArtifact = 200

// LabelService tracks printed shipping labels independently of batches
type LabelService struct {
	orderRepo fulfillment.OrderRepository
	locks     *OrderLocks
	batches   BatchProgressRecomputer
	renderer  fulfillment.LabelRenderer
	store     fulfillment.ArtifactStore
	logger    *zap.Logger
	metrics   *telemetry.FulfillmentMetrics
	now       func() time.Time
}

// NewLabelService creates a new LabelService
func NewLabelService(orderRepo fulfillment.OrderRepository, locks *OrderLocks, logger *zap.Logger) *LabelService {
	return &LabelService{
		orderRepo: orderRepo,
		locks:     locks,
		logger:    logger,
		now:       time.Now,
	}
}

// SetBatchRecomputer wires batch progress refresh after printing
func (s *LabelService) SetBatchRecomputer(r BatchProgressRecomputer) {
	s.batches = r
}

// SetRenderer sets the label document renderer
func (s *LabelService) SetRenderer(r fulfillment.LabelRenderer) {
	s.renderer = r
}

// SetArtifactStore sets where rendered documents are kept
func (s *LabelService) SetArtifactStore(store fulfillment.ArtifactStore) {
	s.store = store
}

// SetMetrics sets the metrics collector
func (s *LabelService) SetMetrics(m *telemetry.FulfillmentMetrics) {
	s.metrics = m
}

// PendingLabels lists orders still waiting for a label, oldest first
func (s *LabelService) PendingLabels(ctx context.Context, platform string, includeShipped bool) ([]OrderResponse, error) {
	p, err := parsePlatform(platform)
	if err != nil {
		return nil, err
	}
	orders, err := s.orderRepo.FindPendingLabels(ctx, p, fulfillment.LabelPendingStatuses(includeShipped))
	if err != nil {
		return nil, err
	}
	return ToOrderResponses(orders), nil
}

// MarkPrinted records printed labels. Already printed orders are skipped,
// never errors. Every other failure is reported per order.
func (s *LabelService) MarkPrinted(ctx context.Context, req MarkPrintedRequest) (*MarkPrintedResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "label", "mark_printed",
		telemetry.WithAttribute("order_count", len(req.OrderIDs)))
	defer span.End()

	result := &MarkPrintedResult{SkippedIDs: []uuid.UUID{}, Failed: []FailedItem{}}
	touched := make(map[uuid.UUID]struct{})
	seen := make(map[uuid.UUID]struct{}, len(req.OrderIDs))

	for _, id := range req.OrderIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if ctx.Err() != nil {
			result.Failed = append(result.Failed, FailedItem{OrderID: id, Error: NewErrorBody(errCancelledBeforeStart)})
			continue
		}

		updated, batchID, err := s.markOne(ctx, id)
		switch {
		case err != nil:
			result.Failed = append(result.Failed, FailedItem{OrderID: id, Error: NewErrorBody(err)})
		case !updated:
			result.SkippedIDs = append(result.SkippedIDs, id)
		default:
			result.UpdatedCount++
			if batchID != nil {
				touched[*batchID] = struct{}{}
			}
		}
	}

	if s.batches != nil {
		for batchID := range touched {
			if _, err := s.batches.RecomputeProgress(context.WithoutCancel(ctx), batchID); err != nil {
				s.logger.Warn("batch progress recompute failed after printing",
					zap.String("batch_id", batchID.String()), zap.Error(err))
			}
		}
	}

	s.metrics.RecordLabelsPrinted(result.UpdatedCount)
	s.logger.Info("labels marked printed",
		zap.Int("updated", result.UpdatedCount),
		zap.Int("skipped", len(result.SkippedIDs)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (s *LabelService) markOne(ctx context.Context, id uuid.UUID) (bool, *uuid.UUID, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return false, nil, err
	}
	defer unlock()

	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return false, nil, err
	}
	updated, err := order.MarkPrinted(s.now())
	if err != nil || !updated {
		return false, nil, err
	}
	if err := s.orderRepo.SavePrinted(ctx, order); err != nil {
		return false, nil, err
	}
	return true, order.BatchID, nil
}

// GenerateArtifact renders a label document for the given orders. It never
// marks anything printed; callers confirm with MarkPrinted once the sheet is
// physically printed.
func (s *LabelService) GenerateArtifact(ctx context.Context, ids []uuid.UUID) (*LabelArtifact, error) {
	if s.renderer == nil {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "label rendering is not configured")
	}
	if len(ids) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "at least one order id is required")
	}
	if len(ids) > maxLabelsPerArtifact {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "at most %d labels per document", maxLabelsPerArtifact)
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "label", "generate_artifact",
		telemetry.WithAttribute("order_count", len(ids)))
	defer span.End()

	orders, err := s.orderRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*fulfillment.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}

	now := s.now().UTC()
	sheet := fulfillment.LabelSheet{Title: "Shipping labels", GeneratedAt: now}
	for _, id := range ids {
		o, ok := byID[id]
		if !ok {
			return nil, fulfillment.NewOrderNotFoundError(id)
		}
		sheet.Labels = append(sheet.Labels, fulfillment.NewShippingLabel(o))
	}

	data, err := s.renderer.Render(ctx, sheet)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("render labels: %w", err)
	}

	artifact := &LabelArtifact{
		ID:          uuid.New(),
		Filename:    artifactFilename(sheet, now, s.renderer.ContentType()),
		ContentType: s.renderer.ContentType(),
		Size:        len(data),
		LabelCount:  len(sheet.Labels),
		Data:        data,
	}
	if s.store != nil {
		key := fmt.Sprintf("labels/%s/%s", now.Format("2006/01/02"), artifact.Filename)
		url, err := s.store.Save(ctx, key, data, artifact.ContentType)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("store label artifact: %w", err)
		}
		artifact.URL = url
	}

	s.logger.Info("label artifact generated",
		zap.String("artifact_id", artifact.ID.String()),
		zap.String("filename", artifact.Filename),
		zap.Int("labels", artifact.LabelCount),
		zap.Int("size", artifact.Size),
	)
	return artifact, nil
}

// artifactFilename names a sheet after its channels and generation time
func artifactFilename(sheet fulfillment.LabelSheet, now time.Time, contentType string) string {
	channel := "mixed"
	for i, l := range sheet.Labels {
		if i == 0 {
			channel = l.Channel.String()
		} else if l.Channel.String() != channel {
			channel = "mixed"
			break
		}
	}
	ext := ".pdf"
	if strings.HasPrefix(contentType, "text/html") {
		ext = ".html"
	}
	return slug.Make(fmt.Sprintf("labels %s %s", channel, now.Format("20060102 150405"))) + ext
}
