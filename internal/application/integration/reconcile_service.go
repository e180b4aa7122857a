package integration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/integration"
	"github.com/orderhub/backend/internal/domain/shared"
	"github.com/orderhub/backend/internal/infrastructure/telemetry"
)

// defaultGapDays is used when the caller does not pass a window
const defaultGapDays = 7

// ReconcileService audits feed health against the order store. It never
// writes; every call recomputes from scratch.
type ReconcileService struct {
	stats     integration.OrderStatsReader
	feed      integration.SyncFeed
	platforms []fulfillment.Channel
	policy    integration.HealthPolicy
	logger    *zap.Logger
	metrics   *telemetry.FulfillmentMetrics
	now       func() time.Time
}

// NewReconcileService creates a new ReconcileService. Manual entry has no
// feed and is never audited.
func NewReconcileService(
	stats integration.OrderStatsReader,
	platforms []fulfillment.Channel,
	policy integration.HealthPolicy,
	logger *zap.Logger,
) (*ReconcileService, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	audited := make([]fulfillment.Channel, 0, len(platforms))
	for _, p := range platforms {
		if p.IsMarketplace() {
			audited = append(audited, p)
		}
	}
	if len(audited) == 0 {
		audited = fulfillment.MarketplaceChannels()
	}
	return &ReconcileService{
		stats:     stats,
		platforms: audited,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// SetSyncFeed sets the upstream feed reader
func (s *ReconcileService) SetSyncFeed(feed integration.SyncFeed) {
	s.feed = feed
}

// SetMetrics sets the metrics collector
func (s *ReconcileService) SetMetrics(m *telemetry.FulfillmentMetrics) {
	s.metrics = m
}

// Platforms returns the audited platforms
func (s *ReconcileService) Platforms() []fulfillment.Channel {
	return append([]fulfillment.Channel(nil), s.platforms...)
}

// ComputeHealth derives a fresh health report. An unreadable feed degrades
// its platform and adds an issue; only store failures fail the call.
func (s *ReconcileService) ComputeHealth(ctx context.Context) (*integration.HealthReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "compute_health")
	defer span.End()

	now := s.now()
	observations := make([]integration.PlatformObservation, len(s.platforms))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range s.platforms {
		g.Go(func() error {
			obs, err := s.observe(gctx, p, now)
			if err != nil {
				return fmt.Errorf("observe %s: %w", p, err)
			}
			observations[i] = obs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	report := integration.BuildHealthReport(observations, s.policy, now)
	for _, p := range report.Platforms {
		s.metrics.SetSyncStatus(p.Platform.String(), string(p.Status))
	}
	s.logger.Info("sync health computed",
		zap.String("overall_status", string(report.OverallStatus)),
		zap.Int("issues", len(report.Issues)),
	)
	return report, nil
}

func (s *ReconcileService) observe(ctx context.Context, p fulfillment.Channel, now time.Time) (integration.PlatformObservation, error) {
	obs := integration.PlatformObservation{Platform: p}

	cursor, err := s.stats.LatestSynced(ctx, p)
	if err != nil {
		return obs, err
	}
	obs.Cursor = cursor

	buckets := integration.NewVolumeBuckets(s.policy, now, s.policy.TrailingDays)
	from, to := buckets.Window()
	if err := s.stats.StreamOrderTimes(ctx, p, from, to, func(t time.Time) error {
		buckets.Add(t)
		return nil
	}); err != nil {
		return obs, err
	}
	obs.Daily = buckets.Daily()
	obs.Last24h = buckets.Last24h()
	obs.Today = buckets.Today()

	if s.feed != nil {
		snap, err := s.feed.Snapshot(ctx, p)
		switch {
		case err == nil:
			obs.Feed = snap
		case errors.Is(err, context.Canceled):
			return obs, err
		default:
			if shared.CodeOf(err) != shared.CodeUpstreamUnavailable {
				err = integration.NewFeedUnavailableError(p, err)
			}
			obs.FeedErr = err
			s.logger.Warn("sync feed unavailable", zap.String("platform", p.String()), zap.Error(err))
		}
	}
	return obs, nil
}

// FindGaps scans the trailing completed days of every platform. The window
// defaults to a week and is capped by the policy.
func (s *ReconcileService) FindGaps(ctx context.Context, days int) (*GapReport, error) {
	if days == 0 {
		days = defaultGapDays
	}
	if days < 1 || days > s.policy.MaxGapDays {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "days must be between 1 and %d", s.policy.MaxGapDays)
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "find_gaps", telemetry.WithAttribute("days", days))
	defer span.End()

	now := s.now()
	perPlatform := make([][]integration.Gap, len(s.platforms))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range s.platforms {
		g.Go(func() error {
			buckets := integration.NewVolumeBuckets(s.policy, now, days)
			from, to := buckets.Window()
			if err := s.stats.StreamOrderTimes(gctx, p, from, to, func(t time.Time) error {
				buckets.Add(t)
				return nil
			}); err != nil {
				return fmt.Errorf("scan %s: %w", p, err)
			}
			perPlatform[i] = integration.FindGaps(p, buckets.Daily(), s.policy)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	gaps := make([]integration.Gap, 0)
	for i, pg := range perPlatform {
		s.metrics.SetGapCount(s.platforms[i].String(), len(pg))
		gaps = append(gaps, pg...)
	}
	sort.SliceStable(gaps, func(i, j int) bool {
		if gaps[i].Date != gaps[j].Date {
			return gaps[i].Date < gaps[j].Date
		}
		return gaps[i].Platform < gaps[j].Platform
	})

	completed := s.policy.CompletedDays(now, days)
	return &GapReport{
		Days:        days,
		From:        s.policy.DateKey(completed[0]),
		To:          s.policy.DateKey(completed[len(completed)-1]),
		Gaps:        gaps,
		GeneratedAt: now.UTC(),
	}, nil
}
