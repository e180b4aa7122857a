package integration

import (
	"fmt"
	"time"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
)

// PlatformStatus is the per-platform sync verdict
type PlatformStatus string

const (
	PlatformStatusOK      PlatformStatus = "ok"
	PlatformStatusWarning PlatformStatus = "warning"
	PlatformStatusStale   PlatformStatus = "stale"
	PlatformStatusNoData  PlatformStatus = "no_data"
)

// IsDegraded reports whether the platform counts toward the critical fraction
func (s PlatformStatus) IsDegraded() bool {
	return s == PlatformStatusStale || s == PlatformStatusNoData
}

// OverallStatus is the system verdict, ordered healthy < warning < critical
type OverallStatus string

const (
	OverallHealthy  OverallStatus = "healthy"
	OverallWarning  OverallStatus = "warning"
	OverallCritical OverallStatus = "critical"
)

func (s OverallStatus) severity() int {
	switch s {
	case OverallWarning:
		return 1
	case OverallCritical:
		return 2
	}
	return 0
}

// Worse returns the more severe of two verdicts
func (s OverallStatus) Worse(other OverallStatus) OverallStatus {
	if other.severity() > s.severity() {
		return other
	}
	return s
}

// Issue kinds
const (
	IssueNoData          = "NO_DATA"
	IssueStale           = "STALE_FEED"
	IssueLowVolume       = "LOW_VOLUME"
	IssueUpstreamAhead   = "UPSTREAM_AHEAD"
	IssueFeedUnavailable = shared.CodeUpstreamUnavailable
)

// Issue is a human-readable finding attached to a report
type Issue struct {
	Platform fulfillment.Channel `json:"platform"`
	Kind     string              `json:"kind"`
	Message  string              `json:"message"`
}

// PlatformObservation is everything gathered about one platform in a pass
type PlatformObservation struct {
	Platform fulfillment.Channel
	Cursor   *SyncCursor
	Daily    []DailyVolume
	Last24h  int64
	Today    int64
	Feed     *FeedSnapshot
	FeedErr  error
}

// PlatformHealth is the derived state of one platform
type PlatformHealth struct {
	Platform               fulfillment.Channel `json:"platform"`
	Status                 PlatformStatus      `json:"status"`
	LastOrderSyncedAt      *time.Time          `json:"last_order_synced_at"`
	LastExternalID         string              `json:"last_external_id,omitempty"`
	UpstreamLastExternalID string              `json:"upstream_last_external_id,omitempty"`
	ElapsedSeconds         int64               `json:"elapsed_seconds"`
	ThresholdSeconds       int64               `json:"threshold_seconds"`
	Last24hOrders          int64               `json:"last_24h_orders"`
	TrailingMedian         float64             `json:"trailing_median"`
	Issues                 []Issue             `json:"-"`
}

// DerivePlatformHealth turns an observation into a verdict. A platform that
// never produced an order is no_data. Silence beyond the threshold is stale.
// A fresh platform whose last-24h volume is below LowVolumeRatio of the
// trailing median is a warning, as is one whose upstream feed reports orders
// newer than anything ingested. An unreadable feed degrades the platform to
// stale (or no_data without local orders).
func DerivePlatformHealth(obs PlatformObservation, policy HealthPolicy, now time.Time) PlatformHealth {
	threshold := policy.StaleThreshold(now)
	h := PlatformHealth{
		Platform:         obs.Platform,
		ThresholdSeconds: int64(threshold / time.Second),
		Last24hOrders:    obs.Last24h,
		TrailingMedian:   TailMedian(obs.Daily, policy.TrailingDays),
	}
	issue := func(kind, format string, args ...any) {
		h.Issues = append(h.Issues, Issue{Platform: obs.Platform, Kind: kind, Message: fmt.Sprintf(format, args...)})
	}

	if obs.Cursor != nil {
		t := obs.Cursor.LastOrderSyncedAt
		h.LastOrderSyncedAt = &t
		h.LastExternalID = obs.Cursor.LastExternalID
		h.ElapsedSeconds = int64(now.Sub(t) / time.Second)
	}

	if obs.FeedErr != nil {
		issue(IssueFeedUnavailable, "%s", obs.FeedErr.Error())
		if obs.Cursor == nil {
			h.Status = PlatformStatusNoData
		} else {
			h.Status = PlatformStatusStale
		}
		return h
	}

	if obs.Cursor == nil {
		h.Status = PlatformStatusNoData
		issue(IssueNoData, "%s has never produced an order", obs.Platform)
		return h
	}

	elapsed := now.Sub(obs.Cursor.LastOrderSyncedAt)
	if elapsed > threshold {
		h.Status = PlatformStatusStale
		issue(IssueStale, "no order ingested from %s for %s (threshold %s)",
			obs.Platform, elapsed.Truncate(time.Minute), threshold)
		return h
	}

	h.Status = PlatformStatusOK
	if obs.Feed != nil {
		h.UpstreamLastExternalID = obs.Feed.LastExternalID
		if obs.Feed.LastOrderAt != nil && obs.Feed.LastExternalID != obs.Cursor.LastExternalID &&
			obs.Feed.LastOrderAt.After(obs.Cursor.LastOrderSyncedAt) {
			h.Status = PlatformStatusWarning
			issue(IssueUpstreamAhead, "%s feed reports order %s at %s that has not been ingested",
				obs.Platform, obs.Feed.LastExternalID, obs.Feed.LastOrderAt.UTC().Format(time.RFC3339))
		}
	}
	if h.TrailingMedian >= policy.MinBaselineOrders && float64(obs.Last24h) < policy.LowVolumeRatio*h.TrailingMedian {
		h.Status = PlatformStatusWarning
		issue(IssueLowVolume, "%s ingested %d orders in the last 24h against a trailing median of %.1f",
			obs.Platform, obs.Last24h, h.TrailingMedian)
	}
	return h
}

// DeriveOverall folds platform verdicts. Any degraded or warning platform
// forces at least warning; a degraded share strictly above criticalFraction
// is critical.
func DeriveOverall(platforms []PlatformHealth, criticalFraction float64) OverallStatus {
	if len(platforms) == 0 {
		return OverallHealthy
	}
	overall := OverallHealthy
	degraded := 0
	for _, p := range platforms {
		switch {
		case p.Status.IsDegraded():
			degraded++
			overall = overall.Worse(OverallWarning)
		case p.Status == PlatformStatusWarning:
			overall = overall.Worse(OverallWarning)
		}
	}
	if float64(degraded)/float64(len(platforms)) > criticalFraction {
		overall = OverallCritical
	}
	return overall
}

// TodaySummary counts orders since local midnight
type TodaySummary struct {
	Date        string                        `json:"date"`
	TotalOrders int64                         `json:"total_orders"`
	ByPlatform  map[fulfillment.Channel]int64 `json:"by_platform"`
}

// HealthReport is one fresh reconciliation pass
type HealthReport struct {
	OverallStatus OverallStatus    `json:"overall_status"`
	Platforms     []PlatformHealth `json:"platforms"`
	TodaySummary  TodaySummary     `json:"today_summary"`
	Issues        []Issue          `json:"issues"`
	GeneratedAt   time.Time        `json:"generated_at"`
}

// BuildHealthReport derives every platform and folds the report. Platforms
// keep the order of observations.
func BuildHealthReport(observations []PlatformObservation, policy HealthPolicy, now time.Time) *HealthReport {
	report := &HealthReport{
		Platforms: make([]PlatformHealth, 0, len(observations)),
		Issues:    []Issue{},
		TodaySummary: TodaySummary{
			Date:       policy.DateKey(now),
			ByPlatform: make(map[fulfillment.Channel]int64, len(observations)),
		},
		GeneratedAt: now.UTC(),
	}
	for _, obs := range observations {
		h := DerivePlatformHealth(obs, policy, now)
		report.Platforms = append(report.Platforms, h)
		report.Issues = append(report.Issues, h.Issues...)
		report.TodaySummary.ByPlatform[obs.Platform] = obs.Today
		report.TodaySummary.TotalOrders += obs.Today
	}
	report.OverallStatus = DeriveOverall(report.Platforms, policy.CriticalFraction)
	return report
}
