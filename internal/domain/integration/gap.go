package integration

import (
	"github.com/orderhub/backend/internal/domain/fulfillment"
)

// GapReason classifies a flagged day
type GapReason string

const (
	GapReasonNoOrders  GapReason = "no_orders"
	GapReasonLowVolume GapReason = "low_volume"
)

// Gap is an advisory flag on a platform day. It is a heuristic, not proof of
// missing data.
type Gap struct {
	Date     string              `json:"date"`
	Platform fulfillment.Channel `json:"platform"`
	Reason   GapReason           `json:"reason"`
	Observed int64               `json:"observed"`
	Baseline float64             `json:"baseline"`
}

// FindGaps scans a window of completed days for one platform. A zero day is
// flagged when the window has any volume at all. A non-zero day is flagged
// as low volume when it falls below LowVolumeRatio times the median of the
// other days, provided that median reaches MinBaselineOrders.
func FindGaps(platform fulfillment.Channel, days []DailyVolume, policy HealthPolicy) []Gap {
	var total int64
	for _, d := range days {
		total += d.Count
	}
	if total == 0 {
		return nil
	}

	var gaps []Gap
	others := make([]int64, 0, len(days))
	for i, d := range days {
		others = others[:0]
		for j, o := range days {
			if j != i {
				others = append(others, o.Count)
			}
		}
		baseline := Median(others)

		switch {
		case d.Count == 0:
			gaps = append(gaps, Gap{
				Date:     policy.DateKey(d.Date),
				Platform: platform,
				Reason:   GapReasonNoOrders,
				Observed: 0,
				Baseline: baseline,
			})
		case baseline >= policy.MinBaselineOrders && float64(d.Count) < policy.LowVolumeRatio*baseline:
			gaps = append(gaps, Gap{
				Date:     policy.DateKey(d.Date),
				Platform: platform,
				Reason:   GapReasonLowVolume,
				Observed: d.Count,
				Baseline: baseline,
			})
		}
	}
	return gaps
}
