package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderhub/backend/internal/domain/fulfillment"
)

func daysFrom(counts ...int64) []DailyVolume {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make([]DailyVolume, len(counts))
	for i, c := range counts {
		out[i] = DailyVolume{Date: start.AddDate(0, 0, i), Count: c}
	}
	return out
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 3.0, Median([]int64{5, 1, 3}))
	assert.Equal(t, 2.5, Median([]int64{4, 1, 3, 2}))
}

func TestFindGaps(t *testing.T) {
	policy := DefaultHealthPolicy()
	gaps := FindGaps(fulfillment.ChannelMarketplaceA, daysFrom(10, 12, 0, 11, 2, 10, 9), policy)

	require.Len(t, gaps, 2)
	assert.Equal(t, Gap{Date: "2026-05-03", Platform: fulfillment.ChannelMarketplaceA, Reason: GapReasonNoOrders, Observed: 0, Baseline: 10}, gaps[0])
	assert.Equal(t, "2026-05-05", gaps[1].Date)
	assert.Equal(t, GapReasonLowVolume, gaps[1].Reason)
	assert.Equal(t, int64(2), gaps[1].Observed)
}

func TestFindGaps_SilentWindow(t *testing.T) {
	assert.Empty(t, FindGaps(fulfillment.ChannelMarketplaceA, daysFrom(0, 0, 0), DefaultHealthPolicy()))
}

func TestFindGaps_ThinBaseline(t *testing.T) {
	gaps := FindGaps(fulfillment.ChannelMarketplaceA, daysFrom(3, 1, 4, 3), DefaultHealthPolicy())
	assert.Empty(t, gaps)
}

func TestVolumeBuckets(t *testing.T) {
	policy := DefaultHealthPolicy()
	b := NewVolumeBuckets(policy, testNow, 3)

	from, to := b.Window()
	assert.Equal(t, time.Date(2026, 5, 9, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, testNow, to)

	b.Add(time.Date(2026, 5, 9, 1, 0, 0, 0, time.UTC))
	b.Add(time.Date(2026, 5, 11, 13, 0, 0, 0, time.UTC))
	b.Add(time.Date(2026, 5, 11, 15, 0, 0, 0, time.UTC))
	b.Add(time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC))
	b.Add(testNow.Add(time.Minute))

	daily := b.Daily()
	require.Len(t, daily, 3)
	assert.Equal(t, []int64{1, 0, 2}, []int64{daily[0].Count, daily[1].Count, daily[2].Count})
	assert.Equal(t, int64(2), b.Last24h())
	assert.Equal(t, int64(1), b.Today())
}

func TestVolumeBuckets_BusinessTimezone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	policy := DefaultHealthPolicy()
	policy.Location = ny

	b := NewVolumeBuckets(policy, testNow, 1)
	// 02:00 UTC on the 12th is still the 11th in New York
	b.Add(time.Date(2026, 5, 12, 2, 0, 0, 0, time.UTC))
	assert.Equal(t, int64(1), b.Daily()[0].Count)
	assert.Equal(t, "2026-05-11", policy.DateKey(b.Daily()[0].Date))
}
