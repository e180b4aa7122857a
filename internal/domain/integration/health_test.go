package integration

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderhub/backend/internal/domain/fulfillment"
)

// 14:00 UTC, inside business hours
var testNow = time.Date(2026, 5, 12, 14, 0, 0, 0, time.UTC)

func cursorAt(d time.Duration) *SyncCursor {
	return &SyncCursor{LastOrderSyncedAt: testNow.Add(-d), LastExternalID: "X-1"}
}

func steadyDays(n int, count int64) []DailyVolume {
	days := make([]DailyVolume, n)
	for i := range days {
		days[i] = DailyVolume{Date: testNow.AddDate(0, 0, i-n), Count: count}
	}
	return days
}

func TestHealthPolicy_StaleThreshold(t *testing.T) {
	p := DefaultHealthPolicy()
	assert.Equal(t, 24*time.Hour, p.StaleThreshold(testNow))
	assert.Equal(t, 36*time.Hour, p.StaleThreshold(time.Date(2026, 5, 12, 3, 0, 0, 0, time.UTC)))
	assert.Equal(t, 36*time.Hour, p.StaleThreshold(time.Date(2026, 5, 12, 22, 0, 0, 0, time.UTC)))

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	p.Location = tokyo
	// 14:00 UTC is 23:00 in Tokyo
	assert.Equal(t, 36*time.Hour, p.StaleThreshold(testNow))
}

func TestHealthPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultHealthPolicy().Validate())

	p := DefaultHealthPolicy()
	p.BusinessStartHour = 22
	p.BusinessEndHour = 8
	assert.Error(t, p.Validate())

	p = DefaultHealthPolicy()
	p.CriticalFraction = 0
	assert.Error(t, p.Validate())
}

func TestDerivePlatformHealth_StaleAfter40Hours(t *testing.T) {
	policy := DefaultHealthPolicy()
	obs := PlatformObservation{
		Platform: fulfillment.ChannelMarketplaceB,
		Cursor:   cursorAt(40 * time.Hour),
		Daily:    steadyDays(7, 10),
	}

	h := DerivePlatformHealth(obs, policy, testNow)
	assert.Equal(t, PlatformStatusStale, h.Status)
	assert.Equal(t, int64(40*3600), h.ElapsedSeconds)
	require.Len(t, h.Issues, 1)
	assert.Equal(t, IssueStale, h.Issues[0].Kind)

	report := BuildHealthReport([]PlatformObservation{
		obs,
		{Platform: fulfillment.ChannelMarketplaceA, Cursor: cursorAt(time.Hour), Daily: steadyDays(7, 10), Last24h: 10},
		{Platform: fulfillment.ChannelMarketplaceC, Cursor: cursorAt(time.Hour), Daily: steadyDays(7, 10), Last24h: 10},
	}, policy, testNow)
	assert.NotEqual(t, OverallHealthy, report.OverallStatus)
	assert.Equal(t, OverallWarning, report.OverallStatus)
}

func TestDerivePlatformHealth(t *testing.T) {
	policy := DefaultHealthPolicy()
	tests := []struct {
		name string
		obs  PlatformObservation
		want PlatformStatus
		kind string
	}{
		{"never produced", PlatformObservation{}, PlatformStatusNoData, IssueNoData},
		{"fresh", PlatformObservation{Cursor: cursorAt(2 * time.Hour), Daily: steadyDays(7, 10), Last24h: 9}, PlatformStatusOK, ""},
		{"just inside threshold", PlatformObservation{Cursor: cursorAt(24 * time.Hour), Last24h: 1}, PlatformStatusOK, ""},
		{"low volume", PlatformObservation{Cursor: cursorAt(time.Hour), Daily: steadyDays(7, 20), Last24h: 5}, PlatformStatusWarning, IssueLowVolume},
		{"thin baseline", PlatformObservation{Cursor: cursorAt(time.Hour), Daily: steadyDays(7, 4), Last24h: 0}, PlatformStatusOK, ""},
		{"feed down with local data", PlatformObservation{Cursor: cursorAt(time.Hour), FeedErr: errors.New("timeout")}, PlatformStatusStale, IssueFeedUnavailable},
		{"feed down without local data", PlatformObservation{FeedErr: errors.New("timeout")}, PlatformStatusNoData, IssueFeedUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := DerivePlatformHealth(tt.obs, policy, testNow)
			assert.Equal(t, tt.want, h.Status)
			if tt.kind == "" {
				assert.Empty(t, h.Issues)
				return
			}
			require.NotEmpty(t, h.Issues)
			assert.Equal(t, tt.kind, h.Issues[0].Kind)
		})
	}
}

func TestDerivePlatformHealth_UpstreamAhead(t *testing.T) {
	upstream := testNow.Add(-10 * time.Minute)
	obs := PlatformObservation{
		Platform: fulfillment.ChannelMarketplaceA,
		Cursor:   cursorAt(3 * time.Hour),
		Feed:     &FeedSnapshot{LastOrderAt: &upstream, LastExternalID: "X-9"},
	}
	h := DerivePlatformHealth(obs, DefaultHealthPolicy(), testNow)
	assert.Equal(t, PlatformStatusWarning, h.Status)
	assert.Equal(t, "X-9", h.UpstreamLastExternalID)

	obs.Feed.LastExternalID = "X-1"
	h = DerivePlatformHealth(obs, DefaultHealthPolicy(), testNow)
	assert.Equal(t, PlatformStatusOK, h.Status)
}

func TestDeriveOverall(t *testing.T) {
	p := func(statuses ...PlatformStatus) []PlatformHealth {
		out := make([]PlatformHealth, len(statuses))
		for i, s := range statuses {
			out[i] = PlatformHealth{Status: s}
		}
		return out
	}

	assert.Equal(t, OverallHealthy, DeriveOverall(p(PlatformStatusOK, PlatformStatusOK), 0.5))
	assert.Equal(t, OverallWarning, DeriveOverall(p(PlatformStatusOK, PlatformStatusWarning), 0.5))
	assert.Equal(t, OverallWarning, DeriveOverall(p(PlatformStatusOK, PlatformStatusOK, PlatformStatusNoData), 0.5))
	// exactly half is not above the fraction
	assert.Equal(t, OverallWarning, DeriveOverall(p(PlatformStatusOK, PlatformStatusStale), 0.5))
	assert.Equal(t, OverallCritical, DeriveOverall(p(PlatformStatusOK, PlatformStatusStale, PlatformStatusNoData), 0.5))
	assert.Equal(t, OverallHealthy, DeriveOverall(nil, 0.5))
}

func TestBuildHealthReport_TodaySummary(t *testing.T) {
	report := BuildHealthReport([]PlatformObservation{
		{Platform: fulfillment.ChannelMarketplaceA, Cursor: cursorAt(time.Hour), Today: 4},
		{Platform: fulfillment.ChannelMarketplaceB, Cursor: cursorAt(time.Hour), Today: 6},
	}, DefaultHealthPolicy(), testNow)

	assert.Equal(t, "2026-05-12", report.TodaySummary.Date)
	assert.Equal(t, int64(10), report.TodaySummary.TotalOrders)
	assert.Equal(t, int64(6), report.TodaySummary.ByPlatform[fulfillment.ChannelMarketplaceB])
	assert.Empty(t, report.Issues)
	assert.Equal(t, OverallHealthy, report.OverallStatus)
}
