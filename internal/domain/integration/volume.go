package integration

import (
	"sort"
	"time"
)

// DailyVolume is the order count of one calendar day
type DailyVolume struct {
	Date  time.Time
	Count int64
}

// VolumeBuckets counts order timestamps per completed day and tracks the
// last-24h and today totals in the same pass.
type VolumeBuckets struct {
	policy    HealthPolicy
	now       time.Time
	days      []time.Time
	index     map[string]int
	counts    []int64
	today     time.Time
	last24h   time.Time
	todayN    int64
	last24hN  int64
	firstDay  time.Time
	untilTime time.Time
}

// NewVolumeBuckets prepares buckets for the given number of completed days
func NewVolumeBuckets(policy HealthPolicy, now time.Time, days int) *VolumeBuckets {
	if days < 1 {
		days = 1
	}
	b := &VolumeBuckets{
		policy:  policy,
		now:     now,
		days:    policy.CompletedDays(now, days),
		index:   make(map[string]int, days),
		counts:  make([]int64, days),
		today:   policy.DayStart(now),
		last24h: now.Add(-24 * time.Hour),
	}
	for i, d := range b.days {
		b.index[policy.DateKey(d)] = i
	}
	b.firstDay = b.days[0]
	if b.last24h.Before(b.firstDay) {
		b.firstDay = b.last24h
	}
	b.untilTime = now
	return b
}

// Window returns the [from, to) range the caller should stream
func (b *VolumeBuckets) Window() (time.Time, time.Time) {
	return b.firstDay, b.untilTime
}

// Add records one order timestamp
func (b *VolumeBuckets) Add(t time.Time) {
	if t.After(b.now) {
		return
	}
	if !t.Before(b.last24h) {
		b.last24hN++
	}
	if !t.Before(b.today) {
		b.todayN++
		return
	}
	if i, ok := b.index[b.policy.DateKey(t)]; ok {
		b.counts[i]++
	}
}

// Daily returns the completed-day volumes, oldest first
func (b *VolumeBuckets) Daily() []DailyVolume {
	out := make([]DailyVolume, len(b.days))
	for i, d := range b.days {
		out[i] = DailyVolume{Date: d, Count: b.counts[i]}
	}
	return out
}

// Last24h returns the count of orders within 24 hours of now
func (b *VolumeBuckets) Last24h() int64 { return b.last24hN }

// Today returns the count since local midnight
func (b *VolumeBuckets) Today() int64 { return b.todayN }

// Median returns the median of counts, 0 for an empty slice
func Median(counts []int64) float64 {
	if len(counts) == 0 {
		return 0
	}
	sorted := append([]int64(nil), counts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}

// TailMedian returns the median of the last n daily volumes
func TailMedian(days []DailyVolume, n int) float64 {
	if n > len(days) {
		n = len(days)
	}
	counts := make([]int64, 0, n)
	for _, d := range days[len(days)-n:] {
		counts = append(counts, d.Count)
	}
	return Median(counts)
}
