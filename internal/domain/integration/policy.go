package integration

import (
	"time"

	"github.com/orderhub/backend/internal/domain/shared"
)

// HealthPolicy holds the thresholds used to judge sync health
type HealthPolicy struct {
	// StaleAfter applies while now falls inside business hours
	StaleAfter time.Duration
	// OffHoursStaleAfter applies outside business hours, when marketplaces
	// legitimately go quiet
	OffHoursStaleAfter time.Duration
	// BusinessStartHour and BusinessEndHour bound trading hours, [start, end)
	BusinessStartHour int
	BusinessEndHour   int
	// Location is the business time zone for hours and calendar days
	Location *time.Location
	// CriticalFraction is the share of stale/no_data platforms above which
	// the overall verdict is critical
	CriticalFraction float64
	// LowVolumeRatio flags volume below this share of the baseline median
	LowVolumeRatio float64
	// TrailingDays is the baseline window for the low-volume warning
	TrailingDays int
	// MinBaselineOrders is the smallest median that supports a volume verdict
	MinBaselineOrders float64
	// MaxGapDays caps the gap scan window
	MaxGapDays int
}

// DefaultHealthPolicy returns the stock thresholds
func DefaultHealthPolicy() HealthPolicy {
	return HealthPolicy{
		StaleAfter:         24 * time.Hour,
		OffHoursStaleAfter: 36 * time.Hour,
		BusinessStartHour:  8,
		BusinessEndHour:    22,
		Location:           time.UTC,
		CriticalFraction:   0.5,
		LowVolumeRatio:     0.3,
		TrailingDays:       7,
		MinBaselineOrders:  5,
		MaxGapDays:         90,
	}
}

// Validate checks the policy for obviously broken values
func (p HealthPolicy) Validate() error {
	if p.StaleAfter <= 0 || p.OffHoursStaleAfter <= 0 {
		return shared.NewDomainError(shared.CodeInvalidInput, "stale thresholds must be positive")
	}
	if p.BusinessStartHour < 0 || p.BusinessEndHour > 24 || p.BusinessStartHour >= p.BusinessEndHour {
		return shared.NewDomainErrorf(shared.CodeInvalidInput,
			"invalid business hours %d-%d", p.BusinessStartHour, p.BusinessEndHour)
	}
	if p.CriticalFraction <= 0 || p.CriticalFraction > 1 {
		return shared.NewDomainError(shared.CodeInvalidInput, "critical fraction must be in (0, 1]")
	}
	if p.LowVolumeRatio <= 0 || p.LowVolumeRatio >= 1 {
		return shared.NewDomainError(shared.CodeInvalidInput, "low volume ratio must be in (0, 1)")
	}
	if p.TrailingDays < 1 || p.MaxGapDays < 1 {
		return shared.NewDomainError(shared.CodeInvalidInput, "trailing and gap windows must be at least one day")
	}
	return nil
}

func (p HealthPolicy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// InBusinessHours reports whether t falls inside trading hours
func (p HealthPolicy) InBusinessHours(t time.Time) bool {
	h := t.In(p.location()).Hour()
	return h >= p.BusinessStartHour && h < p.BusinessEndHour
}

// StaleThreshold returns the allowed silence at now
func (p HealthPolicy) StaleThreshold(now time.Time) time.Duration {
	if p.InBusinessHours(now) {
		return p.StaleAfter
	}
	return p.OffHoursStaleAfter
}

// DayStart returns local midnight of the calendar day containing t
func (p HealthPolicy) DayStart(t time.Time) time.Time {
	local := t.In(p.location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.location())
}

// CompletedDays returns the starts of the n calendar days before today,
// oldest first. Today is excluded since it is still filling up.
func (p HealthPolicy) CompletedDays(now time.Time, n int) []time.Time {
	today := p.DayStart(now)
	days := make([]time.Time, n)
	for i := 0; i < n; i++ {
		days[i] = today.AddDate(0, 0, i-n)
	}
	return days
}

// DateKey formats a day for reports and bucketing
func (p HealthPolicy) DateKey(t time.Time) string {
	return t.In(p.location()).Format(time.DateOnly)
}
