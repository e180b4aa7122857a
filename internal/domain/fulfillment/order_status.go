package fulfillment

import (
	"fmt"
	"strings"
)

// OrderStatus is the normalized fulfillment status of an order
type OrderStatus string

const (
	StatusNew         OrderStatus = "NEW"
	StatusPaid        OrderStatus = "PAID"
	StatusPacking     OrderStatus = "PACKING"
	StatusReadyToShip OrderStatus = "READY_TO_SHIP"
	StatusShipped     OrderStatus = "SHIPPED"
	StatusDelivered   OrderStatus = "DELIVERED"
	StatusCancelled   OrderStatus = "CANCELLED"
)

// statusRank orders the linear part of the lifecycle. CANCELLED is off the
// line and has no rank.
var statusRank = map[OrderStatus]int{
	StatusNew:         0,
	StatusPaid:        1,
	StatusPacking:     2,
	StatusReadyToShip: 3,
	StatusShipped:     4,
	StatusDelivered:   5,
}

var allowedTransitions = map[OrderStatus][]OrderStatus{
	StatusNew:         {StatusPaid, StatusCancelled},
	StatusPaid:        {StatusPacking, StatusCancelled},
	StatusPacking:     {StatusReadyToShip, StatusCancelled},
	StatusReadyToShip: {StatusShipped, StatusCancelled},
	StatusShipped:     {StatusDelivered},
	StatusDelivered:   {},
	StatusCancelled:   {},
}

// AllOrderStatuses lists statuses in lifecycle order, CANCELLED last
func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{
		StatusNew, StatusPaid, StatusPacking, StatusReadyToShip,
		StatusShipped, StatusDelivered, StatusCancelled,
	}
}

// IsValid checks if the status is a known value
func (s OrderStatus) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// String returns the string representation
func (s OrderStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no transition leaves this status
func (s OrderStatus) IsTerminal() bool {
	return s.IsValid() && len(allowedTransitions[s]) == 0
}

// Rank returns the position on the linear lifecycle, or -1 for CANCELLED
// and unknown values.
func (s OrderStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is at or past other on the linear lifecycle.
// CANCELLED is never at least anything.
func (s OrderStatus) AtLeast(other OrderStatus) bool {
	r := s.Rank()
	return r >= 0 && r >= other.Rank() && other.Rank() >= 0
}

// CanTransitionTo checks the transition table
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// AllowedTargets returns the statuses reachable in one step
func (s OrderStatus) AllowedTargets() []OrderStatus {
	targets := allowedTransitions[s]
	out := make([]OrderStatus, len(targets))
	copy(out, targets)
	return out
}

// ParseOrderStatus parses a status name case-insensitively
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return status, nil
}

// DefaultReadyStatuses is the status set eligible for packing batches
func DefaultReadyStatuses() []OrderStatus {
	return []OrderStatus{StatusPaid, StatusPacking}
}

// LabelPendingStatuses returns the statuses that still need a shipping label.
// With includeShipped the shipped orders lacking a print record are included,
// which surfaces labels printed outside this system.
func LabelPendingStatuses(includeShipped bool) []OrderStatus {
	statuses := []OrderStatus{StatusPaid, StatusPacking, StatusReadyToShip}
	if includeShipped {
		statuses = append(statuses, StatusShipped)
	}
	return statuses
}

// ContainsStatus reports whether s is in set
func ContainsStatus(set []OrderStatus, s OrderStatus) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}
