package fulfillment

import (
	"time"

	"github.com/google/uuid"

	"github.com/orderhub/backend/internal/domain/shared"
)

// BatchStatus is the lifecycle state of a packing batch
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "PENDING"
	BatchStatusInProgress BatchStatus = "IN_PROGRESS"
	BatchStatusCompleted  BatchStatus = "COMPLETED"
	BatchStatusCancelled  BatchStatus = "CANCELLED"
)

// IsValid checks if the status is a known value
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusPending, BatchStatusInProgress, BatchStatusCompleted, BatchStatusCancelled:
		return true
	}
	return false
}

// IsCancellable reports whether a manual cancel is allowed
func (s BatchStatus) IsCancellable() bool {
	return s == BatchStatusPending || s == BatchStatusInProgress
}

// Batch is a packing run. Its counters are always derived from member orders.
type Batch struct {
	shared.BaseAggregateRoot
	BatchNumber  int64
	Platform     *Channel
	CutoffAt     time.Time
	OrderCount   int
	PackedCount  int
	PrintedCount int
	Status       BatchStatus
	Notes        string
	CancelReason string
	CompletedAt  *time.Time
	CancelledAt  *time.Time

	// MemberIDs is populated when the batch is created or loaded with members
	MemberIDs []uuid.UUID
}

// NewBatch freezes membership at cutoff. Batches are never created empty.
func NewBatch(platform *Channel, number int64, cutoff time.Time, members []uuid.UUID, notes string) (*Batch, error) {
	if len(members) == 0 {
		return nil, ErrNoEligibleOrders
	}
	if number <= 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "batch number must be positive")
	}
	if platform != nil && !platform.IsValid() {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "unknown channel %q", *platform)
	}

	b := &Batch{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		BatchNumber:       number,
		CutoffAt:          cutoff.UTC(),
		OrderCount:        len(members),
		Status:            BatchStatusPending,
		Notes:             notes,
		MemberIDs:         append([]uuid.UUID(nil), members...),
	}
	if platform != nil {
		p := *platform
		b.Platform = &p
	}
	return b, nil
}

// Scope returns the numbering scope of the batch
func (b *Batch) Scope() string {
	return ScopeKey(b.Platform)
}

// BatchProgress is the member scan result
type BatchProgress struct {
	Members int
	Packed  int
	Printed int
}

// ComputeProgress scans member orders. Packed counts members at or past
// PACKING; a cancelled member is neither packed nor pending.
func ComputeProgress(members []*Order) BatchProgress {
	p := BatchProgress{Members: len(members)}
	for _, o := range members {
		if o.Status.AtLeast(StatusPacking) {
			p.Packed++
		}
		if o.PrintedAt != nil {
			p.Printed++
		}
	}
	return p
}

// ApplyProgress replaces the counters with a fresh scan and advances the
// status. It returns true when anything changed. Cancelled batches have
// released their members and are left untouched.
func (b *Batch) ApplyProgress(p BatchProgress, now time.Time) bool {
	if b.Status == BatchStatusCancelled {
		return false
	}

	packed := min(p.Packed, b.OrderCount)
	printed := min(p.Printed, b.OrderCount)
	changed := packed != b.PackedCount || printed != b.PrintedCount
	b.PackedCount = packed
	b.PrintedCount = printed

	switch b.Status {
	case BatchStatusPending, BatchStatusInProgress:
		if b.OrderCount > 0 && packed == b.OrderCount && printed == b.OrderCount {
			t := now.UTC()
			b.Status = BatchStatusCompleted
			b.CompletedAt = &t
			changed = true
		} else if b.Status == BatchStatusPending && (packed > 0 || printed > 0) {
			b.Status = BatchStatusInProgress
			changed = true
		}
	}

	if changed {
		b.Touch(now.UTC())
	}
	return changed
}

// Cancel moves the batch to CANCELLED. The caller releases member orders in
// the same unit of work.
func (b *Batch) Cancel(reason string, now time.Time) error {
	if !b.Status.IsCancellable() {
		return shared.NewDomainErrorf(shared.CodeInvalidState,
			"cannot cancel batch %d in %s status", b.BatchNumber, b.Status)
	}
	t := now.UTC()
	b.Status = BatchStatusCancelled
	b.CancelReason = reason
	b.CancelledAt = &t
	b.Touch(t)
	return nil
}
