package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/orderhub/backend/internal/domain/fulfillment"
)

// BatchModel is the persistence model for the Batch aggregate root.
// Scope is "all" for cross-platform batches, otherwise the channel tag, and
// batch numbers are unique within a scope.
type BatchModel struct {
	AggregateModel
	Scope        string                  `gorm:"type:varchar(32);not null;uniqueIndex:idx_batches_scope_number,priority:1"`
	BatchNumber  int64                   `gorm:"not null;uniqueIndex:idx_batches_scope_number,priority:2"`
	Platform     *fulfillment.Channel    `gorm:"type:varchar(32)"`
	CutoffAt     time.Time               `gorm:"not null"`
	OrderCount   int                     `gorm:"not null;default:0"`
	PackedCount  int                     `gorm:"not null;default:0"`
	PrintedCount int                     `gorm:"not null;default:0"`
	Status       fulfillment.BatchStatus `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	Notes        string                  `gorm:"type:text"`
	CancelReason string                  `gorm:"type:varchar(500)"`
	CompletedAt  *time.Time
	CancelledAt  *time.Time
}

// TableName returns the table name for GORM
func (BatchModel) TableName() string {
	return "batches"
}

// ToDomain converts the persistence model to a domain Batch. Members are
// attached by the repository.
func (m *BatchModel) ToDomain() *fulfillment.Batch {
	b := &fulfillment.Batch{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		BatchNumber:       m.BatchNumber,
		CutoffAt:          m.CutoffAt.UTC(),
		OrderCount:        m.OrderCount,
		PackedCount:       m.PackedCount,
		PrintedCount:      m.PrintedCount,
		Status:            m.Status,
		Notes:             m.Notes,
		CancelReason:      m.CancelReason,
		CompletedAt:       utcPtr(m.CompletedAt),
		CancelledAt:       utcPtr(m.CancelledAt),
	}
	if m.Platform != nil {
		p := *m.Platform
		b.Platform = &p
	}
	return b
}

// FromDomain populates the persistence model from a domain Batch
func (m *BatchModel) FromDomain(b *fulfillment.Batch) {
	m.FromDomainAggregateRoot(b.BaseAggregateRoot)
	m.Scope = b.Scope()
	m.BatchNumber = b.BatchNumber
	m.Platform = b.Platform
	m.CutoffAt = b.CutoffAt
	m.OrderCount = b.OrderCount
	m.PackedCount = b.PackedCount
	m.PrintedCount = b.PrintedCount
	m.Status = b.Status
	m.Notes = b.Notes
	m.CancelReason = b.CancelReason
	m.CompletedAt = b.CompletedAt
	m.CancelledAt = b.CancelledAt
}

// BatchModelFromDomain creates a new persistence model from a domain Batch
func BatchModelFromDomain(b *fulfillment.Batch) *BatchModel {
	m := &BatchModel{}
	m.FromDomain(b)
	return m
}

// BatchMemberModel freezes batch membership at creation. Rows survive a
// cancel even though the orders' batch_id is cleared.
type BatchMemberModel struct {
	BatchID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID  uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	Position int       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BatchMemberModel) TableName() string {
	return "batch_members"
}
