package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/orderhub/backend/internal/domain/shared"
)

// OrderQuery narrows an order listing. Search matches external id, recipient
// name and sku; DateFrom/DateTo bound order_datetime.
type OrderQuery struct {
	shared.Filter
	Platform *Channel
	Statuses []OrderStatus
	BatchID  *uuid.UUID
}

// OrderRepository defines persistence for orders
type OrderRepository interface {
	// FindByID loads an order with its items
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindByIDs loads the orders that exist among ids, in no particular order
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*Order, error)

	// FindByExternalID looks up the ingestion key
	FindByExternalID(ctx context.Context, channel Channel, externalID string) (*Order, error)

	// FindAll lists orders matching the query and returns the total count
	FindAll(ctx context.Context, query OrderQuery) ([]*Order, int64, error)

	// FindPendingLabels lists unprinted orders in statuses, oldest first
	FindPendingLabels(ctx context.Context, platform *Channel, statuses []OrderStatus) ([]*Order, error)

	// CountEligible counts unbatched orders in the ready statuses
	CountEligible(ctx context.Context, platform *Channel, ready []OrderStatus) (int64, error)

	// CreateWithEvents inserts a new order and writes its events to the outbox
	// in one transaction
	CreateWithEvents(ctx context.Context, order *Order, events []shared.DomainEvent) error

	// SaveTransition persists a status change with an optimistic version check,
	// appends the history row and writes events to the outbox in one transaction
	SaveTransition(ctx context.Context, order *Order, change StatusChange, events []shared.DomainEvent) error

	// SavePrinted records printed_at with an optimistic version check
	SavePrinted(ctx context.Context, order *Order) error

	// FindStatusHistory returns the committed transitions of an order, oldest first
	FindStatusHistory(ctx context.Context, orderID uuid.UUID) ([]StatusChange, error)
}

// BatchQuery narrows a batch listing
type BatchQuery struct {
	shared.Filter
	Platform *Channel
	Statuses []BatchStatus
}

// BatchSelection describes which orders a new batch takes
type BatchSelection struct {
	Platform      *Channel
	ReadyStatuses []OrderStatus
	CutoffAt      time.Time
}

// BatchBuilder builds the batch once the repository has picked the members
// and the next number in the scope
type BatchBuilder func(number int64, members []uuid.UUID) (*Batch, error)

// ProgressUpdater applies a member scan to a locked batch and reports
// whether anything changed
type ProgressUpdater func(batch *Batch, members []*Order) (bool, error)

// BatchRepository defines persistence for packing batches
type BatchRepository interface {
	// FindByID loads a batch and its member ids
	FindByID(ctx context.Context, id uuid.UUID) (*Batch, error)

	// FindAll lists batches, newest first by default
	FindAll(ctx context.Context, query BatchQuery) ([]*Batch, int64, error)

	// CreateFromEligible selects eligible orders, numbers the batch within its
	// scope and claims every member in a single transaction. A short claim or
	// a duplicate number returns ErrConcurrentBatchConflict and rolls back.
	CreateFromEligible(ctx context.Context, sel BatchSelection, build BatchBuilder) (*Batch, error)

	// UpdateProgress locks the batch row, loads its members and persists the
	// counters if fn reports a change
	UpdateProgress(ctx context.Context, id uuid.UUID, fn ProgressUpdater) (*Batch, error)

	// CancelAndRelease locks the batch, applies fn and clears batch_id on
	// every member in the same transaction
	CancelAndRelease(ctx context.Context, id uuid.UUID, fn func(batch *Batch) error) (*Batch, error)
}
