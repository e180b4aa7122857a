package fulfillment

import (
	"github.com/google/uuid"

	"github.com/orderhub/backend/internal/domain/shared"
)

var (
	// ErrNoEligibleOrders is returned when a batch selection is empty
	ErrNoEligibleOrders = shared.NewDomainError(shared.CodeNoEligibleOrders, "no eligible orders for batch")
	// ErrConcurrentBatchConflict is returned to the losing side of a batch creation race
	ErrConcurrentBatchConflict = shared.NewDomainError(shared.CodeConcurrentBatch, "another batch creation for this scope is in progress, retry")
)

// NewInvalidTransitionError names both the current and the requested status
func NewInvalidTransitionError(current, requested OrderStatus) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeInvalidTransition,
		"cannot transition order from %s to %s", current, requested)
}

// NewOrderNotFoundError reports a missing order id
func NewOrderNotFoundError(id uuid.UUID) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeNotFound, "order %s not found", id)
}

// NewBatchNotFoundError reports a missing batch id
func NewBatchNotFoundError(id uuid.UUID) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeNotFound, "batch %s not found", id)
}

// ErrDuplicateOrder is returned when (channel, external_order_id) already exists
var ErrDuplicateOrder = shared.NewDomainError(shared.CodeConcurrencyConflict, "order with this channel and external order id already exists")

// NewStaleOrderError reports a lost optimistic version check
func NewStaleOrderError(id uuid.UUID) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeConcurrencyConflict, "order %s was modified concurrently", id)
}
