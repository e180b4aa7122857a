package fulfillment

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/orderhub/backend/internal/domain/shared"
)

// TotalTolerance is the rounding tolerance allowed between a supplied total
// and the total derived from items, fees and discount.
var TotalTolerance = decimal.NewFromFloat(0.01)

// OrderItem is one line of an order
type OrderItem struct {
	SKU       string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Subtotal returns quantity * unit price
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i OrderItem) validate() error {
	if strings.TrimSpace(i.SKU) == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "item sku cannot be empty")
	}
	if i.Quantity <= 0 {
		return shared.NewDomainErrorf(shared.CodeInvalidInput, "item %s quantity must be positive", i.SKU)
	}
	if i.UnitPrice.IsNegative() {
		return shared.NewDomainErrorf(shared.CodeInvalidInput, "item %s unit price cannot be negative", i.SKU)
	}
	return nil
}

// ActorContext identifies who requested a change
type ActorContext struct {
	ActorID string
	Source  string
	Reason  string
}

// String renders the actor for history rows and logs
func (a ActorContext) String() string {
	switch {
	case a.ActorID != "" && a.Source != "":
		return a.Source + ":" + a.ActorID
	case a.ActorID != "":
		return a.ActorID
	case a.Source != "":
		return a.Source
	default:
		return "system"
	}
}

// StatusChange records one committed transition
type StatusChange struct {
	OrderID    uuid.UUID
	FromStatus OrderStatus
	ToStatus   OrderStatus
	Actor      string
	Reason     string
	ChangedAt  time.Time
}

// Order is the aggregate root for a fulfillment order
type Order struct {
	shared.BaseAggregateRoot
	ExternalOrderID string
	Channel         Channel
	Status          OrderStatus
	Items           []OrderItem
	ShippingFee     decimal.Decimal
	Discount        decimal.Decimal
	TotalAmount     decimal.Decimal
	RecipientName   string
	ShippingAddress string
	Remark          string
	OrderDatetime   time.Time
	PaidAt          *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	PrintedAt       *time.Time
	BatchID         *uuid.UUID
}

// NewOrderParams describes an order at creation or ingestion time
type NewOrderParams struct {
	Channel         Channel
	ExternalOrderID string
	Items           []OrderItem
	ShippingFee     decimal.Decimal
	Discount        decimal.Decimal
	RecipientName   string
	ShippingAddress string
	Remark          string
	OrderDatetime   time.Time
	// InitialStatus is the platform-reported status for ingested rows.
	// Empty means NEW.
	InitialStatus OrderStatus
	// ExpectedTotal, when set, must match the derived total within TotalTolerance
	ExpectedTotal *decimal.Decimal
}

// NewOrder validates params and creates an order.
// Orders created at or past PAID queue a finance reconciliation signal, since
// they never pass through the PAID transition inside this system.
func NewOrder(p NewOrderParams) (*Order, error) {
	if !p.Channel.IsValid() {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "unknown channel %q", p.Channel)
	}
	externalID := strings.TrimSpace(p.ExternalOrderID)
	if p.Channel.IsMarketplace() && externalID == "" {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "external order id is required for channel %s", p.Channel)
	}
	if len(p.Items) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "order must have at least one item")
	}
	for _, item := range p.Items {
		if err := item.validate(); err != nil {
			return nil, err
		}
	}
	if p.ShippingFee.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "shipping fee cannot be negative")
	}
	if p.Discount.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "discount cannot be negative")
	}

	status := p.InitialStatus
	if status == "" {
		status = StatusNew
	}
	if !status.IsValid() {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "unknown order status %q", status)
	}

	order := &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ExternalOrderID:   externalID,
		Channel:           p.Channel,
		Status:            status,
		Items:             append([]OrderItem(nil), p.Items...),
		ShippingFee:       p.ShippingFee,
		Discount:          p.Discount,
		RecipientName:     strings.TrimSpace(p.RecipientName),
		ShippingAddress:   strings.TrimSpace(p.ShippingAddress),
		Remark:            p.Remark,
		OrderDatetime:     p.OrderDatetime.UTC(),
	}
	if order.OrderDatetime.IsZero() {
		order.OrderDatetime = order.CreatedAt
	}

	order.TotalAmount = order.ComputeTotal()
	if order.TotalAmount.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "discount exceeds order value")
	}
	if p.ExpectedTotal != nil {
		if err := order.VerifyTotal(*p.ExpectedTotal); err != nil {
			return nil, err
		}
	}

	order.stampStatusTime(status, order.CreatedAt)
	if status.AtLeast(StatusPaid) {
		order.AddDomainEvent(NewFinanceReconciliationRequestedEvent(order))
	}
	return order, nil
}

// ComputeTotal derives sum(subtotals) + shipping fee - discount
func (o *Order) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total.Add(o.ShippingFee).Sub(o.Discount)
}

// VerifyTotal checks a supplied total against the derived one
func (o *Order) VerifyTotal(expected decimal.Decimal) error {
	derived := o.ComputeTotal()
	if derived.Sub(expected).Abs().GreaterThan(TotalTolerance) {
		return shared.NewDomainErrorf(shared.CodeInvalidInput,
			"total amount %s does not match derived total %s", expected.StringFixed(2), derived.StringFixed(2))
	}
	return nil
}

// ItemCount returns the total quantity across items
func (o *Order) ItemCount() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

// Transition moves the order to target if the transition table allows it.
// Entering PAID queues a finance reconciliation signal and entering CANCELLED
// queues a stock deallocation signal.
func (o *Order) Transition(target OrderStatus, actor ActorContext, now time.Time) (StatusChange, error) {
	if !target.IsValid() {
		return StatusChange{}, shared.NewDomainErrorf(shared.CodeInvalidInput, "unknown order status %q", target)
	}
	if !o.Status.CanTransitionTo(target) {
		return StatusChange{}, NewInvalidTransitionError(o.Status, target)
	}

	now = now.UTC()
	change := StatusChange{
		OrderID:    o.ID,
		FromStatus: o.Status,
		ToStatus:   target,
		Actor:      actor.String(),
		Reason:     actor.Reason,
		ChangedAt:  now,
	}

	o.Status = target
	o.stampStatusTime(target, now)
	o.Touch(now)

	o.AddDomainEvent(NewOrderStatusChangedEvent(o, change))
	switch target {
	case StatusPaid:
		o.AddDomainEvent(NewFinanceReconciliationRequestedEvent(o))
	case StatusCancelled:
		o.AddDomainEvent(NewStockDeallocationRequestedEvent(o, change.FromStatus))
	}
	return change, nil
}

func (o *Order) stampStatusTime(status OrderStatus, at time.Time) {
	t := at
	switch status {
	case StatusPaid:
		o.PaidAt = &t
	case StatusShipped:
		o.ShippedAt = &t
	case StatusDelivered:
		o.DeliveredAt = &t
	case StatusCancelled:
		o.CancelledAt = &t
	}
}

// IsPrinted reports whether a label was recorded
func (o *Order) IsPrinted() bool {
	return o.PrintedAt != nil
}

// MarkPrinted records a printed label. It returns false without error when
// the order was already printed. A label can only be confirmed once the order
// is at least PACKING.
func (o *Order) MarkPrinted(now time.Time) (bool, error) {
	if o.PrintedAt != nil {
		return false, nil
	}
	if !o.Status.AtLeast(StatusPacking) {
		return false, shared.NewDomainErrorf(shared.CodeInvalidState,
			"cannot mark order %s printed in %s status", o.ID, o.Status)
	}
	t := now.UTC()
	o.PrintedAt = &t
	o.Touch(t)
	return true, nil
}

// NeedsLabel reports whether the order belongs on the pending label list
func (o *Order) NeedsLabel(includeShipped bool) bool {
	return o.PrintedAt == nil && ContainsStatus(LabelPendingStatuses(includeShipped), o.Status)
}

// IsEligibleForBatch reports whether the order can join a new batch
func (o *Order) IsEligibleForBatch(ready []OrderStatus) bool {
	return o.BatchID == nil && ContainsStatus(ready, o.Status)
}

// InBatch reports whether the order is a member of the given batch
func (o *Order) InBatch(batchID uuid.UUID) bool {
	return o.BatchID != nil && *o.BatchID == batchID
}
