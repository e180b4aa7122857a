package fulfillment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
)

// ==================== Errors ====================

// ErrorBody is the per-item error shape of bulk results
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewErrorBody converts any error into its wire shape
func NewErrorBody(err error) *ErrorBody {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ErrorBody{Kind: shared.CodeCancelled, Message: "operation cancelled by caller: " + err.Error()}
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return &ErrorBody{Kind: de.Code, Message: de.Message}
	}
	return &ErrorBody{Kind: shared.CodeInternal, Message: err.Error()}
}

var errCancelledBeforeStart = shared.NewDomainError(shared.CodeCancelled, "cancelled before this item was processed")

// ==================== Order DTOs ====================

// OrderItemInput is one item line in a create or ingest request
type OrderItemInput struct {
	SKU       string          `json:"sku" binding:"required,min=1,max=100"`
	Name      string          `json:"name" binding:"max=200"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func toDomainItems(in []OrderItemInput) []fulfillment.OrderItem {
	items := make([]fulfillment.OrderItem, len(in))
	for i, item := range in {
		items[i] = fulfillment.OrderItem{
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return items
}

// CreateOrderRequest creates an order by manual entry or API
type CreateOrderRequest struct {
	Channel         fulfillment.Channel `json:"channel" binding:"required,channel"`
	ExternalOrderID string              `json:"external_order_id" binding:"max=100"`
	Items           []OrderItemInput    `json:"items" binding:"required,min=1,dive"`
	ShippingFee     decimal.Decimal     `json:"shipping_fee"`
	Discount        decimal.Decimal     `json:"discount"`
	TotalAmount     *decimal.Decimal    `json:"total_amount"`
	RecipientName   string              `json:"recipient_name" binding:"max=200"`
	ShippingAddress string              `json:"shipping_address" binding:"max=500"`
	Remark          string              `json:"remark" binding:"max=500"`
	OrderDatetime   *time.Time          `json:"order_datetime"`
}

// OrderListFilter represents filter options for the order list
type OrderListFilter struct {
	Platform string     `form:"platform" binding:"omitempty,channel"`
	Status   string     `form:"status" binding:"omitempty,order_status"`
	Search   string     `form:"search"`
	BatchID  *uuid.UUID `form:"-"`
	DateFrom *time.Time `form:"date_from" time_format:"2006-01-02"`
	DateTo   *time.Time `form:"date_to" time_format:"2006-01-02"`
	Page     int        `form:"page" binding:"omitempty,min=1"`
	PerPage  int        `form:"per_page" binding:"omitempty,min=1,max=200"`
	OrderBy  string     `form:"order_by" binding:"omitempty,oneof=created_at order_datetime total_amount status"`
	OrderDir string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// OrderItemResponse is one item line in API responses
type OrderItemResponse struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// OrderResponse represents an order in API responses
type OrderResponse struct {
	ID                 uuid.UUID           `json:"id"`
	ExternalOrderID    string              `json:"external_order_id,omitempty"`
	Channel            string              `json:"channel"`
	Status             string              `json:"status"`
	AllowedTransitions []string            `json:"allowed_transitions"`
	Items              []OrderItemResponse `json:"items"`
	ItemCount          int                 `json:"item_count"`
	ShippingFee        decimal.Decimal     `json:"shipping_fee"`
	Discount           decimal.Decimal     `json:"discount"`
	TotalAmount        decimal.Decimal     `json:"total_amount"`
	RecipientName      string              `json:"recipient_name,omitempty"`
	ShippingAddress    string              `json:"shipping_address,omitempty"`
	Remark             string              `json:"remark,omitempty"`
	OrderDatetime      time.Time           `json:"order_datetime"`
	PaidAt             *time.Time          `json:"paid_at,omitempty"`
	ShippedAt          *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt        *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt        *time.Time          `json:"cancelled_at,omitempty"`
	PrintedAt          *time.Time          `json:"printed_at"`
	BatchID            *uuid.UUID          `json:"batch_id"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	Version            int                 `json:"version"`
}

// StatusChangeResponse is one status history row
type StatusChangeResponse struct {
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Actor      string    `json:"actor"`
	Reason     string    `json:"reason,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

// OrderDetailResponse is an order plus its status history
type OrderDetailResponse struct {
	OrderResponse
	StatusHistory []StatusChangeResponse `json:"status_history"`
}

// ToOrderResponse converts a domain order to a response
func ToOrderResponse(o *fulfillment.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemResponse{
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal(),
		}
	}
	targets := o.Status.AllowedTargets()
	allowed := make([]string, len(targets))
	for i, t := range targets {
		allowed[i] = t.String()
	}
	return OrderResponse{
		ID:                 o.ID,
		ExternalOrderID:    o.ExternalOrderID,
		Channel:            o.Channel.String(),
		Status:             o.Status.String(),
		AllowedTransitions: allowed,
		Items:              items,
		ItemCount:          o.ItemCount(),
		ShippingFee:        o.ShippingFee,
		Discount:           o.Discount,
		TotalAmount:        o.TotalAmount,
		RecipientName:      o.RecipientName,
		ShippingAddress:    o.ShippingAddress,
		Remark:             o.Remark,
		OrderDatetime:      o.OrderDatetime,
		PaidAt:             o.PaidAt,
		ShippedAt:          o.ShippedAt,
		DeliveredAt:        o.DeliveredAt,
		CancelledAt:        o.CancelledAt,
		PrintedAt:          o.PrintedAt,
		BatchID:            o.BatchID,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		Version:            o.Version,
	}
}

// ToOrderResponses converts a slice of orders
func ToOrderResponses(orders []*fulfillment.Order) []OrderResponse {
	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = ToOrderResponse(o)
	}
	return out
}

// ==================== Ingestion DTOs ====================

// IngestRow is one order row reported by a platform feed
type IngestRow struct {
	ExternalOrderID string           `json:"external_order_id" binding:"required,min=1,max=100"`
	Status          string           `json:"status" binding:"required,order_status"`
	Items           []OrderItemInput `json:"items" binding:"required,min=1,dive"`
	ShippingFee     decimal.Decimal  `json:"shipping_fee"`
	Discount        decimal.Decimal  `json:"discount"`
	TotalAmount     *decimal.Decimal `json:"total_amount"`
	RecipientName   string           `json:"recipient_name" binding:"max=200"`
	ShippingAddress string           `json:"shipping_address" binding:"max=500"`
	Remark          string           `json:"remark" binding:"max=500"`
	OrderDatetime   *time.Time       `json:"order_datetime"`
}

// IngestOrdersRequest carries a page of platform rows
type IngestOrdersRequest struct {
	Channel fulfillment.Channel `json:"channel" binding:"required,channel"`
	Rows    []IngestRow         `json:"rows" binding:"required,min=1,max=1000,dive"`
}

// Ingest outcomes
const (
	IngestCreated   = "created"
	IngestUpdated   = "updated"
	IngestUnchanged = "unchanged"
	IngestFailed    = "failed"
)

// IngestRowResult is the outcome for one row
type IngestRowResult struct {
	ExternalOrderID string     `json:"external_order_id"`
	OrderID         *uuid.UUID `json:"order_id,omitempty"`
	Outcome         string     `json:"outcome"`
	Status          string     `json:"status,omitempty"`
	Error           *ErrorBody `json:"error,omitempty"`
}

// IngestResult summarizes an ingestion call
type IngestResult struct {
	Created   int               `json:"created"`
	Updated   int               `json:"updated"`
	Unchanged int               `json:"unchanged"`
	Failed    int               `json:"failed"`
	Rows      []IngestRowResult `json:"rows"`
}

func (r *IngestResult) add(row IngestRowResult) {
	switch row.Outcome {
	case IngestCreated:
		r.Created++
	case IngestUpdated:
		r.Updated++
	case IngestUnchanged:
		r.Unchanged++
	default:
		r.Failed++
	}
	r.Rows = append(r.Rows, row)
}

// ==================== Transition DTOs ====================

// TransitionRequest moves a single order
type TransitionRequest struct {
	Status  string `json:"status" binding:"required,order_status"`
	ActorID string `json:"actor_id" binding:"max=100"`
	Reason  string `json:"reason" binding:"max=500"`
}

// BulkTransitionRequest moves several orders independently
type BulkTransitionRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids" binding:"required,min=1,max=500"`
	Status   string      `json:"status" binding:"required,order_status"`
	ActorID  string      `json:"actor_id" binding:"max=100"`
	Reason   string      `json:"reason" binding:"max=500"`
}

// TransitionItemResult is the outcome for one order of a bulk call
type TransitionItemResult struct {
	OrderID uuid.UUID  `json:"order_id"`
	Success bool       `json:"success"`
	Status  string     `json:"status,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// BulkTransitionResult lists outcomes in request order
type BulkTransitionResult struct {
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	Results   []TransitionItemResult `json:"results"`
}

// ==================== Batch DTOs ====================

// CreateBatchRequest asks for a new batch over the current pending pool
type CreateBatchRequest struct {
	Platform string `json:"platform" binding:"omitempty,channel"`
	Notes    string `json:"notes" binding:"max=500"`
}

// CancelBatchRequest cancels a batch and releases its members
type CancelBatchRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

// BatchListFilter represents filter options for the batch list
type BatchListFilter struct {
	Platform string `form:"platform" binding:"omitempty,channel"`
	Status   string `form:"status" binding:"omitempty,oneof=PENDING IN_PROGRESS COMPLETED CANCELLED"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PerPage  int    `form:"per_page" binding:"omitempty,min=1,max=200"`
}

// BatchResponse represents a batch in API responses
type BatchResponse struct {
	ID           uuid.UUID  `json:"id"`
	BatchNumber  int64      `json:"batch_number"`
	Platform     *string    `json:"platform"`
	CutoffAt     time.Time  `json:"cutoff_at"`
	OrderCount   int        `json:"order_count"`
	PackedCount  int        `json:"packed_count"`
	PrintedCount int        `json:"printed_count"`
	Status       string     `json:"status"`
	Notes        string     `json:"notes,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// BatchDetailResponse is a batch with its member orders
type BatchDetailResponse struct {
	BatchResponse
	Members []OrderResponse `json:"members"`
}

// ToBatchResponse converts a domain batch to a response
func ToBatchResponse(b *fulfillment.Batch) BatchResponse {
	var platform *string
	if b.Platform != nil {
		p := b.Platform.String()
		platform = &p
	}
	return BatchResponse{
		ID:           b.ID,
		BatchNumber:  b.BatchNumber,
		Platform:     platform,
		CutoffAt:     b.CutoffAt,
		OrderCount:   b.OrderCount,
		PackedCount:  b.PackedCount,
		PrintedCount: b.PrintedCount,
		Status:       string(b.Status),
		Notes:        b.Notes,
		CancelReason: b.CancelReason,
		CompletedAt:  b.CompletedAt,
		CancelledAt:  b.CancelledAt,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}

// ==================== Label DTOs ====================

// MarkPrintedRequest records printed labels
type MarkPrintedRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids" binding:"required,min=1,max=1000"`
}

// FailedItem names an order a bulk call could not process
type FailedItem struct {
	OrderID uuid.UUID  `json:"order_id"`
	Error   *ErrorBody `json:"error"`
}

// MarkPrintedResult reports updated, skipped and failed orders
type MarkPrintedResult struct {
	UpdatedCount int          `json:"updated_count"`
	SkippedIDs   []uuid.UUID  `json:"skipped_ids"`
	Failed       []FailedItem `json:"failed"`
}

// LabelArtifact is a rendered label document
type LabelArtifact struct {
	ID          uuid.UUID `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	URL         string    `json:"url,omitempty"`
	LabelCount  int       `json:"label_count"`
	Data        []byte    `json:"-"`
}

// ==================== Helpers ====================

func parsePlatform(s string) (*fulfillment.Channel, error) {
	if s == "" {
		return nil, nil
	}
	c, err := fulfillment.ParseChannel(s)
	if err != nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, err.Error())
	}
	return &c, nil
}

func parseStatus(s string) (fulfillment.OrderStatus, error) {
	status, err := fulfillment.ParseOrderStatus(s)
	if err != nil {
		return "", shared.NewDomainError(shared.CodeInvalidInput, err.Error())
	}
	return status, nil
}
