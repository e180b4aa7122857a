package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ShippingLabel is the printable projection of an order
type ShippingLabel struct {
	OrderID         uuid.UUID
	ExternalOrderID string
	Channel         Channel
	Status          OrderStatus
	RecipientName   string
	ShippingAddress string
	Remark          string
	Items           []OrderItem
	ItemCount       int
	TotalAmount     decimal.Decimal
	OrderDatetime   time.Time
	BatchNumber     int64
}

// NewShippingLabel projects an order onto a label
func NewShippingLabel(o *Order) ShippingLabel {
	return ShippingLabel{
		OrderID:         o.ID,
		ExternalOrderID: o.ExternalOrderID,
		Channel:         o.Channel,
		Status:          o.Status,
		RecipientName:   o.RecipientName,
		ShippingAddress: o.ShippingAddress,
		Remark:          o.Remark,
		Items:           o.Items,
		ItemCount:       o.ItemCount(),
		TotalAmount:     o.TotalAmount,
		OrderDatetime:   o.OrderDatetime,
	}
}

// LabelSheet is one printable document holding several labels
type LabelSheet struct {
	Title       string
	GeneratedAt time.Time
	Labels      []ShippingLabel
}

// LabelRenderer turns a sheet into a printable document
type LabelRenderer interface {
	Render(ctx context.Context, sheet LabelSheet) ([]byte, error)
	ContentType() string
}

// ArtifactStore keeps rendered documents and returns a retrieval URL
type ArtifactStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
