package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

const (
	OrderPlacedEventName    = "OrderPlaced"
	OrderCompletedEventName = "OrderCompleted"
	orderEventVersion       = 1
)

type OrderLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

type OrderPlacedPayload struct {
	OrderID          string      `json:"orderId"`
	UserID           string      `json:"userId"`
	CartID           string      `json:"cartId"`
	PaymentMethod    string      `json:"paymentMethod"`
	PaymentReference string      `json:"paymentReference,omitempty"`
	Status           string      `json:"status"`
	TotalAmount      string      `json:"totalAmount"`
	Items            []OrderLine `json:"items"`
	PlacedAt         time.Time   `json:"placedAt"`
}

type OrderCompletedPayload struct {
	OrderID          string    `json:"orderId"`
	UserID           string    `json:"userId"`
	PaymentMethod    string    `json:"paymentMethod"`
	PaymentReference string    `json:"paymentReference,omitempty"`
	TotalAmount      string    `json:"totalAmount"`
	CompletedAt      time.Time `json:"completedAt"`
}

type OrderPlacedEnvelope = EventEnvelope[OrderPlacedPayload]
type OrderCompletedEnvelope = EventEnvelope[OrderCompletedPayload]

// Meta carries request context into emitted events.
type Meta struct {
	CorrelationID string
}

func BuildOrderPlaced(o *order.Order, seq int64, meta Meta, now time.Time) OrderPlacedEnvelope {
	lines := make([]OrderLine, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, OrderLine{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.StringFixed(2),
		})
	}

	return OrderPlacedEnvelope{
		EventName:     OrderPlacedEventName,
		EventVersion:  orderEventVersion,
		EventID:       uuid.NewString(),
		CorrelationID: meta.CorrelationID,
		Producer:      checkoutServiceName,
		PartitionKey:  o.ID,
		Sequence:      &seq,
		OccurredAt:    now,
		Payload: OrderPlacedPayload{
			OrderID:          o.ID,
			UserID:           o.UserID,
			CartID:           o.CartID,
			PaymentMethod:    string(o.PaymentMethod),
			PaymentReference: o.PaymentReference,
			Status:           string(o.Status),
			TotalAmount:      o.TotalAmount.StringFixed(2),
			Items:            lines,
			PlacedAt:         o.CreatedAt,
		},
	}
}

func BuildOrderCompleted(o *order.Order, seq int64, meta Meta, now time.Time) OrderCompletedEnvelope {
	return OrderCompletedEnvelope{
		EventName:     OrderCompletedEventName,
		EventVersion:  orderEventVersion,
		EventID:       uuid.NewString(),
		CorrelationID: meta.CorrelationID,
		Producer:      checkoutServiceName,
		PartitionKey:  o.ID,
		Sequence:      &seq,
		OccurredAt:    now,
		Payload: OrderCompletedPayload{
			OrderID:          o.ID,
			UserID:           o.UserID,
			PaymentMethod:    string(o.PaymentMethod),
			PaymentReference: o.PaymentReference,
			TotalAmount:      o.TotalAmount.StringFixed(2),
			CompletedAt:      now,
		},
	}
}
