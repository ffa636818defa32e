package httpapi

import (
	"time"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

type cartItemDTO struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// checkoutResponse keeps the storefront's field names: total is the item
// subtotal and grandTotal includes shipping.
type checkoutResponse struct {
	CartItems  []cartItemDTO `json:"cartItems"`
	Total      float64       `json:"total"`
	Shipping   float64       `json:"shipping"`
	GrandTotal float64       `json:"grandTotal"`
}

func toCheckoutResponse(q *checkout.Quote) checkoutResponse {
	items := make([]cartItemDTO, 0, len(q.Items))
	for _, it := range q.Items {
		items = append(items, cartItemDTO{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.InexactFloat64(),
		})
	}
	return checkoutResponse{
		CartItems:  items,
		Total:      q.Subtotal.InexactFloat64(),
		Shipping:   q.Shipping.InexactFloat64(),
		GrandTotal: q.Total.InexactFloat64(),
	}
}

type processPaymentRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
}

type processPaymentResponse struct {
	ClientSecret  string `json:"client_secret"`
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	NextActionURL string `json:"next_action_url,omitempty"`
}

type walletCreateRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type redirectResponse struct {
	RedirectURL string `json:"redirect_url"`
}

type messageResponse struct {
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
}

type orderItemDTO struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type orderDTO struct {
	OrderID          string         `json:"orderId"`
	UserID           string         `json:"userId"`
	PaymentMethod    string         `json:"paymentMethod"`
	PaymentReference string         `json:"paymentReference,omitempty"`
	Status           string         `json:"status"`
	TotalAmount      float64        `json:"totalAmount"`
	FailureReason    string         `json:"failureReason,omitempty"`
	Items            []orderItemDTO `json:"items"`
	CreatedAt        time.Time      `json:"createdAt"`
}

func toOrderDTO(o *order.Order) orderDTO {
	items := make([]orderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemDTO{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.InexactFloat64(),
		})
	}
	return orderDTO{
		OrderID:          o.ID,
		UserID:           o.UserID,
		PaymentMethod:    string(o.PaymentMethod),
		PaymentReference: o.PaymentReference,
		Status:           string(o.Status),
		TotalAmount:      o.TotalAmount.InexactFloat64(),
		FailureReason:    o.FailureReason,
		Items:            items,
		CreatedAt:        o.CreatedAt,
	}
}
