package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a snapshot of a cart line taken when the order was placed.
type Item struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type Order struct {
	ID               string          `json:"orderId"`
	UserID           string          `json:"userId"`
	CartID           string          `json:"cartId"`
	PaymentMethod    PaymentMethod   `json:"paymentMethod"`
	PaymentReference string          `json:"paymentReference,omitempty"`
	Status           Status          `json:"status"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	FailureReason    string          `json:"failureReason,omitempty"`
	Items            []Item          `json:"items"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// PlaceParams describes an order to derive from the user's current cart.
type PlaceParams struct {
	UserID           string
	PaymentMethod    PaymentMethod
	Status           Status
	PaymentReference string
	Shipping         decimal.Decimal

	// ExpectedVersion, when non-zero, must match the cart's version at the
	// moment the cart row is locked.
	ExpectedVersion int64

	// KeepCart leaves the cart in place. The card flow keeps it until the
	// charge is confirmed.
	KeepCart bool
}
