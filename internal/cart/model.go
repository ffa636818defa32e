package cart

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/money"
)

type Item struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Cart is a user's uncommitted selection. Version is bumped on every write
// and is used as an optimistic lock token by checkout.
type Cart struct {
	ID        string    `json:"cartId"`
	UserID    string    `json:"userId"`
	Version   int64     `json:"version"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Cart) Lines() []money.Line {
	lines := make([]money.Line, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, money.Line{Price: it.Price, Quantity: it.Quantity})
	}
	return lines
}
