package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
)

type Repository interface {
	GetCart(ctx context.Context, userID string) (*Cart, error)
	UpsertCart(ctx context.Context, c *Cart) error
	ClearCart(ctx context.Context, userID string) error
}

type repo struct {
	pool db.Pool
}

func NewRepository(pool db.Pool) Repository {
	return &repo{pool: pool}
}

const (
	selectCartSQL  = `SELECT id, user_id, version, created_at, updated_at FROM carts WHERE user_id = $1`
	selectItemsSQL = `SELECT product_id, quantity, price::text FROM cart_items WHERE cart_id = $1 ORDER BY product_id`
	upsertCartSQL  = `
INSERT INTO carts (id, user_id, version, created_at, updated_at)
VALUES ($1, $2, 1, NOW(), NOW())
ON CONFLICT (user_id) DO UPDATE
SET version = carts.version + 1, updated_at = NOW()
RETURNING id, version, created_at, updated_at
`
	deleteItemsSQL = `DELETE FROM cart_items WHERE cart_id = $1`
	insertItemSQL  = `INSERT INTO cart_items (id, cart_id, product_id, quantity, price) VALUES ($1, $2, $3, $4, $5)`
	deleteCartSQL  = `DELETE FROM carts WHERE user_id = $1`
)

// GetCart returns nil, nil when the user has no cart.
func (r *repo) GetCart(ctx context.Context, userID string) (*Cart, error) {
	var c Cart
	err := r.pool.QueryRow(ctx, selectCartSQL, userID).
		Scan(&c.ID, &c.UserID, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select cart: %w", err)
	}

	rows, err := r.pool.Query(ctx, selectItemsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("select cart_items: %w", err)
	}
	items, err := ScanItems(rows)
	if err != nil {
		return nil, err
	}
	c.Items = items

	return &c, nil
}

// UpsertCart replaces the user's cart contents and bumps its version.
func (r *repo) UpsertCart(ctx context.Context, c *Cart) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	if err := tx.QueryRow(ctx, upsertCartSQL, c.ID, c.UserID).
		Scan(&c.ID, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}

	if _, err := tx.Exec(ctx, deleteItemsSQL, c.ID); err != nil {
		return fmt.Errorf("delete cart_items: %w", err)
	}

	for _, it := range c.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("insert cart_item %s: quantity must be positive", it.ProductID)
		}
		if _, err := tx.Exec(ctx, insertItemSQL, uuid.NewString(), c.ID, it.ProductID, it.Quantity, it.Price); err != nil {
			return fmt.Errorf("insert cart_item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ClearCart deletes the user's cart and, by cascade, its items. Clearing a
// missing cart is not an error.
func (r *repo) ClearCart(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, deleteCartSQL, userID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

// ScanItems reads (product_id, quantity, price::text) rows and closes rows.
func ScanItems(rows pgx.Rows) ([]Item, error) {
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			it    Item
			price string
		)
		if err := rows.Scan(&it.ProductID, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan cart_item: %w", err)
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", price, err)
		}
		it.Price = p
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return items, nil
}
