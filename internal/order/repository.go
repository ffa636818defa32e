package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/money"
)

var (
	ErrCartNotFound       = errors.New("cart not found")
	ErrCartEmpty          = errors.New("no items in cart")
	ErrCartChanged        = errors.New("cart changed")
	ErrNotFound           = errors.New("order not found")
	ErrDuplicateReference = errors.New("payment reference already recorded")
)

type Repository interface {
	// Place derives an order from the user's cart inside one transaction and,
	// unless KeepCart is set, deletes the cart.
	Place(ctx context.Context, p PlaceParams) (*Order, error)
	// Complete promotes the user's pending order for paymentRef to completed
	// and deletes the cart. ErrCartNotFound when the cart is already gone.
	Complete(ctx context.Context, userID, paymentRef string) (*Order, error)
	MarkFailed(ctx context.Context, userID, paymentRef, reason string) error
	GetByID(ctx context.Context, orderID string) (*Order, error)
	// FindByReference returns the user's order for a gateway payment
	// reference, or nil, nil when there is none.
	FindByReference(ctx context.Context, userID, paymentRef string) (*Order, error)
}

type repo struct {
	pool db.Pool
	now  func() time.Time
}

func NewRepository(pool db.Pool) Repository {
	return &repo{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

const (
	lockCartSQL        = `SELECT id, version FROM carts WHERE user_id = $1 FOR UPDATE`
	selectCartItemsSQL = `SELECT product_id, quantity, price::text FROM cart_items WHERE cart_id = $1 ORDER BY product_id`
	deleteCartSQL      = `DELETE FROM carts WHERE id = $1`

	insertOrderSQL = `INSERT INTO orders (id, user_id, cart_id, payment_method, payment_reference, status, total_amount, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`
	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, quantity, price) VALUES ($1, $2, $3, $4, $5)`

	completeOrderSQL = `UPDATE orders SET status = 'completed', updated_at = NOW()
WHERE user_id = $1 AND payment_reference = $2 AND status = 'pending'
RETURNING id, cart_id, payment_method, total_amount::text, created_at, updated_at`
	failOrderSQL = `UPDATE orders SET status = 'failed', failure_reason = $3, updated_at = NOW()
WHERE user_id = $1 AND payment_reference = $2 AND status = 'pending'`

	orderColumnsSQL = `SELECT id, user_id, cart_id, payment_method, COALESCE(payment_reference, ''), status,
       total_amount::text, COALESCE(failure_reason, ''), created_at, updated_at
FROM orders`
	selectOrderSQL            = orderColumnsSQL + ` WHERE id = $1`
	selectOrderByReferenceSQL = orderColumnsSQL + ` WHERE user_id = $1 AND payment_reference = $2`
	selectOrderItemsSQL       = `SELECT product_id, quantity, price::text FROM order_items WHERE order_id = $1 ORDER BY product_id`
)

func (r *repo) Place(ctx context.Context, p PlaceParams) (*Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cartID, version, err := lockCart(ctx, tx, p.UserID)
	if err != nil {
		return nil, err
	}
	if p.ExpectedVersion != 0 && version != p.ExpectedVersion {
		return nil, fmt.Errorf("%w: version %d, expected %d", ErrCartChanged, version, p.ExpectedVersion)
	}

	rows, err := tx.Query(ctx, selectCartItemsSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("select cart_items: %w", err)
	}
	cartItems, err := cart.ScanItems(rows)
	if err != nil {
		return nil, err
	}
	if len(cartItems) == 0 {
		return nil, ErrCartEmpty
	}

	now := r.now()
	o := &Order{
		ID:               uuid.NewString(),
		UserID:           p.UserID,
		CartID:           cartID,
		PaymentMethod:    p.PaymentMethod,
		PaymentReference: p.PaymentReference,
		Status:           p.Status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	lines := make([]money.Line, 0, len(cartItems))
	for _, it := range cartItems {
		o.Items = append(o.Items, Item{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
		lines = append(lines, money.Line{Price: it.Price, Quantity: it.Quantity})
	}
	o.TotalAmount = money.Total(lines, p.Shipping)

	if _, err := tx.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, o.CartID, string(o.PaymentMethod), nullIfEmpty(o.PaymentReference),
		string(o.Status), o.TotalAmount, o.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, insertOrderItemSQL,
			uuid.NewString(), o.ID, it.ProductID, it.Quantity, it.Price,
		); err != nil {
			return nil, fmt.Errorf("insert order_item: %w", err)
		}
	}

	if !p.KeepCart {
		if _, err := tx.Exec(ctx, deleteCartSQL, cartID); err != nil {
			return nil, fmt.Errorf("delete cart: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return o, nil
}

func (r *repo) Complete(ctx context.Context, userID, paymentRef string) (*Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cartID, _, err := lockCart(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	o := Order{
		UserID:           userID,
		PaymentReference: paymentRef,
		Status:           StatusCompleted,
	}
	var (
		method string
		total  string
	)
	err = tx.QueryRow(ctx, completeOrderSQL, userID, paymentRef).
		Scan(&o.ID, &o.CartID, &method, &total, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("complete order: %w", err)
	}
	o.PaymentMethod = PaymentMethod(method)
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total %q: %w", total, err)
	}

	if o.Items, err = selectItems(ctx, tx, o.ID); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, deleteCartSQL, cartID); err != nil {
		return nil, fmt.Errorf("delete cart: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &o, nil
}

func (r *repo) MarkFailed(ctx context.Context, userID, paymentRef, reason string) error {
	tag, err := r.pool.Exec(ctx, failOrderSQL, userID, paymentRef, reason)
	if err != nil {
		return fmt.Errorf("mark order failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID returns nil, nil when the order does not exist.
func (r *repo) GetByID(ctx context.Context, orderID string) (*Order, error) {
	return r.selectOne(ctx, r.pool.QueryRow(ctx, selectOrderSQL, orderID))
}

func (r *repo) FindByReference(ctx context.Context, userID, paymentRef string) (*Order, error) {
	return r.selectOne(ctx, r.pool.QueryRow(ctx, selectOrderByReferenceSQL, userID, paymentRef))
}

func (r *repo) selectOne(ctx context.Context, row pgx.Row) (*Order, error) {
	var (
		o      Order
		method string
		status string
		total  string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.CartID, &method, &o.PaymentReference, &status,
		&total, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select order: %w", err)
	}
	o.PaymentMethod = PaymentMethod(method)
	o.Status = Status(status)
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total %q: %w", total, err)
	}

	if o.Items, err = selectItems(ctx, r.pool, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func lockCart(ctx context.Context, q querier, userID string) (string, int64, error) {
	var (
		cartID  string
		version int64
	)
	if err := q.QueryRow(ctx, lockCartSQL, userID).Scan(&cartID, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, ErrCartNotFound
		}
		return "", 0, fmt.Errorf("lock cart: %w", err)
	}
	return cartID, version, nil
}

func selectItems(ctx context.Context, q querier, orderID string) ([]Item, error) {
	rows, err := q.Query(ctx, selectOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order_items: %w", err)
	}
	scanned, err := cart.ScanItems(rows)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(scanned))
	for _, it := range scanned {
		items = append(items, Item{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	return items, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
