// Package checkout turns a user's cart into an order through one of three
// payment paths: a card charge that may need a customer challenge, a wallet
// approve-then-capture redirect, or cash on delivery.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/attempt"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/money"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/payment"
)

type CartStore interface {
	// GetCart returns nil, nil when the user has no cart.
	GetCart(ctx context.Context, userID string) (*cart.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

type OrderStore interface {
	Place(ctx context.Context, p order.PlaceParams) (*order.Order, error)
	Complete(ctx context.Context, userID, paymentRef string) (*order.Order, error)
	MarkFailed(ctx context.Context, userID, paymentRef, reason string) error
	GetByID(ctx context.Context, orderID string) (*order.Order, error)
	FindByReference(ctx context.Context, userID, paymentRef string) (*order.Order, error)
}

type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, o *order.Order) error
	PublishOrderCompleted(ctx context.Context, o *order.Order) error
}

type Deps struct {
	Carts    CartStore
	Orders   OrderStore
	Attempts attempt.Store
	Card     payment.CardGateway
	Wallet   payment.WalletGateway
	Events   EventPublisher
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

type Options struct {
	Shipping decimal.Decimal

	CardCurrency   string
	MinorUnitScale int32
	MinimumCharge  int64
	CardReturnURL  string

	WalletCurrency  string
	WalletRate      decimal.Decimal
	AttemptTTL      time.Duration
	WalletReturnURL string
	WalletCancelURL string
	GatewayTimeout  time.Duration

	Now func() time.Time
}

type Service struct {
	carts    CartStore
	orders   OrderStore
	attempts attempt.Store
	card     payment.CardGateway
	wallet   payment.WalletGateway
	events   EventPublisher
	log      *slog.Logger
	metrics  *metrics.Metrics
	opts     Options
}

func NewService(d Deps, opts Options) *Service {
	if opts.MinorUnitScale == 0 {
		opts.MinorUnitScale = 2
	}
	if opts.AttemptTTL <= 0 {
		opts.AttemptTTL = time.Hour
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		carts:    d.Carts,
		orders:   d.Orders,
		attempts: d.Attempts,
		card:     d.Card,
		wallet:   d.Wallet,
		events:   d.Events,
		log:      d.Logger,
		metrics:  d.Metrics,
		opts:     opts,
	}
}

// Quote is a priced snapshot of the user's cart.
type Quote struct {
	CartID   string
	Version  int64
	Items    []cart.Item
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

func (s *Service) Quote(ctx context.Context, userID string) (*Quote, error) {
	const op = "checkout.Quote"

	c, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, newErr(KindPersistence, op, "Failed to load cart.", err)
	}
	if c == nil {
		return nil, newErr(KindNotFound, op, "Cart not found.", nil)
	}

	lines := c.Lines()
	return &Quote{
		CartID:   c.ID,
		Version:  c.Version,
		Items:    c.Items,
		Subtotal: money.Subtotal(lines),
		Shipping: s.opts.Shipping,
		Total:    money.Total(lines, s.opts.Shipping),
	}, nil
}

// CardResult is what the client needs to continue a card payment.
type CardResult struct {
	Order         *order.Order
	ClientSecret  string
	Status        payment.ChargeStatus
	NextActionURL string
}

func (s *Service) InitiateCardPayment(ctx context.Context, userID, paymentMethodID string) (*CardResult, error) {
	const op = "checkout.InitiateCardPayment"

	if paymentMethodID == "" {
		return nil, newErr(KindInvalidRequest, op, "payment_method_id is required.", nil)
	}

	q, err := s.payableQuote(ctx, op, userID)
	if err != nil {
		return nil, err
	}

	amount := money.MinorUnits(q.Total, s.opts.MinorUnitScale)
	if amount < s.opts.MinimumCharge {
		s.log.WarnContext(ctx, "card amount below minimum",
			"user_id", userID, "amount_minor", amount, "minimum", s.opts.MinimumCharge)
		return nil, newErr(KindInvalidAmount, op,
			fmt.Sprintf("Amount must be at least %d minor units.", s.opts.MinimumCharge), nil)
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	started := time.Now()
	charge, err := s.card.CreateCharge(gwCtx, payment.ChargeRequest{
		AmountMinor:     amount,
		Currency:        s.opts.CardCurrency,
		PaymentMethodID: paymentMethodID,
		ReturnURL:       s.opts.CardReturnURL,
		IdempotencyKey:  fmt.Sprintf("checkout:%s:%d:%s", userID, q.Version, paymentMethodID),
	})
	cancel()
	s.metrics.GatewayCall("card", "create_charge", started, err)
	if err != nil {
		s.log.ErrorContext(ctx, "card charge failed", "user_id", userID, "amount_minor", amount, "err", err)
		s.metrics.PaymentOutcome(string(order.MethodCard), "gateway_error")
		return nil, gatewayErr(op, err)
	}

	s.log.InfoContext(ctx, "card charge created",
		"user_id", userID, "charge_id", charge.ID, "status", charge.Status, "amount_minor", amount)

	o, err := s.orders.Place(ctx, order.PlaceParams{
		UserID:           userID,
		PaymentMethod:    order.MethodCard,
		Status:           order.StatusPending,
		PaymentReference: charge.ID,
		Shipping:         s.opts.Shipping,
		ExpectedVersion:  q.Version,
		KeepCart:         true,
	})
	if err != nil {
		if charge.Status == payment.ChargeSucceeded {
			// Funds are captured at this point; the log line is the reconciliation trail.
			s.log.ErrorContext(ctx, "persist card order failed after capture",
				"user_id", userID, "charge_id", charge.ID, "amount_minor", amount,
				"currency", s.opts.CardCurrency, "err", err)
		} else {
			s.log.ErrorContext(ctx, "persist card order failed", "user_id", userID, "charge_id", charge.ID, "err", err)
		}
		return nil, orderErr(op, err)
	}
	s.publishPlaced(ctx, o)

	res := &CardResult{Order: o, ClientSecret: charge.ClientSecret, Status: charge.Status}

	switch {
	case charge.Status == payment.ChargeSucceeded:
		completed, err := s.complete(ctx, op, userID, charge.ID)
		if err != nil {
			return nil, err
		}
		res.Order = completed
	case charge.Status.NeedsAction():
		res.NextActionURL = charge.RedirectURL
		s.metrics.PaymentOutcome(string(order.MethodCard), "requires_action")
	case charge.Status.Terminal():
		s.markFailed(ctx, userID, charge.ID, string(charge.Status))
		s.metrics.PaymentOutcome(string(order.MethodCard), "failed")
		return nil, newErr(KindPaymentFailed, op, "Payment failed.", nil)
	default:
		s.metrics.PaymentOutcome(string(order.MethodCard), "pending")
	}
	return res, nil
}

// FinalizeCardPayment settles a charge after the customer returns from a
// challenge. Only charges backing one of the caller's pending orders reach the
// gateway; a second call for the same charge reports NotFound.
func (s *Service) FinalizeCardPayment(ctx context.Context, userID, chargeID string) (*order.Order, error) {
	const op = "checkout.FinalizeCardPayment"

	if chargeID == "" {
		return nil, newErr(KindInvalidRequest, op, "Payment failed.", nil)
	}

	pending, err := s.orders.FindByReference(ctx, userID, chargeID)
	if err != nil {
		return nil, newErr(KindPersistence, op, "Failed to load order.", err)
	}
	if pending == nil || pending.Status != order.StatusPending {
		s.log.WarnContext(ctx, "card finalize without pending order", "user_id", userID, "charge_id", chargeID)
		return nil, newErr(KindNotFound, op, "Order not found.", nil)
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()

	started := time.Now()
	charge, err := s.card.GetCharge(gwCtx, chargeID)
	s.metrics.GatewayCall("card", "get_charge", started, err)
	if err != nil {
		s.log.ErrorContext(ctx, "card charge lookup failed", "user_id", userID, "charge_id", chargeID, "err", err)
		return nil, gatewayErr(op, err)
	}

	if charge.Status == payment.ChargeRequiresConfirmation {
		started = time.Now()
		charge, err = s.card.ConfirmCharge(gwCtx, chargeID, s.opts.CardReturnURL)
		s.metrics.GatewayCall("card", "confirm_charge", started, err)
		if err != nil {
			s.log.ErrorContext(ctx, "card charge confirm failed", "user_id", userID, "charge_id", chargeID, "err", err)
			return nil, gatewayErr(op, err)
		}
	}

	s.log.InfoContext(ctx, "card charge finalized", "user_id", userID, "charge_id", chargeID, "status", charge.Status)

	if charge.Status != payment.ChargeSucceeded {
		if charge.Status.Terminal() {
			s.markFailed(ctx, userID, chargeID, string(charge.Status))
		}
		s.metrics.PaymentOutcome(string(order.MethodCard), "failed")
		return nil, newErr(KindPaymentFailed, op, "Payment failed.", nil)
	}

	return s.complete(ctx, op, userID, chargeID)
}

// WalletSession is an approval session the user must visit.
type WalletSession struct {
	AttemptID     string
	PaymentMethod order.PaymentMethod
	ApproveURL    string
	Amount        string
	Currency      string
	ExpiresAt     time.Time
}

func (s *Service) CreateWalletPayment(ctx context.Context, userID, method string) (*WalletSession, error) {
	const op = "checkout.CreateWalletPayment"

	pm := order.MethodWallet
	if method != "" {
		parsed, err := order.ParsePaymentMethod(method)
		if err != nil || parsed != order.MethodWallet {
			return nil, newErr(KindInvalidRequest, op, "Unsupported payment method.", err)
		}
		pm = parsed
	}

	q, err := s.payableQuote(ctx, op, userID)
	if err != nil {
		return nil, err
	}

	converted := money.Convert(q.Total, s.opts.WalletRate)
	if !converted.IsPositive() {
		return nil, newErr(KindInvalidAmount, op, "Invalid amount.", nil)
	}
	amount := money.Format(converted)

	gwCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	started := time.Now()
	approval, err := s.wallet.CreateApproval(gwCtx, payment.ApprovalRequest{
		ReferenceID: "transaction_" + userID,
		Amount:      amount,
		Currency:    s.opts.WalletCurrency,
		ReturnURL:   s.opts.WalletReturnURL,
		CancelURL:   s.opts.WalletCancelURL,
	})
	cancel()
	s.metrics.GatewayCall("wallet", "create_approval", started, err)
	if err != nil {
		s.log.ErrorContext(ctx, "wallet approval failed", "user_id", userID, "amount", amount, "err", err)
		s.metrics.PaymentOutcome(string(pm), "gateway_error")
		return nil, gatewayErr(op, err)
	}
	if approval.ApproveURL == "" {
		return nil, newErr(KindGateway, op, "Approval link not returned.", nil)
	}

	now := s.opts.Now()
	a := &attempt.Attempt{
		ID:             uuid.NewString(),
		UserID:         userID,
		PaymentMethod:  pm,
		GatewayOrderID: approval.ID,
		Amount:         amount,
		Currency:       s.opts.WalletCurrency,
		Total:          q.Total,
		CartVersion:    q.Version,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.opts.AttemptTTL),
	}
	if err := s.attempts.Save(ctx, a, s.opts.AttemptTTL); err != nil {
		s.log.ErrorContext(ctx, "save wallet attempt failed", "user_id", userID, "gateway_order_id", approval.ID, "err", err)
		return nil, newErr(KindPersistence, op, "Failed to start payment.", err)
	}

	s.log.InfoContext(ctx, "wallet approval created",
		"user_id", userID, "attempt_id", a.ID, "gateway_order_id", approval.ID,
		"amount", amount, "currency", s.opts.WalletCurrency, "status", approval.Status)

	return &WalletSession{
		AttemptID:     a.ID,
		PaymentMethod: pm,
		ApproveURL:    approval.ApproveURL,
		Amount:        amount,
		Currency:      a.Currency,
		ExpiresAt:     a.ExpiresAt,
	}, nil
}

// FinalizeWalletPayment captures an approved wallet payment and records the
// completed order. The attempt record, not the client, is the source of
// truth for which cart and gateway order belong together.
func (s *Service) FinalizeWalletPayment(ctx context.Context, userID, attemptID, token string) (*order.Order, error) {
	const op = "checkout.FinalizeWalletPayment"

	if token == "" {
		return nil, newErr(KindInvalidRequest, op, "Invalid payment ID.", nil)
	}

	var a *attempt.Attempt
	if attemptID != "" {
		var err error
		if a, err = s.attempts.Get(ctx, attemptID); err != nil {
			return nil, newErr(KindPersistence, op, "Failed to load payment session.", err)
		}
	}
	if a == nil {
		// A finalized attempt is gone together with the cart it paid for.
		if _, err := s.Quote(ctx, userID); err != nil {
			return nil, err
		}
		return nil, newErr(KindInvalidRequest, op, "Payment session not found.", nil)
	}
	if a.UserID != userID {
		return nil, newErr(KindInvalidRequest, op, "Payment session not found.", nil)
	}
	if a.GatewayOrderID != token {
		s.log.WarnContext(ctx, "wallet token mismatch", "user_id", userID, "attempt_id", a.ID, "token", token)
		return nil, newErr(KindInvalidRequest, op, "Invalid payment ID.", nil)
	}

	q, err := s.Quote(ctx, userID)
	if err != nil {
		return nil, err
	}
	if q.Version != a.CartVersion {
		return nil, newErr(KindConflict, op, "Cart changed during payment.", nil)
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	started := time.Now()
	capture, err := s.wallet.Capture(gwCtx, token)
	cancel()
	s.metrics.GatewayCall("wallet", "capture", started, err)
	if err != nil {
		s.log.ErrorContext(ctx, "wallet capture failed", "user_id", userID, "gateway_order_id", token, "err", err)
		s.metrics.PaymentOutcome(string(a.PaymentMethod), "gateway_error")
		return nil, gatewayErr(op, err)
	}

	s.log.InfoContext(ctx, "wallet capture", "user_id", userID, "gateway_order_id", token,
		"capture_id", capture.ID, "status", capture.Status, "amount", a.Amount)

	if capture.Status != payment.CaptureCompleted {
		s.metrics.PaymentOutcome(string(a.PaymentMethod), "failed")
		return nil, newErr(KindPaymentFailed, op, "Payment failed.", nil)
	}

	o, err := s.orders.Place(ctx, order.PlaceParams{
		UserID:           userID,
		PaymentMethod:    a.PaymentMethod,
		Status:           order.StatusCompleted,
		PaymentReference: token,
		Shipping:         s.opts.Shipping,
		ExpectedVersion:  a.CartVersion,
	})
	if err != nil {
		// Funds are captured at this point; the log line is the reconciliation trail.
		s.log.ErrorContext(ctx, "persist wallet order failed after capture",
			"user_id", userID, "gateway_order_id", token, "capture_id", capture.ID, "err", err)
		return nil, orderErr(op, err)
	}

	if err := s.attempts.Delete(ctx, a.ID); err != nil {
		s.log.WarnContext(ctx, "delete wallet attempt failed", "attempt_id", a.ID, "err", err)
	}

	s.metrics.PaymentOutcome(string(a.PaymentMethod), "completed")
	s.publishPlaced(ctx, o)
	s.publishCompleted(ctx, o)
	return o, nil
}

// CancelWalletPayment discards the caller's pending wallet attempt. Unknown
// or foreign attempts are ignored.
func (s *Service) CancelWalletPayment(ctx context.Context, userID, attemptID string) error {
	const op = "checkout.CancelWalletPayment"

	if attemptID == "" {
		return nil
	}
	a, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return newErr(KindPersistence, op, "Failed to load payment session.", err)
	}
	if a == nil || a.UserID != userID {
		return nil
	}
	if err := s.attempts.Delete(ctx, attemptID); err != nil {
		return newErr(KindPersistence, op, "Failed to cancel payment.", err)
	}

	s.log.InfoContext(ctx, "wallet payment cancelled", "user_id", userID, "attempt_id", attemptID)
	s.metrics.PaymentOutcome(string(a.PaymentMethod), "cancelled")
	return nil
}

func (s *Service) CashOnDelivery(ctx context.Context, userID string) (*order.Order, error) {
	const op = "checkout.CashOnDelivery"

	o, err := s.orders.Place(ctx, order.PlaceParams{
		UserID:        userID,
		PaymentMethod: order.MethodCashOnDelivery,
		Status:        order.StatusPending,
		Shipping:      s.opts.Shipping,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "cash on delivery order failed", "user_id", userID, "err", err)
		return nil, orderErr(op, err)
	}

	s.log.InfoContext(ctx, "cash on delivery order created",
		"user_id", userID, "order_id", o.ID, "total", o.TotalAmount.StringFixed(2))
	s.metrics.PaymentOutcome(string(order.MethodCashOnDelivery), "pending")
	s.publishPlaced(ctx, o)
	return o, nil
}

// ClearCart deletes the user's cart. A missing cart is not an error.
func (s *Service) ClearCart(ctx context.Context, userID string) error {
	if err := s.carts.ClearCart(ctx, userID); err != nil {
		return newErr(KindPersistence, "checkout.ClearCart", "Failed to clear cart.", err)
	}
	return nil
}

func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*order.Order, error) {
	const op = "checkout.GetOrder"

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, newErr(KindPersistence, op, "Failed to load order.", err)
	}
	if o == nil || o.UserID != userID {
		return nil, newErr(KindNotFound, op, "Order not found.", nil)
	}
	return o, nil
}

func (s *Service) payableQuote(ctx context.Context, op, userID string) (*Quote, error) {
	q, err := s.Quote(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(q.Items) == 0 {
		return nil, newErr(KindEmpty, op, "No items in cart.", nil)
	}
	return q, nil
}

func (s *Service) complete(ctx context.Context, op, userID, chargeID string) (*order.Order, error) {
	o, err := s.orders.Complete(ctx, userID, chargeID)
	if err != nil {
		s.log.ErrorContext(ctx, "complete card order failed", "user_id", userID, "charge_id", chargeID, "err", err)
		return nil, orderErr(op, err)
	}
	s.log.InfoContext(ctx, "card order completed",
		"user_id", userID, "order_id", o.ID, "charge_id", chargeID, "total", o.TotalAmount.StringFixed(2))
	s.metrics.PaymentOutcome(string(order.MethodCard), "completed")
	s.publishCompleted(ctx, o)
	return o, nil
}

func (s *Service) markFailed(ctx context.Context, userID, chargeID, reason string) {
	err := s.orders.MarkFailed(ctx, userID, chargeID, reason)
	if err != nil && !errors.Is(err, order.ErrNotFound) {
		s.log.ErrorContext(ctx, "mark card order failed", "user_id", userID, "charge_id", chargeID, "err", err)
		return
	}
	s.log.InfoContext(ctx, "card payment rejected", "user_id", userID, "charge_id", chargeID, "status", reason)
}

func (s *Service) publishPlaced(ctx context.Context, o *order.Order) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderPlaced(ctx, o); err != nil {
		s.log.WarnContext(ctx, "publish OrderPlaced failed", "order_id", o.ID, "err", err)
	}
}

func (s *Service) publishCompleted(ctx context.Context, o *order.Order) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderCompleted(ctx, o); err != nil {
		s.log.WarnContext(ctx, "publish OrderCompleted failed", "order_id", o.ID, "err", err)
	}
}

func gatewayErr(op string, err error) *Error {
	msg := "Payment gateway error."
	var pe *payment.Error
	if errors.As(err, &pe) && pe.Message != "" {
		msg = pe.Message
	}
	return newErr(KindGateway, op, msg, err)
}

func orderErr(op string, err error) *Error {
	switch {
	case errors.Is(err, order.ErrCartNotFound):
		return newErr(KindNotFound, op, "Cart not found.", err)
	case errors.Is(err, order.ErrNotFound):
		return newErr(KindNotFound, op, "Order not found.", err)
	case errors.Is(err, order.ErrCartEmpty):
		return newErr(KindEmpty, op, "No items in cart.", err)
	case errors.Is(err, order.ErrCartChanged):
		return newErr(KindConflict, op, "Cart changed during payment.", err)
	case errors.Is(err, order.ErrDuplicateReference):
		return newErr(KindConflict, op, "Payment already processed.", err)
	default:
		return newErr(KindPersistence, op, "Failed to create order.", err)
	}
}
