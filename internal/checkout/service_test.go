package checkout

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/attempt"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/money"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/payment"
)

// memStore keeps one cart per user and derives orders from it the way the
// Postgres repositories do.
type memStore struct {
	carts  map[string]*cart.Cart
	orders map[string]*order.Order

	getErr   error
	placeErr error
	placed   int
}

func newMemStore() *memStore {
	return &memStore{carts: map[string]*cart.Cart{}, orders: map[string]*order.Order{}}
}

func (m *memStore) put(userID string, version int64, items ...cart.Item) {
	m.carts[userID] = &cart.Cart{ID: "cart-" + userID, UserID: userID, Version: version, Items: items}
}

func (m *memStore) GetCart(_ context.Context, userID string) (*cart.Cart, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.carts[userID], nil
}

func (m *memStore) ClearCart(_ context.Context, userID string) error {
	delete(m.carts, userID)
	return nil
}

func (m *memStore) Place(_ context.Context, p order.PlaceParams) (*order.Order, error) {
	if m.placeErr != nil {
		return nil, m.placeErr
	}
	c, ok := m.carts[p.UserID]
	if !ok {
		return nil, order.ErrCartNotFound
	}
	if p.ExpectedVersion != 0 && c.Version != p.ExpectedVersion {
		return nil, order.ErrCartChanged
	}
	if len(c.Items) == 0 {
		return nil, order.ErrCartEmpty
	}
	for _, o := range m.orders {
		if p.PaymentReference != "" && o.PaymentReference == p.PaymentReference {
			return nil, order.ErrDuplicateReference
		}
	}

	o := &order.Order{
		ID:               uuid.NewString(),
		UserID:           p.UserID,
		CartID:           c.ID,
		PaymentMethod:    p.PaymentMethod,
		PaymentReference: p.PaymentReference,
		Status:           p.Status,
		TotalAmount:      money.Total(c.Lines(), p.Shipping),
	}
	for _, it := range c.Items {
		o.Items = append(o.Items, order.Item{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	m.orders[o.ID] = o
	m.placed++
	if !p.KeepCart {
		delete(m.carts, p.UserID)
	}
	return o, nil
}

func (m *memStore) Complete(_ context.Context, userID, ref string) (*order.Order, error) {
	if _, ok := m.carts[userID]; !ok {
		return nil, order.ErrCartNotFound
	}
	for _, o := range m.orders {
		if o.UserID == userID && o.PaymentReference == ref && o.Status == order.StatusPending {
			o.Status = order.StatusCompleted
			delete(m.carts, userID)
			return o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *memStore) MarkFailed(_ context.Context, userID, ref, reason string) error {
	for _, o := range m.orders {
		if o.UserID == userID && o.PaymentReference == ref && o.Status == order.StatusPending {
			o.Status = order.StatusFailed
			o.FailureReason = reason
			return nil
		}
	}
	return order.ErrNotFound
}

func (m *memStore) GetByID(_ context.Context, id string) (*order.Order, error) {
	return m.orders[id], nil
}

func (m *memStore) FindByReference(_ context.Context, userID, ref string) (*order.Order, error) {
	for _, o := range m.orders {
		if o.UserID == userID && o.PaymentReference == ref {
			return o, nil
		}
	}
	return nil, nil
}

func (m *memStore) byStatus(s order.Status) []*order.Order {
	var out []*order.Order
	for _, o := range m.orders {
		if o.Status == s {
			out = append(out, o)
		}
	}
	return out
}

type fakeCard struct {
	createFn  func(payment.ChargeRequest) (*payment.Charge, error)
	getFn     func(id string) (*payment.Charge, error)
	confirmFn func(id string) (*payment.Charge, error)

	creates  int
	gets     int
	confirms int
	lastReq  payment.ChargeRequest
}

func (f *fakeCard) CreateCharge(_ context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	f.creates++
	f.lastReq = req
	return f.createFn(req)
}

func (f *fakeCard) GetCharge(_ context.Context, id string) (*payment.Charge, error) {
	f.gets++
	return f.getFn(id)
}

func (f *fakeCard) ConfirmCharge(_ context.Context, id, _ string) (*payment.Charge, error) {
	f.confirms++
	return f.confirmFn(id)
}

type fakeWallet struct {
	approvalFn func(payment.ApprovalRequest) (*payment.Approval, error)
	captureFn  func(token string) (*payment.Capture, error)

	lastReq  payment.ApprovalRequest
	captures int
}

func (f *fakeWallet) CreateApproval(_ context.Context, req payment.ApprovalRequest) (*payment.Approval, error) {
	f.lastReq = req
	return f.approvalFn(req)
}

func (f *fakeWallet) Capture(_ context.Context, token string) (*payment.Capture, error) {
	f.captures++
	return f.captureFn(token)
}

type fakeEvents struct {
	placed    []string
	completed []string
	err       error
}

func (f *fakeEvents) PublishOrderPlaced(_ context.Context, o *order.Order) error {
	f.placed = append(f.placed, o.ID)
	return f.err
}

func (f *fakeEvents) PublishOrderCompleted(_ context.Context, o *order.Order) error {
	f.completed = append(f.completed, o.ID)
	return f.err
}

type fixture struct {
	svc      *Service
	store    *memStore
	card     *fakeCard
	wallet   *fakeWallet
	events   *fakeEvents
	attempts *attempt.RedisStore
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		store: newMemStore(),
		card: &fakeCard{
			createFn: func(payment.ChargeRequest) (*payment.Charge, error) {
				return &payment.Charge{ID: "pi_1", ClientSecret: "pi_1_secret", Status: payment.ChargeSucceeded}, nil
			},
		},
		wallet: &fakeWallet{
			approvalFn: func(payment.ApprovalRequest) (*payment.Approval, error) {
				return &payment.Approval{ID: "PP-1", Status: "CREATED", ApproveURL: "https://wallet.example/approve?token=PP-1"}, nil
			},
			captureFn: func(string) (*payment.Capture, error) {
				return &payment.Capture{ID: "PP-1", Status: payment.CaptureCompleted}, nil
			},
		},
		events:   &fakeEvents{},
		attempts: attempt.NewRedisStore(rdb),
		redis:    mr,
	}
	f.svc = NewService(Deps{
		Carts:    f.store,
		Orders:   f.store,
		Attempts: f.attempts,
		Card:     f.card,
		Wallet:   f.wallet,
		Events:   f.events,
		Logger:   logging.Discard(),
	}, Options{
		Shipping:        decimal.NewFromInt(50),
		CardCurrency:    "mad",
		MinimumCharge:   50,
		CardReturnURL:   "https://shop.example/payment-return",
		WalletCurrency:  "USD",
		WalletRate:      decimal.RequireFromString("0.1"),
		AttemptTTL:      time.Hour,
		WalletReturnURL: "https://shop.example/paypalsuccess",
		WalletCancelURL: "https://shop.example/cancel",
		GatewayTimeout:  time.Second,
	})
	return f
}

func item(id string, price int64, qty int) cart.Item {
	return cart.Item{ProductID: id, Quantity: qty, Price: decimal.NewFromInt(price)}
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	require.Error(t, err)
	var ce *Error
	require.True(t, errors.As(err, &ce), "expected *checkout.Error, got %T", err)
	assert.Equal(t, kind, ce.Kind, "unexpected kind: %v", ce)
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	f.store.put("u1", 1, item("p1", 100, 2), item("p2", 15, 3))

	q, err := f.svc.Quote(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, q.Subtotal.Equal(decimal.NewFromInt(245)))
	assert.True(t, q.Shipping.Equal(decimal.NewFromInt(50)))
	assert.True(t, q.Total.Equal(decimal.NewFromInt(295)))
	assert.Equal(t, int64(1), q.Version)

	_, err = f.svc.Quote(context.Background(), "nobody")
	requireKind(t, err, KindNotFound)

	f.store.getErr = errors.New("db down")
	_, err = f.svc.Quote(context.Background(), "u1")
	requireKind(t, err, KindPersistence)
}

func TestCashOnDelivery_EndToEnd(t *testing.T) {
	f := newFixture(t)
	f.store.put("u1", 1, item("p1", 100, 2))

	q, err := f.svc.Quote(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, q.Total.Equal(decimal.NewFromInt(250)))

	o, err := f.svc.CashOnDelivery(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.MethodCashOnDelivery, o.PaymentMethod)
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(250)))
	assert.Len(t, f.store.orders, 1)
	assert.NotContains(t, f.store.carts, "u1")
	assert.Equal(t, []string{o.ID}, f.events.placed)

	_, err = f.svc.CashOnDelivery(context.Background(), "u1")
	requireKind(t, err, KindNotFound)
	assert.Len(t, f.store.orders, 1)
}

func TestCashOnDelivery_Errors(t *testing.T) {
	f := newFixture(t)
	f.store.put("empty", 1)

	_, err := f.svc.CashOnDelivery(context.Background(), "empty")
	requireKind(t, err, KindEmpty)

	f.store.put("u1", 1, item("p1", 10, 1))
	f.store.placeErr = errors.New("insert failed")
	_, err = f.svc.CashOnDelivery(context.Background(), "u1")
	requireKind(t, err, KindPersistence)
}

func TestCashOnDelivery_EventFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.store.put("u1", 1, item("p1", 10, 1))
	f.events.err = errors.New("broker down")

	o, err := f.svc.CashOnDelivery(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
}

func TestInitiateCardPayment_Succeeded(t *testing.T) {
	f := newFixture(t)
	f.store.put("u1", 4, item("p1", 100, 2))

	res, err := f.svc.InitiateCardPayment(context.Background(), "u1", "pm_card_visa")
	require.NoError(t, err)

	assert.Equal(t, payment.ChargeSucceeded, res.Status)
	assert.Equal(t, "pi_1_secret", res.ClientSecret)
	assert.Equal(t, order.StatusCompleted, res.Order.Status)
	assert.Equal(t, "pi_1", res.Order.PaymentReference)
	assert.NotContains(t, f.store.carts, "u1")

	assert.Equal(t, int64(25000), f.card.lastReq.AmountMinor)
	assert.Equal(t, "mad", f.card.lastReq.Currency)
	assert.Equal(t, "pm_card_visa", f.card.lastReq.PaymentMethodID)
	assert.Equal(t, "https://shop.example/payment-return", f.card.lastReq.ReturnURL)
	assert.NotEmpty(t, f.card.lastReq.IdempotencyKey)

	assert.Len(t, f.events.placed, 1)
	assert.Len(t, f.events.completed, 1)
}

func TestInitiateCardPayment_PersistFailureAfterCaptureIsLogged(t *testing.T) {
	f := newFixture(t)
	var logs bytes.Buffer
	f.svc.log = slog.New(slog.NewJSONHandler(&logs, nil))
	f.store.put("u1", 1, item("p1", 100, 2))
	f.store.placeErr = order.ErrCartChanged

	_, err := f.svc.InitiateCardPayment(context.Background(), "u1", "pm_card_visa")
	requireKind(t, err, KindConflict)

	assert.Contains(t, logs.String(), "persist card order failed after capture")
	assert.Contains(t, logs.String(), `"amount_minor":25000`)
	assert.Contains(t, logs.String(), `"charge_id":"pi_1"`)
}

func TestInitiateCardPayment_RequiresAction(t *testing.T) {
	f := newFixture(t)
	f.store.put("u1", 1, item("p1", 100, 2))
	f.card.createFn = func(payment.ChargeRequest) (*payment.Charge, error) {
		return &payment.Charge{
			ID: "pi_3ds", ClientSecret: "secret", Status: payment.ChargeRequiresAction,
			RedirectURL: "https://hooks.example/3ds",
		}, nil
	}

	res, err := f.svc.InitiateCardPayment(context.Background(), "u1", "pm_3ds")
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example/3ds", res.NextActionURL)
	assert.Equal(t, order.StatusPending, res.Order.Status)
	assert.Contains(t, f.store.carts, "u1", "cart kept until the charge settles")
}

func TestInitiateCardPayment_BelowMinimum(t *testing.T) {
	f := newFixture(t)
	f.svc.opts.Shipping = decimal.Zero
	f.store.put("u1", 1, cart.Item{ProductID: "p1", Quantity: 1, Price: decimal.RequireFromString("0.20")})

	_, err := f.svc.InitiateCardPayment(context.Background(), "u1", "pm_card_visa")
	requireKind(t, err, KindInvalidAmount)
	assert.Zero(t, f.card.creates)
	assert.Empty(t, f.store.orders)
}

func TestInitiateCardPayment_Rejections(t *testing.T) {
	t.Run("missing payment method", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.InitiateCardPayment(context.Background(), "u1", "")
		requireKind(t, err, KindInvalidRequest)
	})

	t.Run("empty cart", func(t *testing.T) {
		f := newFixture(t)
		f.store.put("u1", 1)
		_, err := f.svc.InitiateCardPayment(context.Background(), "u1", "pm")
		requireKind(t, err, KindEmpty)
		assert.Zero(t, f.card.creates)
	})

	t.Run("gateway error is passed through", func(t *testing.T) {
		f := newFixture(t)
		f.store.put("u1", 1, item("p1", 100, 1))
		f.card.createFn = func(payment.ChargeRequest) (*payment.Charge, error) {
			return nil, &payment.Error{Provider: "stripe", Op: "create", Message: "Your card was declined."}
		}

		_, err := f.svc.InitiateCardPayment(context.Background(), "u1", "pm")
		requireKind(t, err, KindGateway)
		var ce *Error
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "Your card was declined.", ce.Msg)
		assert.Empty(t, f.store.orders)
		assert.Contains(t, f.store.carts, "u1")
	})

	t.Run("terminal status marks order failed and keeps cart", func(t *testing.T) {
		f := newFixture(t)
		f.store.put("u1", 1, item("p1", 100, 1))
		f.card.createFn = func(payment.ChargeRequest) (*payment.Charge, error) {
			return &payment.Charge{ID: "pi_x", Status: payment.ChargeRequiresPaymentMethod}, nil
		}

		_, err := f.svc.InitiateCardPayment(context.Background(), "u1", "pm")
		requireKind(t, err, KindPaymentFailed)
		assert.Empty(t, f.store.byStatus(order.StatusCompleted))
		require.Len(t, f.store.byStatus(order.StatusFailed), 1)
		assert.Contains(t, f.store.carts, "u1")
	})
}

func TestFinalizeCardPayment(t *testing.T) {
	setup := func(t *testing.T) *fixture {
		f := newFixture(t)
		f.store.put("u1", 1, item("p1", 100, 2))
		f.card.createFn = func(payment.ChargeRequest) (*payment.Charge, error) {
			return &payment.Charge{ID: "pi_3ds", ClientSecret: "s", Status: payment.ChargeRequiresAction}, nil
		}
		_, err := f.svc.InitiateCardPayment(context.Background(), "u1", "pm")
		require.NoError(t, err)
		return f
	}

	t.Run("succeeds once then not found", func(t *testing.T) {
		f := setup(t)
		f.card.getFn = func(id string) (*payment.Charge, error) {
			return &payment.Charge{ID: id, Status: payment.ChargeSucceeded}, nil
		}

		o, err := f.svc.FinalizeCardPayment(context.Background(), "u1", "pi_3ds")
		require.NoError(t, err)
		assert.Equal(t, order.StatusCompleted, o.Status)
		assert.NotContains(t, f.store.carts, "u1")

		_, err = f.svc.FinalizeCardPayment(context.Background(), "u1", "pi_3ds")
		requireKind(t, err, KindNotFound)
		assert.Len(t, f.store.orders, 1)
	})

	t.Run("confirms when required", func(t *testing.T) {
		f := setup(t)
		f.card.getFn = func(id string) (*payment.Charge, error) {
			return &payment.Charge{ID: id, Status: payment.ChargeRequiresConfirmation}, nil
		}
		f.card.confirmFn = func(id string) (*payment.Charge, error) {
			return &payment.Charge{ID: id, Status: payment.ChargeSucceeded}, nil
		}

		o, err := f.svc.FinalizeCardPayment(context.Background(), "u1", "pi_3ds")
		require.NoError(t, err)
		assert.Equal(t, 1, f.card.confirms)
		assert.Equal(t, order.StatusCompleted, o.Status)
	})

	t.Run("failed status keeps cart", func(t *testing.T) {
		f := setup(t)
		f.card.getFn = func(id string) (*payment.Charge, error) {
			return &payment.Charge{ID: id, Status: payment.ChargeCanceled}, nil
		}

		_, err := f.svc.FinalizeCardPayment(context.Background(), "u1", "pi_3ds")
		requireKind(t, err, KindPaymentFailed)
		assert.Contains(t, f.store.carts, "u1")
		assert.Empty(t, f.store.byStatus(order.StatusCompleted))
		assert.Len(t, f.store.byStatus(order.StatusFailed), 1)
	})

	t.Run("unknown charge never reaches the gateway", func(t *testing.T) {
		f := setup(t)
		f.card.getFn = func(id string) (*payment.Charge, error) {
			return &payment.Charge{ID: id, Status: payment.ChargeRequiresConfirmation}, nil
		}

		_, err := f.svc.FinalizeCardPayment(context.Background(), "u1", "pi_someone_else")
		requireKind(t, err, KindNotFound)
		_, err = f.svc.FinalizeCardPayment(context.Background(), "u2", "pi_3ds")
		requireKind(t, err, KindNotFound)

		assert.Zero(t, f.card.gets)
		assert.Zero(t, f.card.confirms)
		assert.Empty(t, f.store.byStatus(order.StatusCompleted))
	})

	t.Run("empty id", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.FinalizeCardPayment(context.Background(), "u1", "")
		requireKind(t, err, KindInvalidRequest)
	})

	t.Run("gateway error", func(t *testing.T) {
		f := setup(t)
		f.card.getFn = func(string) (*payment.Charge, error) {
			return nil, errors.New("timeout")
		}
		_, err := f.svc.FinalizeCardPayment(context.Background(), "u1", "pi_3ds")
		requireKind(t, err, KindGateway)
		assert.Contains(t, f.store.carts, "u1")
	})
}

func TestWalletPayment_HappyPath(t *testing.T) {
	f := newFixture(t)
	f.store.put("u1", 2, item("p1", 100, 2))

	sess, err := f.svc.CreateWalletPayment(context.Background(), "u1", "paypal")
	require.NoError(t, err)
	assert.Equal(t, "25.00", sess.Amount)
	assert.Equal(t, "USD", sess.Currency)
	assert.Equal(t, order.MethodWallet, sess.PaymentMethod)
	assert.Equal(t, "https://wallet.example/approve?token=PP-1", sess.ApproveURL)
	assert.Equal(t, "transaction_u1", f.wallet.lastReq.ReferenceID)
	assert.Equal(t, "https://shop.example/paypalsuccess", f.wallet.lastReq.ReturnURL)
	assert.Equal(t, "https://shop.example/cancel", f.wallet.lastReq.CancelURL)
	assert.Empty(t, f.store.orders, "no order before capture")
	assert.Equal(t, time.Hour, f.redis.TTL("checkout:attempt:"+sess.AttemptID))

	o, err := f.svc.FinalizeWalletPayment(context.Background(), "u1", sess.AttemptID, "PP-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, o.Status)
	assert.Equal(t, "PP-1", o.PaymentReference)
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(250)))
	assert.NotContains(t, f.store.carts, "u1")

	a, err := f.attempts.Get(context.Background(), sess.AttemptID)
	require.NoError(t, err)
	assert.Nil(t, a, "attempt removed after capture")

	_, err = f.svc.FinalizeWalletPayment(context.Background(), "u1", sess.AttemptID, "PP-1")
	requireKind(t, err, KindNotFound)

	// Cookies are cleared after success, so a replayed return carries no attempt id.
	_, err = f.svc.FinalizeWalletPayment(context.Background(), "u1", "", "PP-1")
	requireKind(t, err, KindNotFound)
	assert.Equal(t, 1, f.wallet.captures)
}

func TestWalletPayment_FinalizeRejections(t *testing.T) {
	start := func(t *testing.T) (*fixture, *WalletSession) {
		f := newFixture(t)
		f.store.put("u1", 2, item("p1", 100, 2))
		sess, err := f.svc.CreateWalletPayment(context.Background(), "u1", "")
		require.NoError(t, err)
		return f, sess
	}

	t.Run("empty token", func(t *testing.T) {
		f, sess := start(t)
		_, err := f.svc.FinalizeWalletPayment(context.Background(), "u1", sess.AttemptID, "")
		requireKind(t, err, KindInvalidRequest)
	})

	t.Run("missing attempt id with live cart", func(t *testing.T) {
		f, _ := start(t)
		_, err := f.svc.FinalizeWalletPayment(context.Background(), "u1", "", "PP-1")
		requireKind(t, err, KindInvalidRequest)
		assert.Zero(t, f.wallet.captures)
	})

	t.Run("token mismatch", func(t *testing.T) {
		f, sess := start(t)
		_, err := f.svc.FinalizeWalletPayment(context.Background(), "u1", sess.AttemptID, "PP-other")
		requireKind(t, err, KindInvalidRequest)
		assert.Zero(t, f.wallet.captures)
	})

	t.Run("foreign attempt", func(t *testing.T) {
		f, sess := start(t)
		_, err := f.svc.FinalizeWalletPayment(context.Background(), "u2", sess.AttemptID, "PP-1")
		requireKind(t, err, KindInvalidRequest)
	})

	t.Run("expired attempt", func(t *testing.T) {
		f, sess := start(t)
		f.redis.FastForward(2 * time.Hour)
		_, err := f.svc.FinalizeWalletPayment(context.Background(), "u1", sess.AttemptID, "PP-1")
		requireKind(t, err, KindInvalidRequest)
	})

	t.Run("cart changed", func(t *testing.T) {
		f, sess := start(t)
		f.store.put("u1", 3, item("p1", 100, 5))
		_, err := f.svc.FinalizeWalletPayment(context.Background(), "u1", sess.AttemptID, "PP-1")
		requireKind(t, err, KindConflict)
		assert.Zero(t, f.wallet.captures)
	})

	t.Run("capture not completed", func(t *testing.T) {
		f, sess := start(t)
		f.wallet.captureFn = func(string) (*payment.Capture, error) {
			return &payment.Capture{ID: "PP-1", Status: "DECLINED"}, nil
		}
		_, err := f.svc.FinalizeWalletPayment(context.Background(), "u1", sess.AttemptID, "PP-1")
		requireKind(t, err, KindPaymentFailed)
		assert.Empty(t, f.store.orders)
		assert.Contains(t, f.store.carts, "u1")
	})

	t.Run("cart gone", func(t *testing.T) {
		f, sess := start(t)
		delete(f.store.carts, "u1")
		_, err := f.svc.FinalizeWalletPayment(context.Background(), "u1", sess.AttemptID, "PP-1")
		requireKind(t, err, KindNotFound)
	})
}

func TestCreateWalletPayment_Rejections(t *testing.T) {
	t.Run("unsupported method", func(t *testing.T) {
		f := newFixture(t)
		f.store.put("u1", 1, item("p1", 10, 1))
		_, err := f.svc.CreateWalletPayment(context.Background(), "u1", "card")
		requireKind(t, err, KindInvalidRequest)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		f := newFixture(t)
		f.svc.opts.Shipping = decimal.Zero
		f.store.put("u1", 1, cart.Item{ProductID: "p1", Quantity: 1, Price: decimal.RequireFromString("0.01")})
		_, err := f.svc.CreateWalletPayment(context.Background(), "u1", "wallet")
		requireKind(t, err, KindInvalidAmount)
	})

	t.Run("gateway error", func(t *testing.T) {
		f := newFixture(t)
		f.store.put("u1", 1, item("p1", 10, 1))
		f.wallet.approvalFn = func(payment.ApprovalRequest) (*payment.Approval, error) {
			return nil, &payment.Error{Provider: "paypal", Op: "create order", Message: "Authentication failed"}
		}
		_, err := f.svc.CreateWalletPayment(context.Background(), "u1", "wallet")
		requireKind(t, err, KindGateway)
		assert.Equal(t, "Authentication failed", err.(*Error).Msg)
	})
}

func TestCancelWalletPayment(t *testing.T) {
	f := newFixture(t)
	f.store.put("u1", 1, item("p1", 100, 1))
	sess, err := f.svc.CreateWalletPayment(context.Background(), "u1", "wallet")
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelWalletPayment(context.Background(), "u2", sess.AttemptID))
	a, err := f.attempts.Get(context.Background(), sess.AttemptID)
	require.NoError(t, err)
	require.NotNil(t, a, "foreign cancel leaves the attempt")

	require.NoError(t, f.svc.CancelWalletPayment(context.Background(), "u1", sess.AttemptID))
	a, err = f.attempts.Get(context.Background(), sess.AttemptID)
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Contains(t, f.store.carts, "u1")

	require.NoError(t, f.svc.CancelWalletPayment(context.Background(), "u1", sess.AttemptID))
	require.NoError(t, f.svc.CancelWalletPayment(context.Background(), "u1", ""))
}

func TestClearCart(t *testing.T) {
	f := newFixture(t)
	f.store.put("u1", 1, item("p1", 1, 1))

	require.NoError(t, f.svc.ClearCart(context.Background(), "u1"))
	assert.NotContains(t, f.store.carts, "u1")
	require.NoError(t, f.svc.ClearCart(context.Background(), "u1"))
}

func TestGetOrder(t *testing.T) {
	f := newFixture(t)
	f.store.put("u1", 1, item("p1", 100, 2))
	o, err := f.svc.CashOnDelivery(context.Background(), "u1")
	require.NoError(t, err)

	got, err := f.svc.GetOrder(context.Background(), "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = f.svc.GetOrder(context.Background(), "u2", o.ID)
	requireKind(t, err, KindNotFound)

	_, err = f.svc.GetOrder(context.Background(), "u1", uuid.NewString())
	requireKind(t, err, KindNotFound)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(newErr(KindConflict, "op", "msg", nil)))
	assert.Equal(t, KindPersistence, KindOf(errors.New("plain")))
	assert.Equal(t, "not_found", KindNotFound.String())
}
