package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

const (
	storeTimeout   = 5 * time.Second
	paymentTimeout = 45 * time.Second
)

// CheckoutService is the part of *checkout.Service the handlers drive.
type CheckoutService interface {
	Quote(ctx context.Context, userID string) (*checkout.Quote, error)
	InitiateCardPayment(ctx context.Context, userID, paymentMethodID string) (*checkout.CardResult, error)
	FinalizeCardPayment(ctx context.Context, userID, chargeID string) (*order.Order, error)
	CreateWalletPayment(ctx context.Context, userID, method string) (*checkout.WalletSession, error)
	FinalizeWalletPayment(ctx context.Context, userID, attemptID, token string) (*order.Order, error)
	CancelWalletPayment(ctx context.Context, userID, attemptID string) error
	CashOnDelivery(ctx context.Context, userID string) (*order.Order, error)
	ClearCart(ctx context.Context, userID string) error
	GetOrder(ctx context.Context, userID, orderID string) (*order.Order, error)
}

type CheckoutHandler struct {
	svc     CheckoutService
	cookies CookieConfig
	log     *slog.Logger
}

func NewCheckoutHandler(svc CheckoutService, cookies CookieConfig, log *slog.Logger) *CheckoutHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CheckoutHandler{svc: svc, cookies: cookies, log: log}
}

func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	q, err := h.svc.Quote(ctx, GetUserID(ctx))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutResponse(q))
}

func (h *CheckoutHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req processPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), paymentTimeout)
	defer cancel()

	res, err := h.svc.InitiateCardPayment(ctx, GetUserID(ctx), req.PaymentMethodID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, processPaymentResponse{
		ClientSecret:  res.ClientSecret,
		OrderID:       res.Order.ID,
		Status:        string(res.Status),
		NextActionURL: res.NextActionURL,
	})
}

func (h *CheckoutHandler) PaymentReturn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), paymentTimeout)
	defer cancel()

	o, err := h.svc.FinalizeCardPayment(ctx, GetUserID(ctx), r.URL.Query().Get("payment_intent"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redirectResponse{RedirectURL: "/success/" + o.ID})
}

func (h *CheckoutHandler) CreateWalletPayment(w http.ResponseWriter, r *http.Request) {
	var req walletCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), paymentTimeout)
	defer cancel()

	sess, err := h.svc.CreateWalletPayment(ctx, GetUserID(ctx), req.PaymentMethod)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.cookies.set(w, cookieAttemptID, sess.AttemptID)
	h.cookies.set(w, cookiePaymentMethod, string(sess.PaymentMethod))
	writeJSON(w, http.StatusOK, redirectResponse{RedirectURL: sess.ApproveURL})
}

func (h *CheckoutHandler) WalletSuccess(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), paymentTimeout)
	defer cancel()

	var attemptID string
	if c, err := r.Cookie(cookieAttemptID); err == nil {
		attemptID = c.Value
	}

	o, err := h.svc.FinalizeWalletPayment(ctx, GetUserID(ctx), attemptID, r.URL.Query().Get("token"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.cookies.clearWallet(w)
	writeJSON(w, http.StatusOK, redirectResponse{RedirectURL: "/success/" + o.ID})
}

func (h *CheckoutHandler) CancelWalletPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	var attemptID string
	if c, err := r.Cookie(cookieAttemptID); err == nil {
		attemptID = c.Value
	}

	if err := h.svc.CancelWalletPayment(ctx, GetUserID(ctx), attemptID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.cookies.clearWallet(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Payment cancelled."})
}

func (h *CheckoutHandler) CashOnDelivery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	o, err := h.svc.CashOnDelivery(ctx, GetUserID(ctx))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Order created successfully", OrderID: o.ID})
}

func (h *CheckoutHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if err := h.svc.ClearCart(ctx, GetUserID(ctx)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CheckoutHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if _, err := uuid.Parse(orderID); err != nil {
		writeError(w, http.StatusNotFound, "Order not found.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	o, err := h.svc.GetOrder(ctx, GetUserID(ctx), orderID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (h *CheckoutHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *checkout.Error
	if !errors.As(err, &ce) {
		h.log.ErrorContext(r.Context(), "unhandled checkout error", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := statusFor(ce.Kind)
	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "checkout request failed",
			"path", r.URL.Path, "op", ce.Op, "kind", ce.Kind.String(), "err", ce.Err)
	}
	writeError(w, status, ce.Msg)
}

func statusFor(k checkout.Kind) int {
	switch k {
	case checkout.KindNotFound:
		return http.StatusNotFound
	case checkout.KindEmpty, checkout.KindInvalidAmount, checkout.KindInvalidRequest, checkout.KindPaymentFailed:
		return http.StatusBadRequest
	case checkout.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
