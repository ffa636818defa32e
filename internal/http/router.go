package httpapi

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/metrics"
)

type RouterConfig struct {
	AllowedOrigins []string
	Metrics        *metrics.Metrics
}

func NewRouter(h *CheckoutHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", HeaderUserID, HeaderCorrelationID},
		ExposedHeaders:   []string{HeaderCorrelationID},
		AllowCredentials: allowCredentials(cfg.AllowedOrigins),
		MaxAge:           300,
	}))
	r.Use(Instrument(cfg.Metrics))
	r.Use(CorrelationID)

	r.Get("/health", healthHandler)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RequireUserID)

		r.Get("/checkout", h.GetCheckout)
		r.Post("/checkout/cash-on-delivery", h.CashOnDelivery)
		r.Delete("/checkout/cart", h.ClearCart)

		r.Post("/process-payment", h.ProcessPayment)
		r.Get("/payment-return", h.PaymentReturn)

		r.Post("/paypal/create", h.CreateWalletPayment)
		r.Get("/paypalsuccess", h.WalletSuccess)
		r.Get("/cancel", h.CancelWalletPayment)

		r.Get("/success/{orderId}", h.GetOrder)
	})

	return r
}

// allowCredentials is false for a wildcard origin list, which would
// otherwise grant credentialed access to every site.
func allowCredentials(origins []string) bool {
	return len(origins) > 0 && !slices.Contains(origins, "*")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "checkout-service",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
