package httpapi

import (
	"net/http"
	"time"
)

const (
	cookieAttemptID     = "order_id"
	cookiePaymentMethod = "payment_method"
)

type CookieConfig struct {
	Secure bool
	TTL    time.Duration
}

func (c CookieConfig) set(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) clearWallet(w http.ResponseWriter) {
	c.clear(w, cookieAttemptID)
	c.clear(w, cookiePaymentMethod)
}
