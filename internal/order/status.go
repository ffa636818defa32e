package order

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type PaymentMethod string

const (
	MethodCard           PaymentMethod = "card"
	MethodWallet         PaymentMethod = "wallet"
	MethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// ParsePaymentMethod accepts the stored names plus the "paypal" alias used by
// storefront clients for the wallet flow.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch s {
	case string(MethodCard):
		return MethodCard, nil
	case string(MethodWallet), "paypal":
		return MethodWallet, nil
	case string(MethodCashOnDelivery):
		return MethodCashOnDelivery, nil
	default:
		return "", fmt.Errorf("unknown payment method %q", s)
	}
}
