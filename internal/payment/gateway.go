// Package payment defines the gateway contracts used by checkout. Concrete
// clients live in the stripe and paypal subpackages and are built once at
// startup.
package payment

import (
	"context"
	"fmt"
)

// Error is a failure reported by a payment provider. Message is the
// provider's own human-readable text.
type Error struct {
	Provider string
	Op       string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ChargeStatus mirrors the card gateway's payment intent lifecycle.
type ChargeStatus string

const (
	ChargeSucceeded             ChargeStatus = "succeeded"
	ChargeRequiresAction        ChargeStatus = "requires_action"
	ChargeRequiresSourceAction  ChargeStatus = "requires_source_action"
	ChargeRequiresConfirmation  ChargeStatus = "requires_confirmation"
	ChargeRequiresPaymentMethod ChargeStatus = "requires_payment_method"
	ChargeProcessing            ChargeStatus = "processing"
	ChargeCanceled              ChargeStatus = "canceled"
)

// NeedsAction reports whether the customer has to complete a challenge.
func (s ChargeStatus) NeedsAction() bool {
	return s == ChargeRequiresAction || s == ChargeRequiresSourceAction
}

// Terminal reports whether the charge can no longer succeed.
func (s ChargeStatus) Terminal() bool {
	return s == ChargeRequiresPaymentMethod || s == ChargeCanceled
}

type ChargeRequest struct {
	AmountMinor     int64
	Currency        string
	PaymentMethodID string
	ReturnURL       string
	IdempotencyKey  string
}

type Charge struct {
	ID           string
	ClientSecret string
	Status       ChargeStatus
	// RedirectURL is the challenge page when Status needs action.
	RedirectURL string
}

// CardGateway creates and inspects manually confirmed card charges.
type CardGateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	GetCharge(ctx context.Context, id string) (*Charge, error)
	ConfirmCharge(ctx context.Context, id, returnURL string) (*Charge, error)
}

const CaptureCompleted = "COMPLETED"

type ApprovalRequest struct {
	ReferenceID string
	Amount      string
	Currency    string
	ReturnURL   string
	CancelURL   string
}

type Approval struct {
	ID         string
	Status     string
	ApproveURL string
}

type Capture struct {
	ID     string
	Status string
}

// WalletGateway runs the redirect-based approve-then-capture flow.
type WalletGateway interface {
	CreateApproval(ctx context.Context, req ApprovalRequest) (*Approval, error)
	Capture(ctx context.Context, token string) (*Capture, error)
}
