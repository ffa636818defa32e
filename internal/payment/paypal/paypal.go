// Package paypal adapts the PayPal Orders v2 API to payment.WalletGateway.
package paypal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	paypalsdk "github.com/plutov/paypal/v4"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/payment"
)

const provider = "paypal"

type Config struct {
	ClientID string
	Secret   string
	// Mode selects the API host: "live" or anything else for sandbox.
	Mode    string
	Timeout time.Duration
	// BaseURL overrides Mode when set.
	BaseURL string
}

type Gateway struct {
	client *paypalsdk.Client
}

var _ payment.WalletGateway = (*Gateway)(nil)

// New builds the client and fetches the first access token. The SDK refreshes
// the token on later calls as it nears expiry.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	base := paypalsdk.APIBaseSandBox
	if cfg.Mode == "live" {
		base = paypalsdk.APIBaseLive
	}
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}

	c, err := paypalsdk.NewClient(cfg.ClientID, cfg.Secret, base)
	if err != nil {
		return nil, fmt.Errorf("create paypal client: %w", err)
	}
	c.SetHTTPClient(&http.Client{Timeout: cfg.Timeout})

	if _, err := c.GetAccessToken(ctx); err != nil {
		return nil, wrapErr("get access token", err)
	}
	return &Gateway{client: c}, nil
}

func (g *Gateway) CreateApproval(ctx context.Context, req payment.ApprovalRequest) (*payment.Approval, error) {
	units := []paypalsdk.PurchaseUnitRequest{{
		ReferenceID: req.ReferenceID,
		Amount: &paypalsdk.PurchaseUnitAmount{
			Currency: req.Currency,
			Value:    req.Amount,
		},
	}}
	appCtx := &paypalsdk.ApplicationContext{
		ReturnURL: req.ReturnURL,
		CancelURL: req.CancelURL,
	}

	o, err := g.client.CreateOrder(ctx, paypalsdk.OrderIntentCapture, units, nil, appCtx)
	if err != nil {
		return nil, wrapErr("create order", err)
	}
	if o.ID == "" {
		return nil, &payment.Error{Provider: provider, Op: "create order", Message: "PayPal Order Creation Failed."}
	}

	approveURL := approvalLink(o.Links)
	if approveURL == "" {
		return nil, &payment.Error{Provider: provider, Op: "create order", Message: "approval link missing from PayPal response"}
	}

	return &payment.Approval{ID: o.ID, Status: o.Status, ApproveURL: approveURL}, nil
}

func (g *Gateway) Capture(ctx context.Context, token string) (*payment.Capture, error) {
	res, err := g.client.CaptureOrder(ctx, token, paypalsdk.CaptureOrderRequest{})
	if err != nil {
		return nil, wrapErr("capture order", err)
	}
	return &payment.Capture{ID: res.ID, Status: res.Status}, nil
}

func approvalLink(links []paypalsdk.Link) string {
	for _, l := range links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

func wrapErr(op string, err error) error {
	msg := err.Error()
	var perr *paypalsdk.ErrorResponse
	if errors.As(err, &perr) && perr.Message != "" {
		msg = perr.Message
	}
	return &payment.Error{Provider: provider, Op: op, Message: msg, Err: err}
}
