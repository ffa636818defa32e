// Package stripe adapts stripe-go payment intents to payment.CardGateway.
package stripe

import (
	"context"
	"errors"
	"net/http"
	"time"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/payment"
)

const provider = "stripe"

type Config struct {
	SecretKey string
	Timeout   time.Duration
	// BaseURL overrides the API endpoint; empty means the live Stripe API.
	BaseURL string
}

type Gateway struct {
	api *client.API
}

var _ payment.CardGateway = (*Gateway)(nil)

func New(cfg Config) *Gateway {
	backendCfg := &stripego.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelNull},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripego.String(cfg.BaseURL)
	}

	b := stripego.GetBackendWithConfig(stripego.APIBackend, backendCfg)
	return &Gateway{
		api: client.New(cfg.SecretKey, &stripego.Backends{API: b, Connect: b, Uploads: b}),
	}
}

func (g *Gateway) CreateCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	params := &stripego.PaymentIntentParams{
		Amount:             stripego.Int64(req.AmountMinor),
		Currency:           stripego.String(req.Currency),
		PaymentMethod:      stripego.String(req.PaymentMethodID),
		ConfirmationMethod: stripego.String(string(stripego.PaymentIntentConfirmationMethodManual)),
		Confirm:            stripego.Bool(true),
		ReturnURL:          stripego.String(req.ReturnURL),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, wrapErr("create payment intent", err)
	}
	return toCharge(pi), nil
}

func (g *Gateway) GetCharge(ctx context.Context, id string) (*payment.Charge, error) {
	params := &stripego.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, wrapErr("retrieve payment intent", err)
	}
	return toCharge(pi), nil
}

func (g *Gateway) ConfirmCharge(ctx context.Context, id, returnURL string) (*payment.Charge, error) {
	params := &stripego.PaymentIntentConfirmParams{
		ReturnURL: stripego.String(returnURL),
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Confirm(id, params)
	if err != nil {
		return nil, wrapErr("confirm payment intent", err)
	}
	return toCharge(pi), nil
}

func toCharge(pi *stripego.PaymentIntent) *payment.Charge {
	c := &payment.Charge{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       payment.ChargeStatus(pi.Status),
	}
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		c.RedirectURL = pi.NextAction.RedirectToURL.URL
	}
	return c
}

func wrapErr(op string, err error) error {
	msg := err.Error()
	var serr *stripego.Error
	if errors.As(err, &serr) && serr.Msg != "" {
		msg = serr.Msg
	}
	return &payment.Error{Provider: provider, Op: op, Message: msg, Err: err}
}
