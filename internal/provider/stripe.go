package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-payments/internal/logger"
	"ms-payments/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// StripeMethodData is the display payload the storefront needs to mount the
// card form.
type StripeMethodData struct {
	PaymentMethodTypes []string `json:"payment_method_types"`
}

func (StripeMethodData) MethodDataOf() string { return "stripe" }

// stripeInstrument is the per-payment instrument data the checkout stored
// on the payment row.
type stripeInstrument struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

// StripeProvider captures and refunds card payments through Stripe
// PaymentIntents created during checkout with manual confirmation.
type StripeProvider struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeProvider(secretKey string, log *logger.Logger) (*StripeProvider, error) {
	if secretKey == "" {
		log.Error("STRIPE", "Stripe secret key not configured")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(secretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeProvider{client: sc, log: log}, nil
}

func (p *StripeProvider) Name() string        { return "stripe" }
func (p *StripeProvider) PluginName() string  { return "payments-stripe" }
func (p *StripeProvider) DisplayName() string { return "Credit card (Stripe)" }
func (p *StripeProvider) CanRefund() bool     { return true }

func (p *StripeProvider) EnabledByDefault() bool { return true }

func (p *StripeProvider) Available(ctx models.CheckoutContext) bool {
	// Cards work for any region Stripe settles in; only the currency has
	// to be present so the intent amount is well defined.
	return ctx.Currency != ""
}

func (p *StripeProvider) MethodData() models.MethodData {
	return StripeMethodData{PaymentMethodTypes: []string{"card"}}
}

func (p *StripeProvider) Capture(ctx context.Context, payment *models.Payment) (*CaptureResult, error) {
	instrument, err := p.decodeInstrument(payment.Data)
	if err != nil {
		return nil, &Error{Code: "invalid_instrument", Message: err.Error()}
	}

	p.log.LogProvider("stripe", "CAPTURE", fmt.Sprintf("Capturing payment intent %s for payment %s", instrument.PaymentIntentID, payment.PaymentID))

	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(payment.Amount),
	}
	params.Context = ctx

	pi, err := p.client.PaymentIntents.Capture(instrument.PaymentIntentID, params)
	if err != nil {
		return nil, p.wrapStripeError(err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, &Error{
			Code:    "capture_incomplete",
			Message: fmt.Sprintf("payment intent %s ended in status %s", pi.ID, pi.Status),
		}
	}

	p.log.LogProvider("stripe", "CAPTURE", fmt.Sprintf("Payment intent %s captured", pi.ID))
	return &CaptureResult{TransactionID: pi.ID}, nil
}

func (p *StripeProvider) Refund(ctx context.Context, payment *models.Payment, amount int64) (*RefundResult, error) {
	p.log.LogProvider("stripe", "REFUND", fmt.Sprintf("Refunding %d %s of transaction %s", amount, payment.Currency, payment.TransactionID))

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(payment.TransactionID),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx

	ref, err := p.client.Refunds.New(params)
	if err != nil {
		return nil, p.wrapStripeError(err)
	}

	p.log.LogProvider("stripe", "REFUND", fmt.Sprintf("Refund %s created with status %s", ref.ID, ref.Status))
	return &RefundResult{RefundID: ref.ID, Status: string(ref.Status)}, nil
}

func (p *StripeProvider) decodeInstrument(raw json.RawMessage) (*stripeInstrument, error) {
	if len(raw) == 0 {
		return nil, errors.New("payment carries no stripe instrument data")
	}
	var instrument stripeInstrument
	if err := json.Unmarshal(raw, &instrument); err != nil {
		return nil, fmt.Errorf("failed to decode stripe instrument data: %w", err)
	}
	if instrument.PaymentIntentID == "" {
		return nil, errors.New("stripe instrument data has no payment_intent_id")
	}
	return &instrument, nil
}

func (p *StripeProvider) wrapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		p.log.Error("STRIPE", fmt.Sprintf("Stripe API error [%s]: %s", stripeErr.Code, stripeErr.Msg))
		return &Error{Code: string(stripeErr.Code), Message: stripeErr.Msg}
	}
	p.log.Error("STRIPE", fmt.Sprintf("Stripe call failed: %v", err))
	return &Error{Code: CodeUnavailable, Message: err.Error()}
}
