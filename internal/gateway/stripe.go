// Package gateway wraps the external payment processor. Settlement code never
// talks to Stripe directly; it sees charges, payouts and a signature check,
// and can distinguish processor failures (which trigger the direct fallback)
// from everything else.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// ErrDisabled is returned when the processor is not configured. Callers treat
// it like a processor failure and fall back to direct settlement.
var ErrDisabled = errors.New("payment gateway not enabled")

// ProcessorError marks a failure reported by the processor itself, as opposed
// to an unexpected local error. Only processor errors trigger the fallback
// path.
type ProcessorError struct {
	Op  string
	Err error
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *ProcessorError) Unwrap() error { return e.Err }

// IsProcessorError reports whether err came from the processor (or from the
// gateway being disabled), i.e. whether direct settlement may be attempted.
func IsProcessorError(err error) bool {
	var pe *ProcessorError
	return errors.As(err, &pe) || errors.Is(err, ErrDisabled)
}

type Charge struct {
	ID           string
	ClientSecret string
}

type Payout struct {
	ID string
}

const signatureTolerance = 300 * time.Second

// StripeClient is the production gateway. A key left empty or on the
// "dummy_" placeholder leaves the client disabled, matching the deploys that
// run on direct settlement only.
type StripeClient struct {
	api           *client.API
	webhookSecret string
	enabled       bool
}

func NewStripeClient(apiKey, webhookSecret string) *StripeClient {
	enabled := validKey(apiKey)
	api := &client.API{}
	if enabled {
		api.Init(apiKey, nil)
	}
	return &StripeClient{
		api:           api,
		webhookSecret: webhookSecret,
		enabled:       enabled,
	}
}

func validKey(key string) bool {
	return key != "" && !strings.HasPrefix(key, "dummy_")
}

func (c *StripeClient) Enabled() bool {
	return c.enabled
}

// CreateCharge opens a payment intent for the payer side of a settlement.
// Amounts are in the smallest currency unit.
func (c *StripeClient) CreateCharge(ctx context.Context, amountMinorUnits int64, currency, description string, metadata map[string]string) (*Charge, error) {
	if !c.enabled {
		return nil, ErrDisabled
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(amountMinorUnits),
		Currency:    stripe.String(currency),
		Description: stripe.String(description),
	}
	params.Context = ctx
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}

	intent, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, &ProcessorError{Op: "create charge", Err: err}
	}
	return &Charge{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// CreatePayout moves the settled funds to the mentor's linked account.
func (c *StripeClient) CreatePayout(ctx context.Context, amountMinorUnits int64, currency, description string) (*Payout, error) {
	if !c.enabled {
		return nil, ErrDisabled
	}

	params := &stripe.PayoutParams{
		Amount:      stripe.Int64(amountMinorUnits),
		Currency:    stripe.String(currency),
		Description: stripe.String(description),
	}
	params.Context = ctx

	payout, err := c.api.Payouts.New(params)
	if err != nil {
		return nil, &ProcessorError{Op: "create payout", Err: err}
	}
	return &Payout{ID: payout.ID}, nil
}

// VerifyWebhookSignature checks a webhook payload against the configured
// secret with a five minute tolerance window. Unverifiable events must be
// rejected, never trusted.
func (c *StripeClient) VerifyWebhookSignature(payload []byte, signatureHeader string) bool {
	if !c.enabled || !validKey(c.webhookSecret) {
		return false
	}
	return webhook.ValidatePayloadWithTolerance(payload, signatureHeader, c.webhookSecret, signatureTolerance) == nil
}
