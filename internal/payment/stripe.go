// Package payment reconciles payment-provider events with order state. Both
// delivery paths — the signed webhook and the fallback status poller — funnel
// into the same guarded order transition, so they can race without applying
// a payment twice.
package payment

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg}
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.cfg.WebhookSecret)
}

// CheckoutSessionStatus fetches the current state of a checkout session, for
// the fallback poller.
func (c *Client) CheckoutSessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := checksession.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}

	st := &SessionStatus{
		Paid:        sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountCents: sess.AmountTotal,
	}
	if sess.PaymentIntent != nil {
		st.PaymentID = sess.PaymentIntent.ID
	}
	return st, nil
}

// SessionStatus is the provider's view of one checkout session.
type SessionStatus struct {
	Paid        bool
	PaymentID   string
	AmountCents int64
}
