package payment

import (
	"encoding/json"
	"fmt"
	"log/slog"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/dwrenner/clubdesk/internal/reconcile"
	"github.com/dwrenner/clubdesk/internal/store"
)

// Processor applies provider events to orders through the reconciler, which
// guarantees each provider event id runs its side effects at most once.
type Processor struct {
	reconciler *reconcile.Reconciler
	orders     *store.OrderStore
	logger     *slog.Logger
}

func NewProcessor(reconciler *reconcile.Reconciler, orders *store.OrderStore, logger *slog.Logger) *Processor {
	return &Processor{reconciler: reconciler, orders: orders, logger: logger}
}

// HandleEvent routes a verified webhook event through the reconciler.
func (p *Processor) HandleEvent(event stripe.Event) (reconcile.Result, error) {
	return p.reconciler.Process(event.ID, string(event.Type), event.Data.Raw, p.apply)
}

func (p *Processor) apply(eventType string, payload []byte) error {
	switch eventType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		return p.applyPaid(payload)
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		return p.applyFailed(payload)
	default:
		// Unhandled event types are recorded and marked processed so a
		// redelivery is still detected as a duplicate.
		return nil
	}
}

func (p *Processor) applyPaid(payload []byte) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(payload, &sess); err != nil {
		return fmt.Errorf("unmarshal checkout session: %w", err)
	}

	order, err := p.orders.GetByProviderSessionID(sess.ID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("no order for checkout session %s", sess.ID)
	}

	paymentID := sess.ID
	if sess.PaymentIntent != nil {
		paymentID = sess.PaymentIntent.ID
	}

	// Business-level idempotency: the poller may already have advanced this
	// order. MarkPaid is guarded, so losing here is normal, not an error.
	applied, err := p.orders.MarkPaid(order.ID, paymentID, sess.AmountTotal)
	if err != nil {
		return err
	}
	if !applied {
		p.logger.Info("order already paid, skipping", "order_id", order.ID, "session_id", sess.ID)
	}
	return nil
}

func (p *Processor) applyFailed(payload []byte) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(payload, &sess); err != nil {
		return fmt.Errorf("unmarshal checkout session: %w", err)
	}

	order, err := p.orders.GetByProviderSessionID(sess.ID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("no order for checkout session %s", sess.ID)
	}
	return p.orders.MarkFailed(order.ID)
}
