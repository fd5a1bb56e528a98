package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/dwrenner/clubdesk/internal/store"
)

// SessionChecker fetches the provider's view of a checkout session.
type SessionChecker interface {
	CheckoutSessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error)
}

// Poller is the fallback reconciliation path for deliveries the webhook never
// made. It races the webhook on purpose; the guarded order transition keeps
// the outcome single-application.
type Poller struct {
	checker  SessionChecker
	orders   *store.OrderStore
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

func NewPoller(checker SessionChecker, orders *store.OrderStore, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		checker:  checker,
		orders:   orders,
		interval: interval,
		batch:    50,
		logger:   logger,
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.PollOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// PollOnce checks every pending order with an attached provider session.
func (p *Poller) PollOnce(ctx context.Context) {
	orders, err := p.orders.ListPendingWithSession(p.batch)
	if err != nil {
		p.logger.Error("list pending orders", "error", err)
		return
	}

	for _, order := range orders {
		status, err := p.checker.CheckoutSessionStatus(ctx, *order.ProviderSessionID)
		if err != nil {
			p.logger.Error("check session status",
				"order_id", order.ID, "session_id", *order.ProviderSessionID, "error", err)
			continue
		}
		if !status.Paid {
			continue
		}

		paymentID := status.PaymentID
		if paymentID == "" {
			paymentID = *order.ProviderSessionID
		}
		applied, err := p.orders.MarkPaid(order.ID, paymentID, status.AmountCents)
		if err != nil {
			p.logger.Error("mark order paid from poll", "order_id", order.ID, "error", err)
			continue
		}
		if applied {
			p.logger.Info("order settled by fallback poll", "order_id", order.ID)
		}
	}
}
