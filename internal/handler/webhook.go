package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/dwrenner/clubdesk/internal/payment"
)

const maxWebhookBody = 65536

type WebhookHandler struct {
	stripeClient *payment.Client
	processor    *payment.Processor
	logger       *slog.Logger
}

func NewWebhookHandler(sc *payment.Client, p *payment.Processor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{stripeClient: sc, processor: p, logger: logger}
}

// HandleStripeWebhook verifies the signature and hands the event to the
// reconciler. Handler failures still return 200 after the event is durably
// recorded; Stripe retries are absorbed as duplicates and the failed event is
// retried by the poller instead.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	event, err := h.stripeClient.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature rejected", "error", err)
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	res, err := h.processor.HandleEvent(event)
	if err != nil {
		// Recording failed; ask Stripe to redeliver.
		h.logger.Error("record webhook event", "event_id", event.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not record event")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"received":  true,
		"duplicate": res.Duplicate,
	})
}
