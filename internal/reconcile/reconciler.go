// Package reconcile provides a generic at-most-once processor for external
// one-time events. The event's provider-assigned identifier plays the role of
// a secret: it is "issued" by recording it and "consumed" by processing it,
// and the unique constraint on the id orders duplicate deliveries into
// exactly one winner.
package reconcile

import (
	"log/slog"

	"github.com/dwrenner/clubdesk/internal/metrics"
	"github.com/dwrenner/clubdesk/internal/model"
	"github.com/dwrenner/clubdesk/internal/store"
)

// Handler applies the event's side effects. Handlers must themselves be
// business-idempotent: an event can be newly recorded here yet describe a
// state another path already advanced (the fallback poller and the webhook
// race each other).
type Handler func(eventType string, payload []byte) error

// Result reports how one delivery was resolved.
type Result struct {
	Duplicate bool
	Event     *model.WebhookEvent
}

type Reconciler struct {
	events *store.WebhookEventStore
	logger *slog.Logger
}

func New(events *store.WebhookEventStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{events: events, logger: logger}
}

// Process records the event and, if this delivery won the record step, runs
// the handler and marks the event processed — unconditionally, stamping the
// handler error if there was one. A failed event is surfaced for operator
// follow-up, never left retryable in a way that replays side effects.
func (r *Reconciler) Process(providerEventID, eventType string, payload []byte, handler Handler) (Result, error) {
	isNew, event, err := r.events.Record(providerEventID, eventType)
	if err != nil {
		return Result{}, err
	}

	if !isNew && event.Processed {
		metrics.WebhookDuplicates.Inc()
		r.logger.Info("duplicate event delivery short-circuited",
			"provider_event_id", providerEventID, "event_type", eventType)
		return Result{Duplicate: true, Event: event}, nil
	}

	// New, or recorded earlier but never marked processed (a crash between
	// record and mark). Either way this delivery owns processing now.
	errMsg := ""
	if err := handler(eventType, payload); err != nil {
		errMsg = err.Error()
		metrics.WebhookFailures.Inc()
		r.logger.Error("event processing failed",
			"provider_event_id", providerEventID, "event_type", eventType, "error", err)
	}

	if err := r.events.MarkProcessed(event.ID, errMsg); err != nil {
		return Result{}, err
	}

	event, err = r.events.GetByProviderEventID(providerEventID)
	if err != nil {
		return Result{}, err
	}
	return Result{Duplicate: !isNew, Event: event}, nil
}
