package store

import (
	"database/sql"
	"fmt"

	"github.com/dwrenner/clubdesk/internal/model"
)

type WebhookEventStore struct {
	db *sql.DB
}

func NewWebhookEventStore(db *sql.DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

func scanWebhookEvent(scanner interface{ Scan(...any) error }) (*model.WebhookEvent, error) {
	var e model.WebhookEvent
	var processedAt sql.NullTime
	var errorMessage sql.NullString

	err := scanner.Scan(
		&e.ID, &e.ProviderEventID, &e.EventType, &e.Processed,
		&processedAt, &errorMessage, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		e.ProcessedAt = &processedAt.Time
	}
	if errorMessage.Valid {
		e.ErrorMessage = &errorMessage.String
	}
	return &e, nil
}

const webhookEventCols = `id, provider_event_id, event_type, processed, processed_at, error_message, created_at`

// Record is an atomic upsert keyed on provider_event_id. The unique constraint
// orders duplicate deliveries: exactly one caller observes isNew == true.
func (s *WebhookEventStore) Record(providerEventID, eventType string) (isNew bool, event *model.WebhookEvent, err error) {
	result, err := s.db.Exec(
		`INSERT INTO webhook_events (provider_event_id, event_type)
		 VALUES (?, ?)
		 ON CONFLICT(provider_event_id) DO NOTHING`,
		providerEventID, eventType,
	)
	if err != nil {
		return false, nil, fmt.Errorf("record webhook event: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("rows affected: %w", err)
	}

	event, err = s.GetByProviderEventID(providerEventID)
	if err != nil {
		return false, nil, err
	}
	if event == nil {
		return false, nil, fmt.Errorf("webhook event %s vanished after record", providerEventID)
	}
	return n == 1, event, nil
}

func (s *WebhookEventStore) GetByProviderEventID(providerEventID string) (*model.WebhookEvent, error) {
	row := s.db.QueryRow(
		`SELECT `+webhookEventCols+` FROM webhook_events WHERE provider_event_id = ?`,
		providerEventID,
	)
	e, err := scanWebhookEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return e, nil
}

// MarkProcessed flips processed unconditionally, stamping an error message if
// the handler failed. A failed event is not left retryable; operators follow
// up from the stored message.
func (s *WebhookEventStore) MarkProcessed(id int64, errorMessage string) error {
	var msg sql.NullString
	if errorMessage != "" {
		msg = sql.NullString{String: errorMessage, Valid: true}
	}
	_, err := s.db.Exec(
		`UPDATE webhook_events SET processed = 1, processed_at = datetime('now'), error_message = ? WHERE id = ?`,
		msg, id,
	)
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	return nil
}

// ListFailed returns processed events that recorded an error, for operator
// follow-up.
func (s *WebhookEventStore) ListFailed(limit int) ([]model.WebhookEvent, error) {
	rows, err := s.db.Query(
		`SELECT `+webhookEventCols+` FROM webhook_events
		 WHERE processed = 1 AND error_message IS NOT NULL
		 ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list failed webhook events: %w", err)
	}
	defer rows.Close()

	var events []model.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}
