package model

import "time"

// WebhookEvent records one external event delivery. provider_event_id is
// globally unique; a second delivery of the same id is short-circuited before
// any side effect runs again.
type WebhookEvent struct {
	ID              int64      `json:"id"`
	ProviderEventID string     `json:"provider_event_id"`
	EventType       string     `json:"event_type"`
	Processed       bool       `json:"processed"`
	ProcessedAt     *time.Time `json:"processed_at"`
	ErrorMessage    *string    `json:"error_message"`
	CreatedAt       time.Time  `json:"created_at"`
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Order is a payable registration charge. Payment state only ever moves
// forward; MarkPaid is guarded so the webhook and the fallback poller can race
// without applying twice.
type Order struct {
	ID                int64         `json:"id"`
	HouseholdID       int64         `json:"household_id"`
	Description       string        `json:"description"`
	AmountCents       int64         `json:"amount_cents"`
	Currency          string        `json:"currency"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	ProviderSessionID *string       `json:"provider_session_id"`
	PaidAt            *time.Time    `json:"paid_at"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Payment is the ledger row written exactly once per settled order.
type Payment struct {
	ID                int64     `json:"id"`
	OrderID           int64     `json:"order_id"`
	ProviderPaymentID string    `json:"provider_payment_id"`
	AmountCents       int64     `json:"amount_cents"`
	CreatedAt         time.Time `json:"created_at"`
}
