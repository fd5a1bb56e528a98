package store

import (
	"testing"
)

func TestWebhookEventRecord(t *testing.T) {
	db := setupTestDB(t)
	s := NewWebhookEventStore(db)

	isNew, event, err := s.Record("evt_1", "checkout.session.completed")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !isNew {
		t.Error("first record should be new")
	}
	if event == nil || event.ProviderEventID != "evt_1" {
		t.Fatalf("got %+v", event)
	}
	if event.Processed {
		t.Error("new event should start unprocessed")
	}
}

func TestWebhookEventRecordDuplicate(t *testing.T) {
	db := setupTestDB(t)
	s := NewWebhookEventStore(db)

	_, first, err := s.Record("evt_1", "checkout.session.completed")
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	isNew, second, err := s.Record("evt_1", "checkout.session.completed")
	if err != nil {
		t.Fatalf("record duplicate: %v", err)
	}
	if isNew {
		t.Error("duplicate record should not be new")
	}
	if second.ID != first.ID {
		t.Errorf("duplicate returned row %d, want %d", second.ID, first.ID)
	}
}

func TestWebhookEventMarkProcessed(t *testing.T) {
	db := setupTestDB(t)
	s := NewWebhookEventStore(db)

	_, event, err := s.Record("evt_1", "checkout.session.completed")
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := s.MarkProcessed(event.ID, ""); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	got, err := s.GetByProviderEventID("evt_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Processed {
		t.Error("event should be processed")
	}
	if got.ProcessedAt == nil {
		t.Error("expected processed_at to be set")
	}
	if got.ErrorMessage != nil {
		t.Errorf("error_message = %v, want nil", *got.ErrorMessage)
	}
}

func TestWebhookEventMarkProcessedWithError(t *testing.T) {
	db := setupTestDB(t)
	s := NewWebhookEventStore(db)

	_, event, err := s.Record("evt_1", "checkout.session.completed")
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := s.MarkProcessed(event.ID, "order not found"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	failed, err := s.ListFailed(10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("failed events = %d, want 1", len(failed))
	}
	if failed[0].ErrorMessage == nil || *failed[0].ErrorMessage != "order not found" {
		t.Errorf("got %+v", failed[0])
	}
}

func TestWebhookEventGetMissing(t *testing.T) {
	db := setupTestDB(t)
	s := NewWebhookEventStore(db)

	event, err := s.GetByProviderEventID("missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if event != nil {
		t.Errorf("expected nil, got %+v", event)
	}
}
