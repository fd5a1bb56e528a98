package payment

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dwrenner/clubdesk/internal/database"
	"github.com/dwrenner/clubdesk/internal/model"
	"github.com/dwrenner/clubdesk/internal/store"
)

type fakeChecker struct {
	statuses map[string]*SessionStatus
	calls    int
}

func (f *fakeChecker) CheckoutSessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	f.calls++
	status, ok := f.statuses[sessionID]
	if !ok {
		return nil, fmt.Errorf("unknown session %s", sessionID)
	}
	return status, nil
}

func TestPollOnceSettlesPaidSession(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	orders := store.NewOrderStore(db)
	order := createPendingOrder(t, db, orders, "cs_test_1")

	checker := &fakeChecker{statuses: map[string]*SessionStatus{
		"cs_test_1": {Paid: true, PaymentID: "pi_1", AmountCents: 5000},
	}}
	p := NewPoller(checker, orders, time.Minute, slog.New(slog.DiscardHandler))

	p.PollOnce(context.Background())

	got, err := orders.GetByID(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.PaymentStatus != model.PaymentPaid {
		t.Errorf("status = %q, want paid", got.PaymentStatus)
	}

	// A second pass finds nothing pending.
	p.PollOnce(context.Background())
	if checker.calls != 1 {
		t.Errorf("checker calls = %d, want 1", checker.calls)
	}
}

func TestPollOnceLeavesUnpaidPending(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	orders := store.NewOrderStore(db)
	order := createPendingOrder(t, db, orders, "cs_test_1")

	checker := &fakeChecker{statuses: map[string]*SessionStatus{
		"cs_test_1": {Paid: false},
	}}
	p := NewPoller(checker, orders, time.Minute, slog.New(slog.DiscardHandler))

	p.PollOnce(context.Background())

	got, err := orders.GetByID(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.PaymentStatus != model.PaymentPending {
		t.Errorf("status = %q, want pending", got.PaymentStatus)
	}
}

func TestPollOnceContinuesPastCheckerErrors(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	orders := store.NewOrderStore(db)
	broken := createPendingOrder(t, db, orders, "cs_broken")

	club, err := store.NewClubStore(db).Create("Other Club")
	if err != nil {
		t.Fatalf("create club: %v", err)
	}
	household, err := store.NewHouseholdStore(db).Create(club.ID, "Other Household")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	healthy, err := orders.Create(household.ID, "Trip fee", 9900, "usd")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := orders.SetProviderSessionID(healthy.ID, "cs_ok"); err != nil {
		t.Fatalf("set session id: %v", err)
	}

	checker := &fakeChecker{statuses: map[string]*SessionStatus{
		"cs_ok": {Paid: true, PaymentID: "pi_2", AmountCents: 9900},
	}}
	p := NewPoller(checker, orders, time.Minute, slog.New(slog.DiscardHandler))

	p.PollOnce(context.Background())

	got, err := orders.GetByID(healthy.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.PaymentStatus != model.PaymentPaid {
		t.Errorf("healthy order status = %q, want paid despite earlier error", got.PaymentStatus)
	}

	stillPending, err := orders.GetByID(broken.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stillPending.PaymentStatus != model.PaymentPending {
		t.Errorf("broken order status = %q, want pending", stillPending.PaymentStatus)
	}
}
