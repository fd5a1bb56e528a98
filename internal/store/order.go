package store

import (
	"database/sql"
	"fmt"

	"github.com/dwrenner/clubdesk/internal/model"
)

type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

func scanOrder(scanner interface{ Scan(...any) error }) (*model.Order, error) {
	var o model.Order
	var sessionID sql.NullString
	var paidAt sql.NullTime

	err := scanner.Scan(
		&o.ID, &o.HouseholdID, &o.Description, &o.AmountCents, &o.Currency,
		&o.PaymentStatus, &sessionID, &paidAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if sessionID.Valid {
		o.ProviderSessionID = &sessionID.String
	}
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	return &o, nil
}

const orderCols = `id, household_id, description, amount_cents, currency, payment_status, provider_session_id, paid_at, created_at, updated_at`

func (s *OrderStore) Create(householdID int64, description string, amountCents int64, currency string) (*model.Order, error) {
	result, err := s.db.Exec(
		`INSERT INTO orders (household_id, description, amount_cents, currency) VALUES (?, ?, ?, ?)`,
		householdID, description, amountCents, currency,
	)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *OrderStore) GetByID(id int64) (*model.Order, error) {
	row := s.db.QueryRow(`SELECT `+orderCols+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *OrderStore) GetByProviderSessionID(sessionID string) (*model.Order, error) {
	row := s.db.QueryRow(`SELECT `+orderCols+` FROM orders WHERE provider_session_id = ?`, sessionID)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order by provider session: %w", err)
	}
	return o, nil
}

func (s *OrderStore) SetProviderSessionID(id int64, sessionID string) error {
	_, err := s.db.Exec(
		`UPDATE orders SET provider_session_id = ?, updated_at = datetime('now') WHERE id = ?`,
		sessionID, id,
	)
	if err != nil {
		return fmt.Errorf("set provider session id: %w", err)
	}
	return nil
}

// MarkPaid moves an order to paid and writes the payment ledger row in one
// transaction. The status guard plus the unique provider_payment_id make the
// transition apply at most once: the webhook and the fallback poller can both
// call this and only one wins.
func (s *OrderStore) MarkPaid(id int64, providerPaymentID string, amountCents int64) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE orders SET payment_status = 'paid', paid_at = datetime('now'), updated_at = datetime('now')
		 WHERE id = ? AND payment_status != 'paid'`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.Exec(
		`INSERT INTO payments (order_id, provider_payment_id, amount_cents) VALUES (?, ?, ?)`,
		id, providerPaymentID, amountCents,
	)
	if IsUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

// MarkFailed records a failed charge; paid orders are never downgraded.
func (s *OrderStore) MarkFailed(id int64) error {
	_, err := s.db.Exec(
		`UPDATE orders SET payment_status = 'failed', updated_at = datetime('now')
		 WHERE id = ? AND payment_status = 'pending'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark order failed: %w", err)
	}
	return nil
}

// ListPendingWithSession returns orders awaiting payment that have a provider
// session attached, for the fallback status poller.
func (s *OrderStore) ListPendingWithSession(limit int) ([]model.Order, error) {
	rows, err := s.db.Query(
		`SELECT `+orderCols+` FROM orders
		 WHERE payment_status = 'pending' AND provider_session_id IS NOT NULL
		 ORDER BY created_at ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// CountPayments returns the payment-ledger rows for an order.
func (s *OrderStore) CountPayments(orderID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM payments WHERE order_id = ?`, orderID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return n, nil
}
