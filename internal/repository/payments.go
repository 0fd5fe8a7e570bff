package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Ljo9000/skupi/internal/database"
	"github.com/Ljo9000/skupi/internal/models"
)

type PaymentRepository struct {
	db *database.DB
}

func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, event_id, guest_name, guest_email, auth_ref, charge_ref,
       amount_cents, owner_share_cents, status, cancel_token, created_at, updated_at`

func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (event_id, guest_name, guest_email, auth_ref,
		                      amount_cents, owner_share_cents, status, cancel_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		payment.EventID,
		payment.GuestName,
		payment.GuestEmail,
		payment.AuthRef,
		payment.AmountCents,
		payment.OwnerShareCents,
		payment.Status,
		payment.CancelToken,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *PaymentRepository) GetByAuthRef(ctx context.Context, authRef string) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE auth_ref = $1`, authRef)
}

func (r *PaymentRepository) GetByCancelToken(ctx context.Context, token uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE cancel_token = $1`, token)
}

// HasActivePayment reports whether a guest already holds a non-terminal
// payment for the event. Backed by the partial unique index, so a race
// between two checkouts still cannot produce duplicates.
func (r *PaymentRepository) HasActivePayment(ctx context.Context, eventID uuid.UUID, email string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM payments
			WHERE event_id = $1 AND lower(guest_email) = lower($2)
			  AND status NOT IN ('cancelled', 'failed', 'refunded')
		)`

	err := r.db.QueryRowContext(ctx, query, eventID, email).Scan(&exists)
	return exists, err
}

// UpdateStatus is the single mutation primitive for payment state: a
// compare-and-swap on (id, current status). A no-op result means another
// handler already applied the transition.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to models.PaymentStatus, from ...models.PaymentStatus) (bool, error) {
	query := `
		UPDATE payments
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)`

	res, err := r.db.ExecContext(ctx, query, to, id, pq.Array(statusStrings(from)))
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}

// SetAuthRef stores the gateway authorization reference once the gateway
// has responded to checkout initiation
func (r *PaymentRepository) SetAuthRef(ctx context.Context, id uuid.UUID, authRef string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET auth_ref = $1, updated_at = NOW() WHERE id = $2`,
		authRef, id)
	return err
}

// SetChargeRef records the gateway charge reference alongside a capture
func (r *PaymentRepository) SetChargeRef(ctx context.Context, id uuid.UUID, chargeRef string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET charge_ref = $1, updated_at = NOW() WHERE id = $2`,
		chargeRef, id)
	return err
}

// CountByEventInStatuses derives the per-event count used for fullness
// decisions. Always queried fresh, never cached and incremented.
func (r *PaymentRepository) CountByEventInStatuses(ctx context.Context, eventID uuid.UUID, statuses []models.PaymentStatus) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM payments WHERE event_id = $1 AND status = ANY($2)`

	err := r.db.QueryRowContext(ctx, query, eventID, pq.Array(statusStrings(statuses))).Scan(&count)
	return count, err
}

// ListByEventInStatuses returns the payments a sweep must act on, oldest first
func (r *PaymentRepository) ListByEventInStatuses(ctx context.Context, eventID uuid.UUID, statuses []models.PaymentStatus) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE event_id = $1 AND status = ANY($2)
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, eventID, pq.Array(statusStrings(statuses)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var payment models.Payment
		if err := scanPayment(rows, &payment); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}

	return payments, rows.Err()
}

// ListConfirmedNames returns guest names for the public participant list
func (r *PaymentRepository) ListConfirmedNames(ctx context.Context, eventID uuid.UUID) ([]string, error) {
	query := `
		SELECT guest_name FROM payments
		WHERE event_id = $1 AND status = ANY($2)
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, eventID, pq.Array(statusStrings(models.SettledStatuses)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, arg any) (*models.Payment, error) {
	payment := &models.Payment{}
	err := scanPayment(r.db.QueryRowContext(ctx, query, arg), payment)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func scanPayment(row rowScanner, payment *models.Payment) error {
	return row.Scan(
		&payment.ID,
		&payment.EventID,
		&payment.GuestName,
		&payment.GuestEmail,
		&payment.AuthRef,
		&payment.ChargeRef,
		&payment.AmountCents,
		&payment.OwnerShareCents,
		&payment.Status,
		&payment.CancelToken,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
}
