package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/Ljo9000/skupi/internal/database"
	"github.com/Ljo9000/skupi/internal/models"
)

type WaitingListRepository struct {
	db *database.DB
}

func NewWaitingListRepository(db *database.DB) *WaitingListRepository {
	return &WaitingListRepository{db: db}
}

const waitlistColumns = `id, event_id, guest_name, guest_email, phone,
       notify_whatsapp, notify_viber, notified_at, created_at`

func (r *WaitingListRepository) Create(ctx context.Context, entry *models.WaitingListEntry) error {
	query := `
		INSERT INTO waiting_list (event_id, guest_name, guest_email, phone, notify_whatsapp, notify_viber)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return r.db.QueryRowContext(ctx, query,
		entry.EventID,
		entry.GuestName,
		entry.GuestEmail,
		entry.Phone,
		entry.NotifyWhatsApp,
		entry.NotifyViber,
	).Scan(&entry.ID, &entry.CreatedAt)
}

// IsWaiting reports whether the guest already has an un-notified entry
func (r *WaitingListRepository) IsWaiting(ctx context.Context, eventID uuid.UUID, email string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM waiting_list
			WHERE event_id = $1 AND lower(guest_email) = lower($2) AND notified_at IS NULL
		)`

	err := r.db.QueryRowContext(ctx, query, eventID, email).Scan(&exists)
	return exists, err
}

// OldestWaiting returns the next entry eligible for promotion, or nil
func (r *WaitingListRepository) OldestWaiting(ctx context.Context, eventID uuid.UUID) (*models.WaitingListEntry, error) {
	entry := &models.WaitingListEntry{}
	query := `SELECT ` + waitlistColumns + `
		FROM waiting_list
		WHERE event_id = $1 AND notified_at IS NULL
		ORDER BY created_at ASC
		LIMIT 1`

	err := r.db.QueryRowContext(ctx, query, eventID).Scan(
		&entry.ID,
		&entry.EventID,
		&entry.GuestName,
		&entry.GuestEmail,
		&entry.Phone,
		&entry.NotifyWhatsApp,
		&entry.NotifyViber,
		&entry.NotifiedAt,
		&entry.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// MarkNotified sets notified_at once. The IS NULL guard makes concurrent
// promoters race safely: only the caller that changed the row dispatches.
func (r *WaitingListRepository) MarkNotified(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE waiting_list SET notified_at = NOW() WHERE id = $1 AND notified_at IS NULL`, id)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}
