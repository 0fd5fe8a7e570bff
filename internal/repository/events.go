package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Ljo9000/skupi/internal/database"
	"github.com/Ljo9000/skupi/internal/models"
)

type EventRepository struct {
	db *database.DB
}

func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, slug, organizer_id, organizer_email, name, description, starts_at, pay_deadline,
       price_cents, service_fee_cents, min_guests, max_guests, status, created_at, updated_at`

func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO events (slug, organizer_id, organizer_email, name, description, starts_at, pay_deadline,
		                    price_cents, service_fee_cents, min_guests, max_guests, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		event.Slug,
		event.OrganizerID,
		event.OrganizerEmail,
		event.Name,
		event.Description,
		event.StartsAt,
		event.PayDeadline,
		event.PriceCents,
		event.ServiceFeeCents,
		event.MinGuests,
		event.MaxGuests,
		event.Status,
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
}

func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return r.getOne(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
}

func (r *EventRepository) GetBySlug(ctx context.Context, slug string) (*models.Event, error) {
	return r.getOne(ctx, `SELECT `+eventColumns+` FROM events WHERE slug = $1`, slug)
}

func (r *EventRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM events WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

// UpdateStatus performs the conditional event transition. It reports whether
// a row actually changed; callers attach side effects only to a true result.
func (r *EventRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to models.EventStatus, from ...models.EventStatus) (bool, error) {
	query := `
		UPDATE events
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)`

	res, err := r.db.ExecContext(ctx, query, to, id, pq.Array(statusStrings(from)))
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}

// ListDueForSweep returns events past their payment deadline that still
// need settlement work: active events, and confirmed events that locked at
// maximum before the deadline and still carry uncaptured holds.
func (r *EventRepository) ListDueForSweep(ctx context.Context, now time.Time, limit int) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM events
		WHERE pay_deadline < $1
		  AND (status = 'active'
		       OR (status = 'confirmed' AND EXISTS (
		            SELECT 1 FROM payments p
		            WHERE p.event_id = events.id
		              AND p.status IN ('paid', 'capturing'))))
		ORDER BY pay_deadline ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var event models.Event
		if err := scanEvent(rows, &event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

func (r *EventRepository) getOne(ctx context.Context, query string, arg any) (*models.Event, error) {
	event := &models.Event{}
	err := scanEvent(r.db.QueryRowContext(ctx, query, arg), event)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner, event *models.Event) error {
	return row.Scan(
		&event.ID,
		&event.Slug,
		&event.OrganizerID,
		&event.OrganizerEmail,
		&event.Name,
		&event.Description,
		&event.StartsAt,
		&event.PayDeadline,
		&event.PriceCents,
		&event.ServiceFeeCents,
		&event.MinGuests,
		&event.MaxGuests,
		&event.Status,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
}

func statusStrings[S ~string](statuses []S) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
