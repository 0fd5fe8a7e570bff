package models

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a group booking published by an organizer
type Event struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	Slug            string      `json:"slug" db:"slug"`
	OrganizerID     uuid.UUID   `json:"organizer_id" db:"organizer_id"`
	OrganizerEmail  string      `json:"organizer_email" db:"organizer_email"`
	Name            string      `json:"name" db:"name"`
	Description     *string     `json:"description" db:"description"`
	StartsAt        time.Time   `json:"starts_at" db:"starts_at"`
	PayDeadline     time.Time   `json:"pay_deadline" db:"pay_deadline"`
	PriceCents      int64       `json:"price_cents" db:"price_cents"`
	ServiceFeeCents int64       `json:"service_fee_cents" db:"service_fee_cents"`
	MinGuests       int         `json:"min_guests" db:"min_guests"`
	MaxGuests       int         `json:"max_guests" db:"max_guests"`
	Status          EventStatus `json:"status" db:"status"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// TotalCents is the full guest-facing charge for one slot
func (e *Event) TotalCents() int64 {
	return e.PriceCents + e.ServiceFeeCents
}

// Payment represents one guest's authorization/capture for one event.
// Rows are never deleted; terminal states are kept for audit.
type Payment struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	EventID         uuid.UUID     `json:"event_id" db:"event_id"`
	GuestName       string        `json:"guest_name" db:"guest_name"`
	GuestEmail      string        `json:"guest_email" db:"guest_email"`
	AuthRef         *string       `json:"auth_ref" db:"auth_ref"`
	ChargeRef       *string       `json:"charge_ref" db:"charge_ref"`
	AmountCents     int64         `json:"amount_cents" db:"amount_cents"`
	OwnerShareCents int64         `json:"owner_share_cents" db:"owner_share_cents"`
	Status          PaymentStatus `json:"status" db:"status"`
	CancelToken     uuid.UUID     `json:"-" db:"cancel_token"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// WaitingListEntry represents a guest waiting for a slot on a full event
type WaitingListEntry struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	EventID        uuid.UUID  `json:"event_id" db:"event_id"`
	GuestName      string     `json:"guest_name" db:"guest_name"`
	GuestEmail     string     `json:"guest_email" db:"guest_email"`
	Phone          *string    `json:"phone" db:"phone"`
	NotifyWhatsApp bool       `json:"notify_whatsapp" db:"notify_whatsapp"`
	NotifyViber    bool       `json:"notify_viber" db:"notify_viber"`
	NotifiedAt     *time.Time `json:"notified_at" db:"notified_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}
