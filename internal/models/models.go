package models

import (
	"time"

	"github.com/google/uuid"
)

// CreateEventRequest - organizer publishes a new event
type CreateEventRequest struct {
	OrganizerID    uuid.UUID `json:"organizer_id" binding:"required"`
	OrganizerEmail string    `json:"organizer_email" binding:"required,email"`
	Name           string    `json:"name" binding:"required,min=3"`
	Description    *string   `json:"description,omitempty"`
	StartsAt       time.Time `json:"starts_at" binding:"required"`
	PayDeadline    time.Time `json:"pay_deadline" binding:"required"`
	PriceEuros     float64   `json:"price" binding:"required"`
	MinGuests      int       `json:"min_guests" binding:"required"`
	MaxGuests      int       `json:"max_guests" binding:"required"`
}

// CreateEventResponse carries the identifiers a freshly created event
type CreateEventResponse struct {
	ID   uuid.UUID `json:"id"`
	Slug string    `json:"slug"`
}

// EventView is the public representation served for a booking link
type EventView struct {
	Slug            string    `json:"slug"`
	Name            string    `json:"name"`
	Description     *string   `json:"description,omitempty"`
	StartsAt        time.Time `json:"starts_at"`
	PayDeadline     time.Time `json:"pay_deadline"`
	TotalCents      int64     `json:"total_cents"`
	MinGuests       int       `json:"min_guests"`
	MaxGuests       int       `json:"max_guests"`
	Status          string    `json:"status"`
	SettledCount    int       `json:"settled_count"`
	Full            bool      `json:"full"`
	DeadlinePassed  bool      `json:"deadline_passed"`
	ParticipantName []string  `json:"participants"`
}

// CheckoutRequest - a guest starts paying for a slot
type CheckoutRequest struct {
	EventID    uuid.UUID `json:"event_id" binding:"required"`
	GuestName  string    `json:"guest_name" binding:"required"`
	GuestEmail string    `json:"guest_email" binding:"required,email"`
}

// CheckoutResponse returns what the guest's client needs to complete
// the authorization with the gateway
type CheckoutResponse struct {
	PaymentID    uuid.UUID `json:"payment_id"`
	AuthRef      string    `json:"authorization_reference"`
	ClientSecret string    `json:"client_secret"`
	AmountCents  int64     `json:"amount_cents"`
}

// FastPathConfirmRequest - the guest's client reports a completed authorization
type FastPathConfirmRequest struct {
	AuthRef string `json:"authorization_reference" binding:"required"`
}

// SelfCancelRequest - a guest cancels via the single-use token from their email
type SelfCancelRequest struct {
	Token string `json:"token" binding:"required"`
}

// SelfCancelResponse names the event the guest left
type SelfCancelResponse struct {
	EventName string `json:"event_name"`
	EventSlug string `json:"event_slug"`
}

// JoinWaitlistRequest - a guest queues for a full event
type JoinWaitlistRequest struct {
	EventID        uuid.UUID `json:"event_id" binding:"required"`
	GuestName      string    `json:"guest_name" binding:"required"`
	GuestEmail     string    `json:"guest_email" binding:"required,email"`
	Phone          *string   `json:"phone,omitempty"`
	NotifyWhatsApp bool      `json:"notify_whatsapp"`
	NotifyViber    bool      `json:"notify_viber"`
}

// SweepRequest - deadline action for one event, invoked by the scheduler
type SweepRequest struct {
	EventID uuid.UUID `json:"event_id" binding:"required"`
}

// SweepResponse summarizes what a sweep pass changed
type SweepResponse struct {
	Captured  int `json:"captured,omitempty"`
	Cancelled int `json:"cancelled,omitempty"`
	Failed    int `json:"failed,omitempty"`
}

// WebhookEvent is the gateway's asynchronous notification payload
type WebhookEvent struct {
	Type      string `json:"type"`
	AuthRef   string `json:"authorization_reference"`
	ChargeRef string `json:"charge_reference,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
}
