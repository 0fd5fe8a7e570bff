package models

import (
	"time"

	"github.com/google/uuid"
)

// NATS subjects
const (
	SubjectPaymentAuthorized = "payment.authorized"
	SubjectPaymentCaptured   = "payment.captured"
	SubjectPaymentFailed     = "payment.failed"
	SubjectPaymentCancelled  = "payment.cancelled"
	SubjectEventConfirmed    = "event.confirmed"
	SubjectEventCancelled    = "event.cancelled"
	SubjectWaitlistPromoted  = "waitlist.promoted"
)

// PaymentEvent is published on every payment transition that changed a row
type PaymentEvent struct {
	PaymentID uuid.UUID `json:"payment_id"`
	EventID   uuid.UUID `json:"event_id"`
	AuthRef   string    `json:"auth_ref,omitempty"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// EventLifecycleEvent is published when an event reaches a terminal status
type EventLifecycleEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	Slug      string    `json:"slug"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// WaitlistPromotedEvent is published when a waiting guest is offered a slot
type WaitlistPromotedEvent struct {
	EntryID   uuid.UUID `json:"entry_id"`
	EventID   uuid.UUID `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
}
