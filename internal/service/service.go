package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ljo9000/skupi/internal/external"
	"github.com/Ljo9000/skupi/internal/models"
	"github.com/Ljo9000/skupi/internal/search"
)

// PaymentStore is the persisted payment record with its conditional
// transition primitive. Every mutation is a compare-and-swap; the bool
// result reports whether a row actually changed.
type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByAuthRef(ctx context.Context, authRef string) (*models.Payment, error)
	GetByCancelToken(ctx context.Context, token uuid.UUID) (*models.Payment, error)
	HasActivePayment(ctx context.Context, eventID uuid.UUID, email string) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to models.PaymentStatus, from ...models.PaymentStatus) (bool, error)
	SetAuthRef(ctx context.Context, id uuid.UUID, authRef string) error
	SetChargeRef(ctx context.Context, id uuid.UUID, chargeRef string) error
	CountByEventInStatuses(ctx context.Context, eventID uuid.UUID, statuses []models.PaymentStatus) (int, error)
	ListByEventInStatuses(ctx context.Context, eventID uuid.UUID, statuses []models.PaymentStatus) ([]models.Payment, error)
	ListConfirmedNames(ctx context.Context, eventID uuid.UUID) ([]string, error)
}

// EventStore persists events and their conditional lifecycle transition
type EventStore interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetBySlug(ctx context.Context, slug string) (*models.Event, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to models.EventStatus, from ...models.EventStatus) (bool, error)
	ListDueForSweep(ctx context.Context, now time.Time, limit int) ([]models.Event, error)
}

// WaitlistStore persists waiting list entries
type WaitlistStore interface {
	Create(ctx context.Context, entry *models.WaitingListEntry) error
	IsWaiting(ctx context.Context, eventID uuid.UUID, email string) (bool, error)
	OldestWaiting(ctx context.Context, eventID uuid.UUID) (*models.WaitingListEntry, error)
	MarkNotified(ctx context.Context, id uuid.UUID) (bool, error)
}

// Gateway is the payment gateway operations the settlement machine needs
type Gateway interface {
	Authorize(ctx context.Context, amountCents int64, reference, email, description string) (*external.AuthorizeResponse, error)
	Retrieve(ctx context.Context, authRef string) (*external.AuthorizationDetails, error)
	Capture(ctx context.Context, authRef string, amountCents int64) (string, error)
	Cancel(ctx context.Context, authRef, reason string) error
	Refund(ctx context.Context, chargeRef, reason string) error
}

// Notifier dispatches guest and organizer messages. Implementations are
// fire-and-forget; settlement never depends on delivery.
type Notifier interface {
	PaymentConfirmed(ctx context.Context, payment *models.Payment, event *models.Event)
	PaymentCancelled(ctx context.Context, payment *models.Payment, event *models.Event)
	SelfCancelConfirmed(ctx context.Context, payment *models.Payment, event *models.Event)
	EventFull(ctx context.Context, organizerEmail string, event *models.Event)
	SpotAvailable(ctx context.Context, entry *models.WaitingListEntry, event *models.Event)
}

// Publisher emits domain events to the message bus
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// ViewCache invalidates the cached public event view after transitions
type ViewCache interface {
	InvalidateEventView(ctx context.Context, slug string) error
}

// Indexer maintains the organizer-dashboard search index
type Indexer interface {
	IndexEvent(ctx context.Context, doc *search.EventDocument) error
	Search(ctx context.Context, organizerID, query string, page, pageSize int) ([]search.EventDocument, error)
}

type Services struct {
	Events     *EventService
	Settlement *SettlementService
	Waitlist   *WaitlistService
}

func NewServices(
	payments PaymentStore,
	events EventStore,
	waitlist WaitlistStore,
	gateway Gateway,
	notifier Notifier,
	publisher Publisher,
	cache ViewCache,
	indexer Indexer,
) *Services {
	waitlistService := NewWaitlistService(waitlist, events, payments, notifier, publisher)
	settlementService := NewSettlementService(payments, events, gateway, notifier, publisher, cache, waitlistService)
	eventService := NewEventService(events, payments, indexer)

	return &Services{
		Events:     eventService,
		Settlement: settlementService,
		Waitlist:   waitlistService,
	}
}
