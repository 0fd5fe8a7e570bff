package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/Ljo9000/skupi/internal/fees"
	"github.com/Ljo9000/skupi/internal/logger"
	"github.com/Ljo9000/skupi/internal/models"
	"github.com/Ljo9000/skupi/internal/search"
)

const (
	slugAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	slugLength   = 6
)

// EventService handles event creation and the public booking view.
type EventService struct {
	events   EventStore
	payments PaymentStore
	indexer  Indexer
}

func NewEventService(events EventStore, payments PaymentStore, indexer Indexer) *EventService {
	return &EventService{
		events:   events,
		payments: payments,
		indexer:  indexer,
	}
}

// Create validates and persists a new event, pricing it with the current
// fee schedule and assigning a short shareable slug.
func (s *EventService) Create(ctx context.Context, req *models.CreateEventRequest) (*models.CreateEventResponse, error) {
	if verr := validateCreateEvent(req); verr != nil {
		return nil, verr
	}

	quote := fees.Quote(req.PriceEuros)

	slug, err := s.newSlug(ctx)
	if err != nil {
		return nil, err
	}

	event := &models.Event{
		Slug:            slug,
		OrganizerID:     req.OrganizerID,
		OrganizerEmail:  req.OrganizerEmail,
		Name:            req.Name,
		Description:     req.Description,
		StartsAt:        req.StartsAt,
		PayDeadline:     req.PayDeadline,
		PriceCents:      quote.OwnerCents,
		ServiceFeeCents: quote.CommissionCents + quote.SurchargeCents,
		MinGuests:       req.MinGuests,
		MaxGuests:       req.MaxGuests,
		Status:          models.EventActive,
	}

	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	logger.WithContext(ctx).Info("Event created",
		"event_id", event.ID, "slug", event.Slug, "organizer_id", event.OrganizerID)

	if s.indexer != nil {
		doc := &search.EventDocument{
			ID:          event.ID.String(),
			Slug:        event.Slug,
			OrganizerID: event.OrganizerID.String(),
			Name:        event.Name,
			StartsAt:    event.StartsAt,
			Status:      string(event.Status),
			CreatedAt:   event.CreatedAt,
		}
		if event.Description != nil {
			doc.Description = *event.Description
		}
		if err := s.indexer.IndexEvent(ctx, doc); err != nil {
			logger.WithContext(ctx).Warn("Failed to index event",
				"event_id", event.ID, "error", err)
		}
	}

	return &models.CreateEventResponse{ID: event.ID, Slug: event.Slug}, nil
}

// GetView builds the public representation of an event for its booking
// link. The settled count is derived from payments on every call.
func (s *EventService) GetView(ctx context.Context, slug string) (*models.EventView, error) {
	event, err := s.events.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if event == nil {
		return nil, nil
	}

	count, err := s.payments.CountByEventInStatuses(ctx, event.ID, models.SettledStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to count settled payments: %w", err)
	}

	names, err := s.payments.ListConfirmedNames(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	return &models.EventView{
		Slug:            event.Slug,
		Name:            event.Name,
		Description:     event.Description,
		StartsAt:        event.StartsAt,
		PayDeadline:     event.PayDeadline,
		TotalCents:      event.TotalCents(),
		MinGuests:       event.MinGuests,
		MaxGuests:       event.MaxGuests,
		Status:          string(event.Status),
		SettledCount:    count,
		Full:            count >= event.MaxGuests,
		DeadlinePassed:  time.Now().After(event.PayDeadline),
		ParticipantName: names,
	}, nil
}

// GetBySlug returns the raw event record
func (s *EventService) GetBySlug(ctx context.Context, slug string) (*models.Event, error) {
	return s.events.GetBySlug(ctx, slug)
}

// GetByID returns the raw event record
func (s *EventService) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return s.events.GetByID(ctx, id)
}

// Search queries the organizer dashboard index
func (s *EventService) Search(ctx context.Context, organizerID, query string, page, pageSize int) ([]search.EventDocument, error) {
	if s.indexer == nil {
		return nil, fmt.Errorf("search is not configured")
	}
	return s.indexer.Search(ctx, organizerID, query, page, pageSize)
}

// newSlug generates a short random slug, retrying once on the unlikely
// collision.
func (s *EventService) newSlug(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		slug, err := gonanoid.Generate(slugAlphabet, slugLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate slug: %w", err)
		}
		exists, err := s.events.SlugExists(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !exists {
			return slug, nil
		}
	}
	return "", fmt.Errorf("failed to allocate a unique slug")
}

func validateCreateEvent(req *models.CreateEventRequest) error {
	verr := &ValidationError{Fields: map[string]string{}}

	if req.PriceEuros <= 0 {
		verr.Fields["price"] = "must be greater than zero"
	}
	if req.MinGuests < 2 {
		verr.Fields["min_guests"] = "must be at least 2"
	}
	if req.MaxGuests < req.MinGuests {
		verr.Fields["max_guests"] = "must be greater than or equal to min_guests"
	}
	now := time.Now()
	if !req.StartsAt.After(now) {
		verr.Fields["starts_at"] = "must be in the future"
	}
	if !req.PayDeadline.After(now) {
		verr.Fields["pay_deadline"] = "must be in the future"
	}
	if !req.PayDeadline.Before(req.StartsAt) {
		verr.Fields["pay_deadline"] = "must be before starts_at"
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}
