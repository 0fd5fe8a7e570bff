package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Ljo9000/skupi/internal/logger"
	"github.com/Ljo9000/skupi/internal/metrics"
	"github.com/Ljo9000/skupi/internal/models"
)

// WaitlistService keeps the queue for full events and hands out freed spots
// in arrival order.
type WaitlistService struct {
	waitlist  WaitlistStore
	events    EventStore
	payments  PaymentStore
	notifier  Notifier
	publisher Publisher
}

func NewWaitlistService(
	waitlist WaitlistStore,
	events EventStore,
	payments PaymentStore,
	notifier Notifier,
	publisher Publisher,
) *WaitlistService {
	return &WaitlistService{
		waitlist:  waitlist,
		events:    events,
		payments:  payments,
		notifier:  notifier,
		publisher: publisher,
	}
}

// Join queues a guest for an event that has no room left. Joining an event
// with open spots is rejected; the guest should check out instead.
func (s *WaitlistService) Join(ctx context.Context, req *models.JoinWaitlistRequest) (*models.WaitingListEntry, error) {
	event, err := s.events.GetByID(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if event == nil {
		return nil, ErrEventNotActive
	}
	if event.Status != models.EventActive && event.Status != models.EventConfirmed {
		return nil, ErrEventNotActive
	}

	if time.Now().After(event.PayDeadline) {
		return nil, ErrDeadlinePassed
	}

	count, err := s.payments.CountByEventInStatuses(ctx, event.ID, models.SettledStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to count settled payments: %w", err)
	}
	if count < event.MaxGuests {
		return nil, ErrEventNotFull
	}

	waiting, err := s.waitlist.IsWaiting(ctx, event.ID, req.GuestEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to check waiting list: %w", err)
	}
	if waiting {
		return nil, ErrDuplicateEntry
	}

	entry := &models.WaitingListEntry{
		EventID:        event.ID,
		GuestName:      req.GuestName,
		GuestEmail:     req.GuestEmail,
		Phone:          req.Phone,
		NotifyWhatsApp: req.NotifyWhatsApp,
		NotifyViber:    req.NotifyViber,
	}

	if err := s.waitlist.Create(ctx, entry); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicateEntry
		}
		return nil, fmt.Errorf("failed to create waiting list entry: %w", err)
	}

	logger.WithContext(ctx).Info("Guest joined waiting list",
		"event_id", event.ID, "entry_id", entry.ID)

	return entry, nil
}

// PromoteNext offers a freed spot to the oldest un-notified waiting entry.
// Marking the entry notified is the conditional step; whoever flips
// notified_at owns the dispatch, so a spot is never offered to the same
// entry twice and two concurrent cancellations promote two different
// entries. Failures are logged, never returned: promotion is a best-effort
// courtesy and must not undo the cancellation that triggered it.
func (s *WaitlistService) PromoteNext(ctx context.Context, event *models.Event) {
	for {
		entry, err := s.waitlist.OldestWaiting(ctx, event.ID)
		if err != nil {
			logger.WithContext(ctx).Error("Failed to read waiting list",
				"event_id", event.ID, "error", err)
			return
		}
		if entry == nil {
			return
		}

		claimed, err := s.waitlist.MarkNotified(ctx, entry.ID)
		if err != nil {
			logger.WithContext(ctx).Error("Failed to claim waiting list entry",
				"entry_id", entry.ID, "error", err)
			return
		}
		if !claimed {
			// A concurrent promotion took this entry; try the next.
			continue
		}

		metrics.WaitlistPromotions.Inc()
		s.notifier.SpotAvailable(ctx, entry, event)

		if s.publisher != nil {
			if err := s.publisher.Publish(models.SubjectWaitlistPromoted, models.WaitlistPromotedEvent{
				EntryID:   entry.ID,
				EventID:   event.ID,
				Timestamp: time.Now(),
			}); err != nil {
				logger.WithContext(ctx).Error("Failed to publish promotion event",
					"entry_id", entry.ID, "error", err)
			}
		}

		logger.WithContext(ctx).Info("Waiting list entry promoted",
			"entry_id", entry.ID, "event_id", event.ID)
		return
	}
}
