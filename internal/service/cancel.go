package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Ljo9000/skupi/internal/logger"
	"github.com/Ljo9000/skupi/internal/models"
)

// SelfCancel lets a guest give up their spot using the single-use token from
// their confirmation message. The cancelling marker is taken first so two
// clicks on the same link (or a concurrent sweep) cannot both talk to the
// gateway; unlike the reconciliation paths, losing that race is reported to
// the caller because the guest asked for something that cannot happen twice.
func (s *SettlementService) SelfCancel(ctx context.Context, token uuid.UUID) (*models.SelfCancelResponse, error) {
	payment, err := s.payments.GetByCancelToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to look up cancel token: %w", err)
	}
	if payment == nil {
		return nil, ErrInvalidToken
	}
	if !payment.Status.IsCancellable() {
		return nil, ErrNotCancellable
	}

	event, err := s.events.GetByID(ctx, payment.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	changed, err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentCancelling,
		models.PaymentPending, models.PaymentPaid, models.PaymentCapturing, models.PaymentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to begin cancellation: %w", err)
	}
	if !changed {
		return nil, ErrNotCancellable
	}

	final, err := s.releaseHold(ctx, payment)
	if err != nil {
		// Put the row back where it was so the guest (or a sweep) can
		// retry; parked in cancelling it would match nobody's claim.
		if _, rerr := s.payments.UpdateStatus(ctx, payment.ID, payment.Status, models.PaymentCancelling); rerr != nil {
			logger.WithContext(ctx).Error("Failed to revert payment after release error",
				"payment_id", payment.ID, "error", rerr)
		}
		return nil, fmt.Errorf("gateway release failed: %w", err)
	}

	done, err := s.payments.UpdateStatus(ctx, payment.ID, final, models.PaymentCancelling)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize cancellation: %w", err)
	}
	if !done {
		return nil, ErrNotCancellable
	}

	s.afterTransition(ctx, payment, event, final)
	s.notifier.SelfCancelConfirmed(ctx, payment, event)

	logger.WithContext(ctx).Info("Guest self-cancelled",
		"payment_id", payment.ID, "event_id", payment.EventID, "final_status", final)

	// A spot just opened; the event may have been locked at max, so it is
	// reopened before anyone from the waiting list is invited in.
	if event != nil {
		if _, err := s.events.UpdateStatus(ctx, event.ID, models.EventActive, models.EventConfirmed); err != nil {
			logger.WithContext(ctx).Error("Failed to reopen event",
				"event_id", event.ID, "error", err)
		}
		s.waitlist.PromoteNext(ctx, event)
	}

	resp := &models.SelfCancelResponse{}
	if event != nil {
		resp.EventName = event.Name
		resp.EventSlug = event.Slug
	}
	return resp, nil
}
