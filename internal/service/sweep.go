package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Ljo9000/skupi/internal/external"
	"github.com/Ljo9000/skupi/internal/logger"
	"github.com/Ljo9000/skupi/internal/metrics"
	"github.com/Ljo9000/skupi/internal/models"
)

// SweepDeadlines finds active events whose payment deadline has passed and
// settles each one: capture every hold when the minimum was reached, release
// every hold otherwise. Called by the scheduler; safe to run concurrently
// with itself because every step is a conditional update.
func (s *SettlementService) SweepDeadlines(ctx context.Context, limit int) (*models.SweepResponse, error) {
	events, err := s.events.ListDueForSweep(ctx, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due events: %w", err)
	}

	total := &models.SweepResponse{}
	for i := range events {
		result, err := s.SettleDeadline(ctx, &events[i])
		if err != nil {
			logger.WithContext(ctx).Error("Deadline settlement failed",
				"event_id", events[i].ID, "slug", events[i].Slug, "error", err)
			continue
		}
		total.Captured += result.Captured
		total.Cancelled += result.Cancelled
		total.Failed += result.Failed
	}

	return total, nil
}

// SettleDeadline decides one event's fate at its deadline. The settled count
// is derived fresh here; a guest who paid between scheduling and execution
// still counts.
func (s *SettlementService) SettleDeadline(ctx context.Context, event *models.Event) (*models.SweepResponse, error) {
	count, err := s.payments.CountByEventInStatuses(ctx, event.ID, models.SettledStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to count settled payments: %w", err)
	}

	if count >= event.MinGuests {
		return s.deadlineCapture(ctx, event)
	}
	return s.deadlineCancel(ctx, event)
}

// deadlineCapture charges every held payment of a viable event, then moves
// the event to confirmed. The capturing state fences out concurrent sweeps:
// only the caller whose paid -> capturing update changed the row talks to
// the gateway for that payment.
func (s *SettlementService) deadlineCapture(ctx context.Context, event *models.Event) (*models.SweepResponse, error) {
	result := &models.SweepResponse{}

	payments, err := s.payments.ListByEventInStatuses(ctx, event.ID, []models.PaymentStatus{models.PaymentPaid})
	if err != nil {
		return nil, fmt.Errorf("failed to list paid payments: %w", err)
	}

	for i := range payments {
		payment := &payments[i]

		changed, err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentCapturing, models.PaymentPaid)
		if err != nil {
			return result, fmt.Errorf("failed to begin capture for payment %s: %w", payment.ID, err)
		}
		if !changed {
			continue
		}

		if payment.AuthRef == nil {
			// Should never happen for a paid payment; skip rather
			// than wedge the whole event.
			logger.WithContext(ctx).Error("Paid payment has no authorization reference",
				"payment_id", payment.ID)
			continue
		}

		chargeRef, err := s.gateway.Capture(ctx, *payment.AuthRef, payment.AmountCents)
		if err != nil {
			metrics.GatewayCalls.WithLabelValues("capture", "error").Inc()
			result.Failed++
			// Put the payment back so the next sweep retries the
			// capture against a fresh gateway state.
			if _, rerr := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentPaid, models.PaymentCapturing); rerr != nil {
				logger.WithContext(ctx).Error("Failed to revert payment after capture error",
					"payment_id", payment.ID, "error", rerr)
			}
			logger.WithContext(ctx).Error("Gateway capture failed",
				"payment_id", payment.ID, "auth_ref", *payment.AuthRef, "error", err)
			continue
		}
		metrics.GatewayCalls.WithLabelValues("capture", "ok").Inc()

		if chargeRef != "" {
			if err := s.payments.SetChargeRef(ctx, payment.ID, chargeRef); err != nil {
				logger.WithContext(ctx).Error("Failed to store charge reference",
					"payment_id", payment.ID, "error", err)
			}
		}

		confirmed, err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentConfirmed, models.PaymentCapturing)
		if err != nil {
			return result, fmt.Errorf("failed to confirm payment %s: %w", payment.ID, err)
		}
		if confirmed {
			result.Captured++
			s.afterTransition(ctx, payment, event, models.PaymentConfirmed)
		}
	}

	// Lock the event only after the captures ran; a capture failure leaves
	// it active so the next sweep picks it up again.
	if result.Failed == 0 {
		changed, err := s.events.UpdateStatus(ctx, event.ID, models.EventConfirmed, models.EventActive)
		if err != nil {
			return result, fmt.Errorf("failed to confirm event: %w", err)
		}
		if changed {
			logger.WithContext(ctx).Info("Event confirmed at deadline",
				"event_id", event.ID, "slug", event.Slug, "captured", result.Captured)
			s.publish(ctx, models.SubjectEventConfirmed, models.EventLifecycleEvent{
				EventID:   event.ID,
				Slug:      event.Slug,
				Status:    string(models.EventConfirmed),
				Timestamp: time.Now(),
			})
		}
	}

	return result, nil
}

// deadlineCancel releases every hold of an event that missed its minimum and
// cancels the event. No waiting list promotion happens here: the event is
// dead, there is no spot to offer.
func (s *SettlementService) deadlineCancel(ctx context.Context, event *models.Event) (*models.SweepResponse, error) {
	result := &models.SweepResponse{}

	payments, err := s.payments.ListByEventInStatuses(ctx, event.ID, models.NonTerminalStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to list open payments: %w", err)
	}

	for i := range payments {
		payment := &payments[i]

		changed, err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentCancelling,
			models.PaymentPending, models.PaymentPaid, models.PaymentCapturing, models.PaymentConfirmed)
		if err != nil {
			return result, fmt.Errorf("failed to begin cancellation for payment %s: %w", payment.ID, err)
		}
		if !changed {
			continue
		}

		final, err := s.releaseHold(ctx, payment)
		if err != nil {
			result.Failed++
			// Put the payment back so the next sweep can claim and
			// retry the release; a row parked in cancelling would
			// never match the claim again.
			if _, rerr := s.payments.UpdateStatus(ctx, payment.ID, payment.Status, models.PaymentCancelling); rerr != nil {
				logger.WithContext(ctx).Error("Failed to revert payment after release error",
					"payment_id", payment.ID, "error", rerr)
			}
			logger.WithContext(ctx).Error("Gateway release failed",
				"payment_id", payment.ID, "error", err)
			continue
		}

		done, err := s.payments.UpdateStatus(ctx, payment.ID, final, models.PaymentCancelling)
		if err != nil {
			return result, fmt.Errorf("failed to finalize cancellation for payment %s: %w", payment.ID, err)
		}
		if done {
			result.Cancelled++
			s.afterTransition(ctx, payment, event, final)
			s.notifier.PaymentCancelled(ctx, payment, event)
		}
	}

	if result.Failed == 0 {
		changed, err := s.events.UpdateStatus(ctx, event.ID, models.EventCancelled, models.EventActive)
		if err != nil {
			return result, fmt.Errorf("failed to cancel event: %w", err)
		}
		if changed {
			logger.WithContext(ctx).Info("Event cancelled at deadline, minimum not reached",
				"event_id", event.ID, "slug", event.Slug, "released", result.Cancelled)
			s.publish(ctx, models.SubjectEventCancelled, models.EventLifecycleEvent{
				EventID:   event.ID,
				Slug:      event.Slug,
				Status:    string(models.EventCancelled),
				Timestamp: time.Now(),
			})
		}
	}

	return result, nil
}

// CancelEvent is the organizer pulling the plug before the deadline. It runs
// the same release machinery the deadline sweep uses and then closes the
// event regardless of how many guests had paid.
func (s *SettlementService) CancelEvent(ctx context.Context, event *models.Event) (*models.SweepResponse, error) {
	if event.Status != models.EventActive && event.Status != models.EventConfirmed {
		return nil, ErrNotCancellable
	}
	result, err := s.deadlineCancel(ctx, event)
	if err != nil {
		return nil, err
	}
	if result.Failed == 0 && event.Status == models.EventConfirmed {
		if _, err := s.events.UpdateStatus(ctx, event.ID, models.EventCancelled, models.EventConfirmed); err != nil {
			return result, fmt.Errorf("failed to cancel event: %w", err)
		}
	}
	return result, nil
}

// releaseHold undoes a payment on the gateway side. What was merely held is
// released, what was already charged is refunded; the returned status says
// which happened so the local row records the truth.
func (s *SettlementService) releaseHold(ctx context.Context, payment *models.Payment) (models.PaymentStatus, error) {
	if payment.AuthRef == nil {
		// Authorization never completed, nothing held at the gateway.
		return models.PaymentCancelled, nil
	}

	details, err := s.gateway.Retrieve(ctx, *payment.AuthRef)
	if err != nil {
		metrics.GatewayCalls.WithLabelValues("retrieve", "error").Inc()
		return "", fmt.Errorf("failed to retrieve authorization: %w", err)
	}
	metrics.GatewayCalls.WithLabelValues("retrieve", "ok").Inc()

	switch details.Status {
	case external.AuthStatusCaptured:
		chargeRef := details.ChargeRef
		if chargeRef == "" && payment.ChargeRef != nil {
			chargeRef = *payment.ChargeRef
		}
		if err := s.gateway.Refund(ctx, chargeRef, "event_cancelled"); err != nil {
			metrics.GatewayCalls.WithLabelValues("refund", "error").Inc()
			return "", fmt.Errorf("failed to refund charge: %w", err)
		}
		metrics.GatewayCalls.WithLabelValues("refund", "ok").Inc()
		return models.PaymentRefunded, nil
	case external.AuthStatusCancelled, external.AuthStatusFailed:
		// Gateway already let go of the money.
		return models.PaymentCancelled, nil
	default:
		if err := s.gateway.Cancel(ctx, *payment.AuthRef, "event_cancelled"); err != nil {
			metrics.GatewayCalls.WithLabelValues("cancel", "error").Inc()
			return "", fmt.Errorf("failed to release hold: %w", err)
		}
		metrics.GatewayCalls.WithLabelValues("cancel", "ok").Inc()
		return models.PaymentCancelled, nil
	}
}
