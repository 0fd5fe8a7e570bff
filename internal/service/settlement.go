package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Ljo9000/skupi/internal/external"
	"github.com/Ljo9000/skupi/internal/logger"
	"github.com/Ljo9000/skupi/internal/metrics"
	"github.com/Ljo9000/skupi/internal/models"
)

// SettlementService owns the payment state machine. Each transition is a
// conditional store update; the fast path, the gateway webhook, the deadline
// sweeps and self-cancel are all just callers of the same transition
// functions. Whoever actually changes the row fires the side effects, a
// losing racer gets a no-op and stays silent.
type SettlementService struct {
	payments  PaymentStore
	events    EventStore
	gateway   Gateway
	notifier  Notifier
	publisher Publisher
	cache     ViewCache
	waitlist  *WaitlistService
}

func NewSettlementService(
	payments PaymentStore,
	events EventStore,
	gateway Gateway,
	notifier Notifier,
	publisher Publisher,
	cache ViewCache,
	waitlist *WaitlistService,
) *SettlementService {
	return &SettlementService{
		payments:  payments,
		events:    events,
		gateway:   gateway,
		notifier:  notifier,
		publisher: publisher,
		cache:     cache,
		waitlist:  waitlist,
	}
}

// InitiateCheckout validates the event, creates a pending payment and asks
// the gateway for a manual-capture hold. Conflicts are rejected with a
// specific sentinel before anything is persisted.
func (s *SettlementService) InitiateCheckout(ctx context.Context, req *models.CheckoutRequest) (*models.CheckoutResponse, error) {
	event, err := s.events.GetByID(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if event == nil || event.Status != models.EventActive {
		return nil, ErrEventNotActive
	}

	if time.Now().After(event.PayDeadline) {
		return nil, ErrDeadlinePassed
	}

	count, err := s.payments.CountByEventInStatuses(ctx, event.ID, models.SettledStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to count settled payments: %w", err)
	}
	if count >= event.MaxGuests {
		return nil, ErrEventFull
	}

	active, err := s.payments.HasActivePayment(ctx, event.ID, req.GuestEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate guest: %w", err)
	}
	if active {
		return nil, ErrDuplicateGuest
	}

	payment := &models.Payment{
		EventID:         event.ID,
		GuestName:       req.GuestName,
		GuestEmail:      req.GuestEmail,
		AmountCents:     event.TotalCents(),
		OwnerShareCents: event.PriceCents,
		Status:          models.PaymentPending,
		CancelToken:     uuid.New(),
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		// Two checkouts from the same guest can pass the pre-check
		// together; the partial unique index catches the loser.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicateGuest
		}
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	auth, err := s.gateway.Authorize(ctx, payment.AmountCents, payment.ID.String(), req.GuestEmail, event.Name)
	if err != nil {
		metrics.GatewayCalls.WithLabelValues("authorize", "error").Inc()
		// The guest never got a client secret, so this record can't
		// progress; retire it and let the guest start over.
		if _, ferr := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentFailed, models.PaymentPending); ferr != nil {
			logger.WithContext(ctx).Error("Failed to retire payment after authorize error",
				"payment_id", payment.ID, "error", ferr)
		}
		return nil, fmt.Errorf("gateway authorization failed: %w", err)
	}
	metrics.GatewayCalls.WithLabelValues("authorize", "ok").Inc()

	if err := s.payments.SetAuthRef(ctx, payment.ID, auth.AuthRef); err != nil {
		return nil, fmt.Errorf("failed to store authorization reference: %w", err)
	}

	return &models.CheckoutResponse{
		PaymentID:    payment.ID,
		AuthRef:      auth.AuthRef,
		ClientSecret: auth.ClientSecret,
		AmountCents:  payment.AmountCents,
	}, nil
}

// FastPathConfirm is the client-reported completion signal. The gateway is
// asked for the authoritative status first; the local transition is the same
// one the webhook applies, so whichever arrives second is a no-op.
func (s *SettlementService) FastPathConfirm(ctx context.Context, authRef string) error {
	payment, err := s.payments.GetByAuthRef(ctx, authRef)
	if err != nil {
		return fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return ErrUnknownAuthRef
	}

	details, err := s.gateway.Retrieve(ctx, authRef)
	if err != nil {
		return fmt.Errorf("failed to verify authorization with gateway: %w", err)
	}

	switch details.Status {
	case external.AuthStatusRequiresCapture, external.AuthStatusProcessing:
		return s.MarkPaid(ctx, authRef)
	case external.AuthStatusCaptured:
		return s.Confirm(ctx, authRef, details.ChargeRef)
	default:
		return ErrAuthNotComplete
	}
}

// MarkPaid applies pending -> paid: the gateway placed a hold. Fired by the
// fast path and by the webhook, in either order.
func (s *SettlementService) MarkPaid(ctx context.Context, authRef string) error {
	payment, err := s.payments.GetByAuthRef(ctx, authRef)
	if err != nil {
		return fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return ErrUnknownAuthRef
	}

	changed, err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentPaid, models.PaymentPending)
	if err != nil {
		return fmt.Errorf("failed to mark payment paid: %w", err)
	}
	if !changed {
		// Already applied by the racing handler; reconciliation no-ops
		// are successes.
		return nil
	}

	event, err := s.events.GetByID(ctx, payment.EventID)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}

	s.afterTransition(ctx, payment, event, models.PaymentPaid)
	s.notifier.PaymentConfirmed(ctx, payment, event)
	s.checkFullness(ctx, event)

	return nil
}

// MarkFailed applies pending -> failed after a declined authorization
func (s *SettlementService) MarkFailed(ctx context.Context, authRef string) error {
	payment, err := s.payments.GetByAuthRef(ctx, authRef)
	if err != nil {
		return fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return ErrUnknownAuthRef
	}

	changed, err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentFailed, models.PaymentPending)
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	if changed {
		s.afterTransition(ctx, payment, nil, models.PaymentFailed)
	}

	return nil
}

// Confirm applies {pending,paid,capturing} -> confirmed after a capture.
// The reservation message is sent here only when the payment skipped the
// paid state entirely; otherwise MarkPaid already sent it. Which of the two
// happened is decided by ordered conditional updates, never by a status read
// taken before the update: a racing MarkPaid between a read and a combined
// update would make both callers believe they owned the notification.
func (s *SettlementService) Confirm(ctx context.Context, authRef, chargeRef string) error {
	payment, err := s.payments.GetByAuthRef(ctx, authRef)
	if err != nil {
		return fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return ErrUnknownAuthRef
	}

	// Capture of an existing hold first; the guest heard at MarkPaid.
	notify := false
	changed, err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentConfirmed,
		models.PaymentPaid, models.PaymentCapturing)
	if err != nil {
		return fmt.Errorf("failed to confirm payment: %w", err)
	}
	if !changed {
		// Capture signal arrived before the authorization one: the move
		// out of pending is ours, and so is the reservation message.
		changed, err = s.payments.UpdateStatus(ctx, payment.ID, models.PaymentConfirmed, models.PaymentPending)
		if err != nil {
			return fmt.Errorf("failed to confirm payment: %w", err)
		}
		notify = changed
	}
	if !changed {
		// MarkPaid slipped in between the two updates; the row is paid
		// now and the silent path applies after all.
		changed, err = s.payments.UpdateStatus(ctx, payment.ID, models.PaymentConfirmed,
			models.PaymentPaid, models.PaymentCapturing)
		if err != nil {
			return fmt.Errorf("failed to confirm payment: %w", err)
		}
	}
	if !changed {
		return nil
	}

	if chargeRef != "" {
		if err := s.payments.SetChargeRef(ctx, payment.ID, chargeRef); err != nil {
			logger.WithContext(ctx).Error("Failed to store charge reference",
				"payment_id", payment.ID, "error", err)
		}
	}

	event, err := s.events.GetByID(ctx, payment.EventID)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}

	s.afterTransition(ctx, payment, event, models.PaymentConfirmed)
	if notify {
		s.notifier.PaymentConfirmed(ctx, payment, event)
	}
	s.checkFullness(ctx, event)

	return nil
}

// CancelFromGateway applies a gateway-reported cancellation. The hold is
// already gone on the gateway side, so only the local row and the guest
// message are left to reconcile.
func (s *SettlementService) CancelFromGateway(ctx context.Context, authRef string) error {
	payment, err := s.payments.GetByAuthRef(ctx, authRef)
	if err != nil {
		return fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return ErrUnknownAuthRef
	}

	changed, err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentCancelled,
		models.NonTerminalStatuses...)
	if err != nil {
		return fmt.Errorf("failed to cancel payment: %w", err)
	}
	if !changed {
		return nil
	}

	event, err := s.events.GetByID(ctx, payment.EventID)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}

	s.afterTransition(ctx, payment, event, models.PaymentCancelled)
	s.notifier.PaymentCancelled(ctx, payment, event)

	return nil
}

// HandleWebhook routes a verified gateway notification to the matching
// transition. Unknown event types and unknown references are logged and
// acknowledged, never errors: the gateway retries on failure and an event
// we cannot use must not be retried forever.
func (s *SettlementService) HandleWebhook(ctx context.Context, event *models.WebhookEvent) error {
	var err error

	switch event.Type {
	case "payment.authorized":
		err = s.MarkPaid(ctx, event.AuthRef)
	case "payment.captured":
		err = s.Confirm(ctx, event.AuthRef, event.ChargeRef)
	case "payment.failed":
		err = s.MarkFailed(ctx, event.AuthRef)
	case "payment.cancelled":
		err = s.CancelFromGateway(ctx, event.AuthRef)
	default:
		logger.WithContext(ctx).Info("Ignoring unhandled webhook event type",
			"type", event.Type, "auth_ref", event.AuthRef)
		return nil
	}

	if errors.Is(err, ErrUnknownAuthRef) {
		logger.WithContext(ctx).Warn("Webhook references unknown authorization",
			"type", event.Type, "auth_ref", event.AuthRef)
		return nil
	}

	return err
}

// checkFullness re-derives the settled count and locks the event when the
// maximum is reached. The active -> confirmed transition can only succeed
// once, so the organizer notification fires exactly once no matter how many
// handlers arrive here together.
func (s *SettlementService) checkFullness(ctx context.Context, event *models.Event) {
	if event == nil || event.Status != models.EventActive {
		return
	}

	count, err := s.payments.CountByEventInStatuses(ctx, event.ID, models.SettledStatuses)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to count settled payments",
			"event_id", event.ID, "error", err)
		return
	}
	if count < event.MaxGuests {
		return
	}

	changed, err := s.events.UpdateStatus(ctx, event.ID, models.EventConfirmed, models.EventActive)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to confirm event",
			"event_id", event.ID, "error", err)
		return
	}
	if !changed {
		return
	}

	logger.WithContext(ctx).Info("Event locked, maximum reached",
		"event_id", event.ID, "slug", event.Slug, "settled", count)

	s.notifier.EventFull(ctx, event.OrganizerEmail, event)
	s.publish(ctx, models.SubjectEventConfirmed, models.EventLifecycleEvent{
		EventID:   event.ID,
		Slug:      event.Slug,
		Status:    string(models.EventConfirmed),
		Timestamp: time.Now(),
	})
}

// afterTransition fires the side effects every applied transition shares
func (s *SettlementService) afterTransition(ctx context.Context, payment *models.Payment, event *models.Event, to models.PaymentStatus) {
	metrics.PaymentTransitions.WithLabelValues(string(to)).Inc()

	authRef := ""
	if payment.AuthRef != nil {
		authRef = *payment.AuthRef
	}

	s.publish(ctx, subjectFor(to), models.PaymentEvent{
		PaymentID: payment.ID,
		EventID:   payment.EventID,
		AuthRef:   authRef,
		Status:    string(to),
		Timestamp: time.Now(),
	})

	if s.cache != nil && event != nil {
		if err := s.cache.InvalidateEventView(ctx, event.Slug); err != nil {
			logger.WithContext(ctx).Warn("Failed to invalidate event view cache",
				"slug", event.Slug, "error", err)
		}
	}
}

func (s *SettlementService) publish(ctx context.Context, subject string, data interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(subject, data); err != nil {
		logger.WithContext(ctx).Error("Failed to publish domain event",
			"subject", subject, "error", err)
	}
}

func subjectFor(status models.PaymentStatus) string {
	switch status {
	case models.PaymentPaid:
		return models.SubjectPaymentAuthorized
	case models.PaymentConfirmed:
		return models.SubjectPaymentCaptured
	case models.PaymentFailed:
		return models.SubjectPaymentFailed
	default:
		return models.SubjectPaymentCancelled
	}
}
