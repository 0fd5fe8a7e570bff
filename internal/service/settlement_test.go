package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ljo9000/skupi/internal/external"
	"github.com/Ljo9000/skupi/internal/models"
)

func TestInitiateCheckoutHappyPath(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 5, time.Now().Add(time.Hour))

	resp, err := h.services.Settlement.InitiateCheckout(context.Background(), &models.CheckoutRequest{
		EventID:    event.ID,
		GuestName:  "Ana",
		GuestEmail: "ana@example.com",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, resp.AuthRef)
	assert.NotEmpty(t, resp.ClientSecret)
	assert.Equal(t, int64(558), resp.AmountCents)

	payment, err := h.payments.GetByAuthRef(context.Background(), resp.AuthRef)
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, models.PaymentPending, payment.Status)
	assert.Equal(t, int64(500), payment.OwnerShareCents)
}

func TestInitiateCheckoutRejectsDuplicateGuest(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 5, time.Now().Add(time.Hour))

	req := &models.CheckoutRequest{EventID: event.ID, GuestName: "Ana", GuestEmail: "ana@example.com"}
	_, err := h.services.Settlement.InitiateCheckout(context.Background(), req)
	require.NoError(t, err)

	_, err = h.services.Settlement.InitiateCheckout(context.Background(), req)
	assert.ErrorIs(t, err, ErrDuplicateGuest)
}

func TestInitiateCheckoutAllowsRejoinAfterCancellation(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 5, time.Now().Add(time.Hour))
	h.seedPayment(event.ID, "ana@example.com", models.PaymentCancelled)

	_, err := h.services.Settlement.InitiateCheckout(context.Background(), &models.CheckoutRequest{
		EventID: event.ID, GuestName: "Ana", GuestEmail: "ana@example.com",
	})
	assert.NoError(t, err)
}

func TestInitiateCheckoutRejectsFullEvent(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 2, time.Now().Add(time.Hour))
	h.seedPayment(event.ID, "a@example.com", models.PaymentPaid)
	h.seedPayment(event.ID, "b@example.com", models.PaymentConfirmed)

	_, err := h.services.Settlement.InitiateCheckout(context.Background(), &models.CheckoutRequest{
		EventID: event.ID, GuestName: "C", GuestEmail: "c@example.com",
	})
	assert.ErrorIs(t, err, ErrEventFull)
}

func TestInitiateCheckoutRejectsPassedDeadline(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 5, time.Now().Add(-time.Minute))

	_, err := h.services.Settlement.InitiateCheckout(context.Background(), &models.CheckoutRequest{
		EventID: event.ID, GuestName: "Ana", GuestEmail: "ana@example.com",
	})
	assert.ErrorIs(t, err, ErrDeadlinePassed)
}

func TestInitiateCheckoutRetiresPaymentOnAuthorizeError(t *testing.T) {
	h := newHarness()
	h.gateway.authorizeErr = fmt.Errorf("card declined")
	event := h.seedEvent(2, 5, time.Now().Add(time.Hour))

	_, err := h.services.Settlement.InitiateCheckout(context.Background(), &models.CheckoutRequest{
		EventID: event.ID, GuestName: "Ana", GuestEmail: "ana@example.com",
	})
	require.Error(t, err)

	// The failed record must not block a retry.
	h.gateway.authorizeErr = nil
	_, err = h.services.Settlement.InitiateCheckout(context.Background(), &models.CheckoutRequest{
		EventID: event.ID, GuestName: "Ana", GuestEmail: "ana@example.com",
	})
	assert.NoError(t, err)
}

func TestMarkPaidConcurrentNotifiesOnce(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 5, time.Now().Add(time.Hour))
	payment := h.seedPayment(event.ID, "ana@example.com", models.PaymentPending)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.services.Settlement.MarkPaid(context.Background(), *payment.AuthRef)
		}()
	}
	wg.Wait()

	assert.Equal(t, models.PaymentPaid, h.payments.status(payment.ID))
	confirmed, _, _, _, _ := h.notifier.counts()
	assert.Equal(t, 1, confirmed, "racing reconcilers must produce one confirmation message")
}

func TestFastPathConfirmRequiresCompletedAuthorization(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 5, time.Now().Add(time.Hour))
	payment := h.seedPayment(event.ID, "ana@example.com", models.PaymentPending)

	h.gateway.setStatus(*payment.AuthRef, external.AuthStatusFailed)
	err := h.services.Settlement.FastPathConfirm(context.Background(), *payment.AuthRef)
	assert.ErrorIs(t, err, ErrAuthNotComplete)
	assert.Equal(t, models.PaymentPending, h.payments.status(payment.ID))

	h.gateway.setStatus(*payment.AuthRef, external.AuthStatusRequiresCapture)
	require.NoError(t, h.services.Settlement.FastPathConfirm(context.Background(), *payment.AuthRef))
	assert.Equal(t, models.PaymentPaid, h.payments.status(payment.ID))
}

func TestWebhookDuplicateDeliveryIsNoOp(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 5, time.Now().Add(time.Hour))
	payment := h.seedPayment(event.ID, "ana@example.com", models.PaymentPending)

	hook := &models.WebhookEvent{Type: "payment.authorized", AuthRef: *payment.AuthRef}
	require.NoError(t, h.services.Settlement.HandleWebhook(context.Background(), hook))
	require.NoError(t, h.services.Settlement.HandleWebhook(context.Background(), hook))

	confirmed, _, _, _, _ := h.notifier.counts()
	assert.Equal(t, 1, confirmed)
}

func TestWebhookUnknownAuthRefIsAcknowledged(t *testing.T) {
	h := newHarness()

	err := h.services.Settlement.HandleWebhook(context.Background(), &models.WebhookEvent{
		Type: "payment.authorized", AuthRef: "auth_nobody",
	})
	assert.NoError(t, err)
}

func TestWebhookUnknownTypeIsAcknowledged(t *testing.T) {
	h := newHarness()

	err := h.services.Settlement.HandleWebhook(context.Background(), &models.WebhookEvent{
		Type: "payout.settled", AuthRef: "auth_1",
	})
	assert.NoError(t, err)
}

func TestConfirmAfterMarkPaidNotifiesOnce(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 5, time.Now().Add(time.Hour))
	payment := h.seedPayment(event.ID, "ana@example.com", models.PaymentPending)

	require.NoError(t, h.services.Settlement.MarkPaid(context.Background(), *payment.AuthRef))
	require.NoError(t, h.services.Settlement.Confirm(context.Background(), *payment.AuthRef, "ch_1"))

	assert.Equal(t, models.PaymentConfirmed, h.payments.status(payment.ID))
	confirmed, _, _, _, _ := h.notifier.counts()
	assert.Equal(t, 1, confirmed)
}

func TestConfirmWithoutPriorPaidNotifies(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 5, time.Now().Add(time.Hour))
	payment := h.seedPayment(event.ID, "ana@example.com", models.PaymentPending)

	// Capture webhook arrived before the authorization webhook.
	require.NoError(t, h.services.Settlement.Confirm(context.Background(), *payment.AuthRef, "ch_1"))

	assert.Equal(t, models.PaymentConfirmed, h.payments.status(payment.ID))
	confirmed, _, _, _, _ := h.notifier.counts()
	assert.Equal(t, 1, confirmed)
}

func TestEventLocksOnceWhenMaxReached(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 3, time.Now().Add(time.Hour))

	payments := []*models.Payment{
		h.seedPayment(event.ID, "a@example.com", models.PaymentPending),
		h.seedPayment(event.ID, "b@example.com", models.PaymentPending),
		h.seedPayment(event.ID, "c@example.com", models.PaymentPending),
	}

	var wg sync.WaitGroup
	for _, p := range payments {
		wg.Add(1)
		go func(authRef string) {
			defer wg.Done()
			_ = h.services.Settlement.MarkPaid(context.Background(), authRef)
		}(*p.AuthRef)
	}
	wg.Wait()

	assert.Equal(t, models.EventConfirmed, h.events.status(event.ID))
	_, _, _, eventFull, _ := h.notifier.counts()
	assert.Equal(t, 1, eventFull, "the organizer hears about fullness exactly once")
}

func TestDeadlineCaptureConfirmsViableEvent(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 5, time.Now().Add(-time.Minute))
	h.seedPayment(event.ID, "a@example.com", models.PaymentPaid)
	h.seedPayment(event.ID, "b@example.com", models.PaymentPaid)
	h.seedPayment(event.ID, "c@example.com", models.PaymentFailed)

	result, err := h.services.Settlement.SweepDeadlines(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Captured)
	assert.Equal(t, 0, result.Cancelled)
	assert.Equal(t, models.EventConfirmed, h.events.status(event.ID))
	assert.Equal(t, 2, h.gateway.captures())
}

func TestDeadlineCaptureFailureRevertsAndRetries(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 5, time.Now().Add(-time.Minute))
	p1 := h.seedPayment(event.ID, "a@example.com", models.PaymentPaid)
	p2 := h.seedPayment(event.ID, "b@example.com", models.PaymentPaid)

	h.gateway.captureErr = fmt.Errorf("gateway unavailable")
	result, err := h.services.Settlement.SweepDeadlines(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, models.PaymentPaid, h.payments.status(p1.ID))
	assert.Equal(t, models.PaymentPaid, h.payments.status(p2.ID))
	assert.Equal(t, models.EventActive, h.events.status(event.ID), "event stays active for the next sweep")

	h.gateway.captureErr = nil
	result, err = h.services.Settlement.SweepDeadlines(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Captured)
	assert.Equal(t, models.PaymentConfirmed, h.payments.status(p1.ID))
	assert.Equal(t, models.EventConfirmed, h.events.status(event.ID))
}

func TestConfirmRacingMarkPaidNotifiesOnce(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 5, time.Now().Add(time.Hour))
	payment := h.seedPayment(event.ID, "ana@example.com", models.PaymentPending)

	// The fast path applies pending -> paid after the capture handler has
	// already loaded the payment but before its own update lands.
	hooked := &hookedPaymentStore{fakePaymentStore: h.payments}
	h.services = NewServices(hooked, h.events, h.waitlist, h.gateway, h.notifier, h.publisher, nil, &fakeIndexer{})
	hooked.beforeConfirm = func() {
		require.NoError(t, h.services.Settlement.MarkPaid(context.Background(), *payment.AuthRef))
	}

	require.NoError(t, h.services.Settlement.Confirm(context.Background(), *payment.AuthRef, "ch_1"))

	assert.Equal(t, models.PaymentConfirmed, h.payments.status(payment.ID))
	confirmed, _, _, _, _ := h.notifier.counts()
	assert.Equal(t, 1, confirmed, "the interleaved fast path owns the reservation message")
}

func TestSweepCapturesEventLockedBeforeDeadline(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 2, time.Now().Add(-time.Minute))
	p1 := h.seedPayment(event.ID, "a@example.com", models.PaymentPending)
	p2 := h.seedPayment(event.ID, "b@example.com", models.PaymentPending)

	// Both holds land before the deadline; the event locks at maximum.
	require.NoError(t, h.services.Settlement.MarkPaid(context.Background(), *p1.AuthRef))
	require.NoError(t, h.services.Settlement.MarkPaid(context.Background(), *p2.AuthRef))
	require.Equal(t, models.EventConfirmed, h.events.status(event.ID))

	result, err := h.services.Settlement.SweepDeadlines(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Captured, "a locked event still needs its holds captured at the deadline")
	assert.Equal(t, models.PaymentConfirmed, h.payments.status(p1.ID))
	assert.Equal(t, models.PaymentConfirmed, h.payments.status(p2.ID))
	assert.Equal(t, 2, h.gateway.captures())
	assert.Equal(t, models.EventConfirmed, h.events.status(event.ID))
}

func TestDeadlineCancelReleasesBelowMinimum(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(3, 5, time.Now().Add(-time.Minute))
	p1 := h.seedPayment(event.ID, "a@example.com", models.PaymentPaid)
	p2 := h.seedPayment(event.ID, "b@example.com", models.PaymentPaid)

	result, err := h.services.Settlement.SweepDeadlines(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Cancelled)
	assert.Equal(t, 0, result.Captured)
	assert.Equal(t, models.PaymentCancelled, h.payments.status(p1.ID))
	assert.Equal(t, models.PaymentCancelled, h.payments.status(p2.ID))
	assert.Equal(t, models.EventCancelled, h.events.status(event.ID))
	assert.Zero(t, h.gateway.captures())

	_, cancelled, _, _, _ := h.notifier.counts()
	assert.Equal(t, 2, cancelled)
}

func TestDeadlineCancelFailureRevertsAndRetries(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(3, 5, time.Now().Add(-time.Minute))
	payment := h.seedPayment(event.ID, "a@example.com", models.PaymentPaid)

	h.gateway.cancelErr = fmt.Errorf("gateway unavailable")
	result, err := h.services.Settlement.SweepDeadlines(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, models.PaymentPaid, h.payments.status(payment.ID), "a failed release puts the payment back where the next sweep can claim it")
	assert.Equal(t, models.EventActive, h.events.status(event.ID), "the event must not terminalize while a hold is still live")

	h.gateway.cancelErr = nil
	result, err = h.services.Settlement.SweepDeadlines(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Cancelled)
	assert.Equal(t, models.PaymentCancelled, h.payments.status(payment.ID))
	assert.Equal(t, models.EventCancelled, h.events.status(event.ID))

	_, cancelled, _, _, _ := h.notifier.counts()
	assert.Equal(t, 1, cancelled)
}

func TestDeadlineCancelIsIdempotent(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(3, 5, time.Now().Add(-time.Minute))
	h.seedPayment(event.ID, "a@example.com", models.PaymentPaid)

	_, err := h.services.Settlement.SweepDeadlines(context.Background(), 10)
	require.NoError(t, err)

	// A cancelled event is no longer due; rerunning the sweep does nothing.
	result, err := h.services.Settlement.SweepDeadlines(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, result.Cancelled)

	_, cancelled, _, _, _ := h.notifier.counts()
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, models.EventCancelled, h.events.status(event.ID))
}

func TestDeadlineCancelDoesNotPromoteWaitlist(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(3, 5, time.Now().Add(-time.Minute))
	h.seedPayment(event.ID, "a@example.com", models.PaymentPaid)
	require.NoError(t, h.waitlist.Create(context.Background(), &models.WaitingListEntry{
		EventID: event.ID, GuestName: "Waiting", GuestEmail: "w@example.com",
	}))

	_, err := h.services.Settlement.SweepDeadlines(context.Background(), 10)
	require.NoError(t, err)

	_, _, _, _, spots := h.notifier.counts()
	assert.Zero(t, spots, "a dead event has no spot to offer")
}

func TestSelfCancelReleasesHoldAndPromotes(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 2, time.Now().Add(time.Hour))
	payment := h.seedPayment(event.ID, "ana@example.com", models.PaymentPaid)
	h.seedPayment(event.ID, "b@example.com", models.PaymentPaid)
	h.events.events[event.ID].Status = models.EventConfirmed

	require.NoError(t, h.waitlist.Create(context.Background(), &models.WaitingListEntry{
		EventID: event.ID, GuestName: "First", GuestEmail: "first@example.com",
	}))
	require.NoError(t, h.waitlist.Create(context.Background(), &models.WaitingListEntry{
		EventID: event.ID, GuestName: "Second", GuestEmail: "second@example.com",
	}))

	resp, err := h.services.Settlement.SelfCancel(context.Background(), payment.CancelToken)
	require.NoError(t, err)
	assert.Equal(t, event.Slug, resp.EventSlug)

	assert.Equal(t, models.PaymentCancelled, h.payments.status(payment.ID))
	assert.Equal(t, models.EventActive, h.events.status(event.ID), "a freed spot reopens the event")

	_, _, selfCancelled, _, spots := h.notifier.counts()
	assert.Equal(t, 1, selfCancelled)
	assert.Equal(t, 1, spots, "exactly one waiting guest is invited per freed spot")
}

func TestSelfCancelRefundsCapturedPayment(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 5, time.Now().Add(time.Hour))
	payment := h.seedPayment(event.ID, "ana@example.com", models.PaymentConfirmed)
	h.gateway.setStatus(*payment.AuthRef, external.AuthStatusCaptured)
	h.gateway.chargeRefs[*payment.AuthRef] = "ch_abc"

	_, err := h.services.Settlement.SelfCancel(context.Background(), payment.CancelToken)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentRefunded, h.payments.status(payment.ID))
	assert.Equal(t, []string{"ch_abc"}, h.gateway.refundCalls)
	assert.Empty(t, h.gateway.cancelCalls)
}

func TestSelfCancelRejectsTerminalPayment(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 5, time.Now().Add(time.Hour))
	payment := h.seedPayment(event.ID, "ana@example.com", models.PaymentCancelled)

	_, err := h.services.Settlement.SelfCancel(context.Background(), payment.CancelToken)
	assert.ErrorIs(t, err, ErrNotCancellable)
}

func TestSelfCancelRejectsUnknownToken(t *testing.T) {
	h := newHarness()

	_, err := h.services.Settlement.SelfCancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSelfCancelConcurrentReleasesOnce(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 5, time.Now().Add(time.Hour))
	payment := h.seedPayment(event.ID, "ana@example.com", models.PaymentPaid)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.services.Settlement.SelfCancel(context.Background(), payment.CancelToken)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "only one caller wins the cancelling marker")
	assert.Len(t, h.gateway.cancelCalls, 1)
}
