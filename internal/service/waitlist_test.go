package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ljo9000/skupi/internal/models"
)

func TestJoinRequiresFullEvent(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 3, time.Now().Add(time.Hour))
	h.seedPayment(event.ID, "a@example.com", models.PaymentPaid)

	_, err := h.services.Waitlist.Join(context.Background(), &models.JoinWaitlistRequest{
		EventID: event.ID, GuestName: "W", GuestEmail: "w@example.com",
	})
	assert.ErrorIs(t, err, ErrEventNotFull)
}

func TestJoinFullEvent(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 2, time.Now().Add(time.Hour))
	h.seedPayment(event.ID, "a@example.com", models.PaymentPaid)
	h.seedPayment(event.ID, "b@example.com", models.PaymentConfirmed)

	entry, err := h.services.Waitlist.Join(context.Background(), &models.JoinWaitlistRequest{
		EventID: event.ID, GuestName: "W", GuestEmail: "w@example.com",
	})
	require.NoError(t, err)
	assert.NotEqual(t, entry.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Nil(t, entry.NotifiedAt)
}

func TestJoinRejectsDuplicateEmail(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 2, time.Now().Add(time.Hour))
	h.seedPayment(event.ID, "a@example.com", models.PaymentPaid)
	h.seedPayment(event.ID, "b@example.com", models.PaymentPaid)

	req := &models.JoinWaitlistRequest{EventID: event.ID, GuestName: "W", GuestEmail: "w@example.com"}
	_, err := h.services.Waitlist.Join(context.Background(), req)
	require.NoError(t, err)

	_, err = h.services.Waitlist.Join(context.Background(), req)
	assert.ErrorIs(t, err, ErrDuplicateEntry)
}

func TestJoinRejectsPassedDeadline(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 2, time.Now().Add(-time.Minute))
	h.seedPayment(event.ID, "a@example.com", models.PaymentPaid)
	h.seedPayment(event.ID, "b@example.com", models.PaymentPaid)

	_, err := h.services.Waitlist.Join(context.Background(), &models.JoinWaitlistRequest{
		EventID: event.ID, GuestName: "W", GuestEmail: "w@example.com",
	})
	assert.ErrorIs(t, err, ErrDeadlinePassed)
}

func TestPromoteNextInArrivalOrder(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 2, time.Now().Add(time.Hour))

	first := &models.WaitingListEntry{EventID: event.ID, GuestName: "First", GuestEmail: "1@example.com"}
	second := &models.WaitingListEntry{EventID: event.ID, GuestName: "Second", GuestEmail: "2@example.com"}
	require.NoError(t, h.waitlist.Create(context.Background(), first))
	require.NoError(t, h.waitlist.Create(context.Background(), second))

	h.services.Waitlist.PromoteNext(context.Background(), event)
	h.services.Waitlist.PromoteNext(context.Background(), event)
	h.services.Waitlist.PromoteNext(context.Background(), event)

	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	require.Len(t, h.notifier.spotAvailable, 2, "an exhausted list promotes nobody")
	assert.Equal(t, first.ID, h.notifier.spotAvailable[0])
	assert.Equal(t, second.ID, h.notifier.spotAvailable[1])
}

func TestPromoteNextConcurrentCancellations(t *testing.T) {
	h := newHarness()
	event := h.seedEvent(2, 2, time.Now().Add(time.Hour))

	for _, email := range []string{"1@example.com", "2@example.com", "3@example.com"} {
		require.NoError(t, h.waitlist.Create(context.Background(), &models.WaitingListEntry{
			EventID: event.ID, GuestName: email, GuestEmail: email,
		}))
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.services.Waitlist.PromoteNext(context.Background(), event)
		}()
	}
	wg.Wait()

	_, _, _, _, spots := h.notifier.counts()
	assert.Equal(t, 2, spots, "two freed spots reach two different guests")

	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	assert.NotEqual(t, h.notifier.spotAvailable[0], h.notifier.spotAvailable[1])
}
