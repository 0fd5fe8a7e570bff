package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminalStatesHaveNoOutgoingTransitions(t *testing.T) {
	for _, terminal := range []PaymentStatus{PaymentCancelled, PaymentFailed, PaymentRefunded} {
		assert.True(t, terminal.IsTerminal(), "%s should be terminal", terminal)
		for _, to := range []PaymentStatus{
			PaymentPending, PaymentPaid, PaymentCapturing, PaymentConfirmed,
			PaymentCancelling, PaymentCancelled, PaymentFailed, PaymentRefunded,
		} {
			assert.False(t, CanTransition(terminal, to), "%s -> %s must be illegal", terminal, to)
		}
	}
}

func TestTransientStatesCanRevert(t *testing.T) {
	// Gateway failures roll transient states back to the state they left.
	assert.True(t, CanTransition(PaymentCapturing, PaymentPaid))
	assert.True(t, CanTransition(PaymentCancelling, PaymentPaid))
	assert.True(t, CanTransition(PaymentCancelling, PaymentConfirmed))
}

func TestCancellingResolvesByGatewayState(t *testing.T) {
	assert.True(t, CanTransition(PaymentCancelling, PaymentCancelled))
	assert.True(t, CanTransition(PaymentCancelling, PaymentRefunded))
}

func TestConfirmedOnlyLeavesThroughCancellation(t *testing.T) {
	assert.True(t, CanTransition(PaymentConfirmed, PaymentCancelling))
	assert.True(t, CanTransition(PaymentConfirmed, PaymentRefunded))
	assert.False(t, CanTransition(PaymentConfirmed, PaymentPaid))
	assert.False(t, CanTransition(PaymentConfirmed, PaymentPending))
}

func TestSettledStatusesCountHoldsAndCaptures(t *testing.T) {
	assert.ElementsMatch(t,
		[]PaymentStatus{PaymentPaid, PaymentCapturing, PaymentConfirmed},
		SettledStatuses)
	for _, s := range SettledStatuses {
		assert.False(t, s.IsTerminal())
	}
}

func TestIsCancellable(t *testing.T) {
	assert.True(t, PaymentPending.IsCancellable())
	assert.True(t, PaymentPaid.IsCancellable())
	assert.True(t, PaymentCapturing.IsCancellable())
	assert.True(t, PaymentConfirmed.IsCancellable())
	assert.False(t, PaymentCancelling.IsCancellable())
	assert.False(t, PaymentCancelled.IsCancellable())
	assert.False(t, PaymentFailed.IsCancellable())
	assert.False(t, PaymentRefunded.IsCancellable())
}
