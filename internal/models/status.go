package models

// PaymentStatus is the settlement state of a single payment
type PaymentStatus string

const (
	// PaymentPending - authorization requested, hold not yet placed
	PaymentPending PaymentStatus = "pending"
	// PaymentPaid - hold placed on the guest's instrument, not yet captured.
	// Counts toward event fullness.
	PaymentPaid PaymentStatus = "paid"
	// PaymentCapturing - capture in flight, transient
	PaymentCapturing PaymentStatus = "capturing"
	// PaymentConfirmed - captured
	PaymentConfirmed PaymentStatus = "confirmed"
	// PaymentCancelling - self-cancel in flight, transient
	PaymentCancelling PaymentStatus = "cancelling"
	// PaymentCancelled - hold released or refunded, terminal
	PaymentCancelled PaymentStatus = "cancelled"
	// PaymentFailed - authorization never succeeded, terminal
	PaymentFailed PaymentStatus = "failed"
	// PaymentRefunded - captured funds returned, terminal
	PaymentRefunded PaymentStatus = "refunded"
)

// EventStatus is the lifecycle state of an event
type EventStatus string

const (
	EventActive    EventStatus = "active"
	EventConfirmed EventStatus = "confirmed"
	EventCancelled EventStatus = "cancelled"
)

// paymentTransitions defines the valid payment state transitions.
// The key is the current state, the value the set of reachable states.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:    {PaymentPaid, PaymentConfirmed, PaymentFailed, PaymentCancelled, PaymentCancelling},
	PaymentPaid:       {PaymentCapturing, PaymentConfirmed, PaymentCancelling, PaymentCancelled},
	PaymentCapturing:  {PaymentConfirmed, PaymentPaid, PaymentCancelling, PaymentCancelled},
	PaymentConfirmed:  {PaymentCancelling, PaymentRefunded},
	PaymentCancelling: {PaymentCancelled, PaymentRefunded, PaymentPaid, PaymentConfirmed},
	PaymentCancelled:  {},
	PaymentFailed:     {},
	PaymentRefunded:   {},
}

// CanTransition reports whether from -> to is a legal payment transition
func CanTransition(from, to PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a payment state has no outgoing transitions
func (s PaymentStatus) IsTerminal() bool {
	return len(paymentTransitions[s]) == 0
}

// IsCancellable reports whether a guest may still self-cancel from this state
func (s PaymentStatus) IsCancellable() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentCapturing, PaymentConfirmed:
		return true
	}
	return false
}

// SettledStatuses are the states counted toward event fullness: a placed
// hold counts the same as a capture for the min/max thresholds.
var SettledStatuses = []PaymentStatus{PaymentPaid, PaymentCapturing, PaymentConfirmed}

// NonTerminalStatuses are the states a deadline cancel sweep must release
var NonTerminalStatuses = []PaymentStatus{
	PaymentPending, PaymentPaid, PaymentCapturing, PaymentConfirmed, PaymentCancelling,
}
