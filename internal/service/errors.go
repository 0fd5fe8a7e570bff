package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Conflict errors carry the specific reason a request was rejected so the
// caller can render the right message.
var (
	ErrEventNotActive = errors.New("event is not active")
	ErrEventFull      = errors.New("event is full")
	ErrEventNotFull   = errors.New("event is not full or not active")
	ErrDeadlinePassed = errors.New("payment deadline has passed")
	ErrDuplicateGuest = errors.New("guest already has an active payment for this event")
	ErrDuplicateEntry = errors.New("guest is already on the waiting list")

	ErrInvalidToken    = errors.New("unknown cancellation token")
	ErrNotCancellable  = errors.New("payment is no longer cancellable")
	ErrUnknownAuthRef  = errors.New("unknown authorization reference")
	ErrAuthNotComplete = errors.New("authorization is not completed at the gateway")
)

// ValidationError reports per-field problems with a create request.
// Nothing is persisted when one is returned.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
