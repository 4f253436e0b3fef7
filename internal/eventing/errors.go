package eventing

import "errors"

// Domain errors for subscriber bookkeeping.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, eventing.ErrUnknownSubscription) {
//	    // transport answers 412 Precondition Failed
//	}
var (
	// ErrUnknownSubscription is returned when renewing or cancelling a SID
	// that is not in the table (never existed or already expired).
	ErrUnknownSubscription = errors.New("eventing: unknown subscription")

	// ErrSubscriptionExists is returned when subscribing with a SID that is
	// already active.
	ErrSubscriptionExists = errors.New("eventing: subscription already exists")

	// ErrTooManySubscribers is returned when the table is at capacity.
	ErrTooManySubscribers = errors.New("eventing: too many subscribers")

	// ErrNoCallback is returned when a new subscription has no delivery URL.
	ErrNoCallback = errors.New("eventing: no callback url")
)
