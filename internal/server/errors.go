package server

import "errors"

// Lifecycle errors.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, server.ErrBind) {
//	    // port unavailable, nothing left running
//	}
var (
	// ErrConfiguration is returned by Init when required settings are
	// absent or malformed, or the UDN cannot be loaded or persisted.
	ErrConfiguration = errors.New("server: configuration error")

	// ErrBind is returned by Start when the transport cannot bind.
	ErrBind = errors.New("server: bind failed")

	// ErrRegistration is returned by Start when the transport rejects the
	// device registration.
	ErrRegistration = errors.New("server: device registration failed")

	// ErrInvalidState is returned when a lifecycle method is called out of
	// order.
	ErrInvalidState = errors.New("server: invalid lifecycle state")
)
