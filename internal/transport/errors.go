package transport

import "errors"

// Transport errors.
var (
	// ErrAlreadyBound is returned by Bind when a listener is active.
	ErrAlreadyBound = errors.New("transport: already bound")

	// ErrNotBound is returned when an operation needs an active listener.
	ErrNotBound = errors.New("transport: not bound")

	// ErrAlreadyRegistered is returned when a second device is registered.
	ErrAlreadyRegistered = errors.New("transport: device already registered")

	// ErrUnknownHandle is returned for a handle that is not registered.
	ErrUnknownHandle = errors.New("transport: unknown device handle")

	// ErrInvalidDescription is returned when the device description cannot
	// be parsed or names no services.
	ErrInvalidDescription = errors.New("transport: invalid device description")

	// ErrNoAddress is returned when no usable network address is found.
	ErrNoAddress = errors.New("transport: no usable network address")
)
