package upnp

import (
	"errors"
	"fmt"
)

// Domain errors for the translation layer.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, upnp.ErrMalformedEvent) {
//	    // reply with 401/402
//	}
var (
	// ErrMalformedEvent is returned when a raw event lacks the service
	// identifier or the fields required by its event type.
	ErrMalformedEvent = errors.New("upnp: malformed event")

	// ErrUnknownService is returned when no registered service owns the
	// service identifier named by a request.
	ErrUnknownService = errors.New("upnp: unknown service")

	// ErrWrongDevice is returned when a request is addressed to a UDN other
	// than this device's.
	ErrWrongDevice = errors.New("upnp: request not for this device")
)

// ErrorCode is a UPnP control error code carried in a SOAP fault.
type ErrorCode int

// UPnP Device Architecture and AV service error codes used by this server.
const (
	ErrorNone                       ErrorCode = 0
	ErrorInvalidAction              ErrorCode = 401
	ErrorInvalidArgs                ErrorCode = 402
	ErrorActionFailed               ErrorCode = 501
	ErrorArgumentValueInvalid       ErrorCode = 600
	ErrorArgumentValueOutOfRange    ErrorCode = 601
	ErrorNoSuchObject               ErrorCode = 701
	ErrorInvalidConnectionReference ErrorCode = 706
	ErrorCannotProcess              ErrorCode = 720
)

// String returns the standard description for the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrorNone:
		return "OK"
	case ErrorInvalidAction:
		return "Invalid Action"
	case ErrorInvalidArgs:
		return "Invalid Args"
	case ErrorActionFailed:
		return "Action Failed"
	case ErrorArgumentValueInvalid:
		return "Argument Value Invalid"
	case ErrorArgumentValueOutOfRange:
		return "Argument Value Out of Range"
	case ErrorNoSuchObject:
		return "No such object"
	case ErrorInvalidConnectionReference:
		return "Invalid connection reference"
	case ErrorCannotProcess:
		return "Cannot process the request"
	default:
		return fmt.Sprintf("UPnP error %d", int(c))
	}
}

// Error is a service-reported UPnP failure. It passes through the
// dispatcher verbatim into the reply.
type Error struct {
	Code        ErrorCode
	Description string
}

// NewError creates an Error. An empty description defaults to the
// standard text for the code.
func NewError(code ErrorCode, description string) *Error {
	if description == "" {
		description = code.String()
	}
	return &Error{Code: code, Description: description}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("upnp: %d %s", int(e.Code), e.Description)
}

// AsError converts any error into a UPnP Error. Errors that are not
// already *Error map to 501 Action Failed.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var upnpErr *Error
	if errors.As(err, &upnpErr) {
		return upnpErr
	}
	return NewError(ErrorActionFailed, err.Error())
}
