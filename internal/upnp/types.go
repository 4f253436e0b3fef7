package upnp

import (
	"fmt"
	"time"
)

// EventType identifies what kind of event the transport delivered.
type EventType int

// Event types delivered by the transport. Only action requests and
// subscription requests are dispatched; the rest are unsupported.
const (
	EventUnknown EventType = iota
	EventControlActionRequest
	EventControlGetVarRequest
	EventSubscriptionRequest
	EventDiscoveryAdvertisementAlive
	EventDiscoveryAdvertisementByeBye
	EventDiscoverySearchResult
)

// String returns the event type name used in logs and metrics.
func (t EventType) String() string {
	switch t {
	case EventControlActionRequest:
		return "action_request"
	case EventControlGetVarRequest:
		return "get_var_request"
	case EventSubscriptionRequest:
		return "subscription_request"
	case EventDiscoveryAdvertisementAlive:
		return "advertisement_alive"
	case EventDiscoveryAdvertisementByeBye:
		return "advertisement_byebye"
	case EventDiscoverySearchResult:
		return "search_result"
	default:
		return "unknown"
	}
}

// Status is the result code HandleEvent returns to the transport.
type Status int

// Dispatch status codes. Anything other than StatusOK is a failure.
const (
	StatusOK             Status = 0
	StatusUnsupported    Status = -1
	StatusBadRequest     Status = -2
	StatusInvalidService Status = -3
	StatusActionFailed   Status = -4
	StatusNotReady       Status = -5
)

// String returns the status name used in logs and metrics.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnsupported:
		return "unsupported"
	case StatusBadRequest:
		return "bad_request"
	case StatusInvalidService:
		return "invalid_service"
	case StatusActionFailed:
		return "action_failed"
	case StatusNotReady:
		return "not_ready"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// EventHandler is the callback the transport invokes once per event.
// The cookie is opaque to the handler.
type EventHandler func(eventType EventType, event any, cookie any) Status

// DeviceHandle identifies a device registered with the transport.
type DeviceHandle uint32

// InvalidHandle is the zero handle, never returned by a successful
// registration.
const InvalidHandle DeviceHandle = 0

// DescriptionPath is the URL path of the device description document.
const DescriptionPath = "/description.xml"

// DeviceRegistration is everything the transport needs to publish a device.
type DeviceRegistration struct {
	// UDN is the device's unique device name ("uuid:...").
	UDN string

	// Description is the rendered device description document.
	Description []byte

	// Documents maps URL paths to static documents (service SCPDs).
	Documents map[string][]byte

	// Handler receives every action and subscription event for the device.
	Handler EventHandler
}

// Argument is one named value of an action invocation or evented variable.
type Argument struct {
	Name  string
	Value string
}

// Arguments is an ordered list of arguments. Order is significant for
// SOAP responses and is preserved end to end.
type Arguments []Argument

// Get returns the value of the first argument with the given name.
func (a Arguments) Get(name string) (string, bool) {
	for _, arg := range a {
		if arg.Name == name {
			return arg.Value, true
		}
	}
	return "", false
}

// ActionEvent is the transport's raw representation of a control action.
// Body holds the SOAP envelope (or the bare action element) as received.
// ErrCode, ErrStr and Result are written back by the dispatcher.
type ActionEvent struct {
	UDN         string
	ServiceID   string
	ServiceType string
	ActionName  string
	Body        []byte

	ErrCode int
	ErrStr  string
	Result  []byte
}

// SubscriptionKind distinguishes GENA SUBSCRIBE, renewal and UNSUBSCRIBE.
type SubscriptionKind int

// Subscription request kinds.
const (
	SubscriptionNew SubscriptionKind = iota + 1
	SubscriptionRenew
	SubscriptionCancel
)

// String returns the kind name.
func (k SubscriptionKind) String() string {
	switch k {
	case SubscriptionNew:
		return "subscribe"
	case SubscriptionRenew:
		return "renew"
	case SubscriptionCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// SubscriptionEvent is the transport's raw representation of a GENA request.
// Timeout of zero means the subscriber asked for an infinite subscription.
// Accepted, Rejected, AcceptedTimeout and PropertySet are written back by
// the dispatcher.
type SubscriptionEvent struct {
	UDN       string
	ServiceID string
	SID       string
	Kind      SubscriptionKind
	Callbacks []string
	Timeout   time.Duration

	Accepted        bool
	Rejected        bool
	RejectReason    string
	AcceptedTimeout time.Duration
	PropertySet     []byte

	// InitialSeq is the SEQ header of the initial NOTIFY.
	InitialSeq uint32
}

// ActionRequest is the typed form of an action invocation against one
// service. It is created per event, mutated once by the owning service and
// discarded after the reply is written.
type ActionRequest struct {
	UDN         string
	ServiceID   string
	ServiceType string
	ActionName  string
	Arguments   Arguments

	// Results are populated by the handling service.
	Results Arguments

	// ErrorCode and ErrorDescription are set on failure.
	ErrorCode        ErrorCode
	ErrorDescription string
}

// Arg returns the named input argument.
func (r *ActionRequest) Arg(name string) (string, bool) {
	return r.Arguments.Get(name)
}

// SetResult appends an output argument.
func (r *ActionRequest) SetResult(name, value string) {
	r.Results = append(r.Results, Argument{Name: name, Value: value})
}

// Fail records a UPnP error and drops any partial results.
func (r *ActionRequest) Fail(code ErrorCode, description string) {
	if description == "" {
		description = code.String()
	}
	r.ErrorCode = code
	r.ErrorDescription = description
	r.Results = nil
}

// Failed reports whether an error has been recorded.
func (r *ActionRequest) Failed() bool {
	return r.ErrorCode != ErrorNone
}

// SubscriptionRequest is the typed form of a GENA request against one
// service. Same single-use lifecycle as ActionRequest.
type SubscriptionRequest struct {
	UDN       string
	ServiceID string
	SID       string
	Kind      SubscriptionKind

	// Callbacks are the subscriber's delivery URLs, in preference order.
	Callbacks []string

	// RequestedDuration of zero means infinite.
	RequestedDuration time.Duration

	// AcceptedDuration is set by the owning service.
	AcceptedDuration time.Duration

	Rejected     bool
	RejectReason string

	// InitialState holds the evented variables sent in the first NOTIFY.
	InitialState Arguments

	// InitialSeq is the event key consumed by that first NOTIFY.
	InitialSeq uint32
}

// Accept marks the request accepted for the given duration.
func (r *SubscriptionRequest) Accept(duration time.Duration, state Arguments) {
	r.Rejected = false
	r.RejectReason = ""
	r.AcceptedDuration = duration
	r.InitialState = state
}

// Reject marks the request rejected.
func (r *SubscriptionRequest) Reject(reason string) {
	r.Rejected = true
	r.RejectReason = reason
	r.AcceptedDuration = 0
	r.InitialState = nil
	r.InitialSeq = 0
}
