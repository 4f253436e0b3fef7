package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/graymedia/mediaserver/internal/upnp"
)

// DispatchRecord summarises one HandleEvent call.
type DispatchRecord struct {
	EventType upnp.EventType
	ServiceID string

	// Kind is zero when the service was not found.
	Kind Kind

	// Operation is the action name or the subscription kind.
	Operation string

	Status    upnp.Status
	ErrorCode upnp.ErrorCode
	Duration  time.Duration
}

// DispatchObserver is notified after every dispatched event, outside the
// exclusive section.
type DispatchObserver interface {
	ObserveDispatch(rec DispatchRecord)
}

// Dispatcher is the serialized entry point for transport events.
//
// At most one event is processed at any instant. A second caller blocks
// until the first returns. The section is released on every path,
// including a panicking service.
//
// There is no timeout: a service that never returns stalls every later
// event.
type Dispatcher struct {
	mu         sync.Mutex
	udn        string
	registry   *Registry
	translator upnp.Translator
	clock      clock.Clock
	logger     Logger
	observer   DispatchObserver
}

// NewDispatcher creates a dispatcher for the device udn.
//
// Parameters:
//   - udn: This device's UDN; requests naming another UDN are rejected
//   - registry: The hosted services
//
// Returns:
//   - *Dispatcher: Ready to handle events
func NewDispatcher(udn string, registry *Registry) *Dispatcher {
	return &Dispatcher{
		udn:      udn,
		registry: registry,
		clock:    clock.New(),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger. Call before the first event.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetObserver sets the dispatch observer. Call before the first event.
func (d *Dispatcher) SetObserver(observer DispatchObserver) {
	d.observer = observer
}

// SetClock replaces the clock used to time dispatches.
func (d *Dispatcher) SetClock(c clock.Clock) {
	d.clock = c
}

// HandleEvent processes one transport event and writes the outcome back
// into it. The cookie is ignored.
//
// Parameters:
//   - eventType: What the transport received
//   - event: *upnp.ActionEvent or *upnp.SubscriptionEvent
//   - cookie: Opaque transport value
//
// Returns:
//   - upnp.Status: StatusOK or the failure class
func (d *Dispatcher) HandleEvent(eventType upnp.EventType, event any, _ any) upnp.Status {
	rec := d.dispatch(eventType, event)
	if d.observer != nil {
		d.observer.ObserveDispatch(rec)
	}
	return rec.Status
}

// Inspect runs fn inside the exclusive section so it can read service
// state without racing event processing.
func (d *Dispatcher) Inspect(fn func(*Registry)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.registry)
}

func (d *Dispatcher) dispatch(eventType upnp.EventType, event any) (rec DispatchRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := d.clock.Now()
	rec.EventType = eventType
	defer func() {
		rec.Duration = d.clock.Since(start)
	}()

	switch eventType {
	case upnp.EventControlActionRequest:
		ev, ok := event.(*upnp.ActionEvent)
		if !ok || ev == nil {
			d.logger.Warn("action event has wrong payload", "type", fmt.Sprintf("%T", event))
			rec.Status = upnp.StatusBadRequest
			return rec
		}
		d.handleAction(ev, &rec)

	case upnp.EventSubscriptionRequest:
		ev, ok := event.(*upnp.SubscriptionEvent)
		if !ok || ev == nil {
			d.logger.Warn("subscription event has wrong payload", "type", fmt.Sprintf("%T", event))
			rec.Status = upnp.StatusBadRequest
			return rec
		}
		d.handleSubscription(ev, &rec)

	default:
		d.logger.Debug("ignoring unsupported event", "event_type", eventType.String())
		rec.Status = upnp.StatusUnsupported
	}
	return rec
}

func (d *Dispatcher) handleAction(ev *upnp.ActionEvent, rec *DispatchRecord) {
	rec.ServiceID = ev.ServiceID
	rec.Operation = ev.ActionName

	req, err := d.translator.TranslateAction(ev)
	if err != nil {
		code := upnp.ErrorInvalidAction
		if ev.ActionName != "" {
			code = upnp.ErrorInvalidArgs
		}
		d.failAction(ev, rec, upnp.StatusBadRequest, code, err)
		return
	}
	rec.Operation = req.ActionName

	if !d.addressedHere(req.UDN) {
		d.failAction(ev, rec, upnp.StatusBadRequest, upnp.ErrorInvalidAction,
			fmt.Errorf("%w: %s", upnp.ErrWrongDevice, req.UDN))
		return
	}

	svc, ok := d.registry.FindByID(req.ServiceID)
	if !ok {
		d.failAction(ev, rec, upnp.StatusInvalidService, upnp.ErrorInvalidAction,
			fmt.Errorf("%w: %s", upnp.ErrUnknownService, req.ServiceID))
		return
	}
	rec.Kind = d.registry.kindOf(svc)

	if err := callAction(svc, req); err != nil {
		upnpErr := upnp.AsError(err)
		req.Fail(upnpErr.Code, upnpErr.Description)
	}
	d.translator.ApplyAction(req, ev)

	rec.ErrorCode = req.ErrorCode
	if req.Failed() {
		rec.Status = upnp.StatusActionFailed
		d.logger.Debug("action failed",
			"service", rec.Kind.String(),
			"action", req.ActionName,
			"code", int(req.ErrorCode),
			"error", req.ErrorDescription,
		)
		return
	}
	rec.Status = upnp.StatusOK
}

func (d *Dispatcher) handleSubscription(ev *upnp.SubscriptionEvent, rec *DispatchRecord) {
	rec.ServiceID = ev.ServiceID
	rec.Operation = ev.Kind.String()

	req, err := d.translator.TranslateSubscription(ev)
	if err != nil {
		d.failSubscription(ev, rec, upnp.StatusBadRequest, err)
		return
	}

	if !d.addressedHere(req.UDN) {
		d.failSubscription(ev, rec, upnp.StatusBadRequest, fmt.Errorf("%w: %s", upnp.ErrWrongDevice, req.UDN))
		return
	}

	svc, ok := d.registry.FindByID(req.ServiceID)
	if !ok {
		d.failSubscription(ev, rec, upnp.StatusInvalidService, fmt.Errorf("%w: %s", upnp.ErrUnknownService, req.ServiceID))
		return
	}
	rec.Kind = d.registry.kindOf(svc)

	if err := callSubscription(svc, req); err != nil && !req.Rejected {
		req.Reject(err.Error())
	}
	d.translator.ApplySubscription(req, ev)

	if req.Rejected {
		rec.Status = upnp.StatusActionFailed
		d.logger.Debug("subscription rejected",
			"service", rec.Kind.String(),
			"kind", req.Kind.String(),
			"sid", req.SID,
			"reason", req.RejectReason,
		)
		return
	}
	rec.Status = upnp.StatusOK
}

func (d *Dispatcher) failAction(ev *upnp.ActionEvent, rec *DispatchRecord, status upnp.Status, code upnp.ErrorCode, err error) {
	d.logger.Warn("rejecting action", "service_id", ev.ServiceID, "action", ev.ActionName, "error", err)
	upnp.FailAction(ev, code, "")
	rec.Status = status
	rec.ErrorCode = code
}

func (d *Dispatcher) failSubscription(ev *upnp.SubscriptionEvent, rec *DispatchRecord, status upnp.Status, err error) {
	d.logger.Warn("rejecting subscription", "service_id", ev.ServiceID, "sid", ev.SID, "error", err)
	upnp.FailSubscription(ev, err.Error())
	rec.Status = status
}

// addressedHere reports whether udn names this device. An empty UDN is
// accepted; the transport may not know it.
func (d *Dispatcher) addressedHere(udn string) bool {
	return udn == "" || udn == d.udn
}

// callAction runs the service, turning a panic into an error.
func callAction(svc Service, req *upnp.ActionRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("service panic: %v", r)
		}
	}()
	return svc.ProcessAction(req)
}

// callSubscription runs the service, turning a panic into an error.
func callSubscription(svc Service, req *upnp.SubscriptionRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("service panic: %v", r)
		}
	}()
	return svc.ProcessSubscription(req)
}
