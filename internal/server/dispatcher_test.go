package server

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/graymedia/mediaserver/internal/upnp"
)

const (
	testUDN   = "uuid:5b1c4e55-6a3f-4d55-9d3e-2b0a3c8f6f10"
	cdsTestID = "urn:upnp-org:serviceId:ContentDirectory"
	cmTestID  = "urn:upnp-org:serviceId:ConnectionManager"
)

func newTestDispatcher() (*Dispatcher, *FakeService, *FakeService, *recordingObserver) {
	cds := NewFakeService(cdsTestID)
	cm := NewFakeService(cmTestID)
	d := NewDispatcher(testUDN, NewRegistry(cds, cm))
	obs := &recordingObserver{}
	d.SetObserver(obs)
	return d, cds, cm, obs
}

func actionEvent(serviceID, action string) *upnp.ActionEvent {
	return &upnp.ActionEvent{
		UDN:        testUDN,
		ServiceID:  serviceID,
		ActionName: action,
		Body:       []byte(`<u:` + action + ` xmlns:u="urn:test"><A>1</A></u:` + action + `>`),
	}
}

func TestDispatchRoutesToExactlyOneService(t *testing.T) {
	d, cds, cm, obs := newTestDispatcher()

	ev := actionEvent(cmTestID, "GetProtocolInfo")
	if status := d.HandleEvent(upnp.EventControlActionRequest, ev, nil); status != upnp.StatusOK {
		t.Fatalf("HandleEvent() = %v, want ok", status)
	}

	cdsActions, _ := cds.Calls()
	cmActions, _ := cm.Calls()
	if len(cdsActions) != 0 {
		t.Errorf("ContentDirectory received %v", cdsActions)
	}
	if len(cmActions) != 1 || cmActions[0] != "GetProtocolInfo" {
		t.Errorf("ConnectionManager received %v", cmActions)
	}
	if !strings.Contains(string(ev.Result), "<Echo>GetProtocolInfo</Echo>") {
		t.Errorf("Result = %s", ev.Result)
	}
	if len(obs.records) != 1 || obs.records[0].Kind != KindConnectionManager {
		t.Errorf("observer records = %+v", obs.records)
	}
}

func TestDispatchUnknownService(t *testing.T) {
	d, cds, cm, _ := newTestDispatcher()

	ev := actionEvent("urn:upnp-org:serviceId:AVTransport", "Play")
	status := d.HandleEvent(upnp.EventControlActionRequest, ev, nil)

	if status != upnp.StatusInvalidService {
		t.Errorf("status = %v, want invalid_service", status)
	}
	if ev.ErrCode != int(upnp.ErrorInvalidAction) {
		t.Errorf("ErrCode = %d, want 401", ev.ErrCode)
	}
	if ev.Result != nil {
		t.Errorf("Result = %s, want untouched", ev.Result)
	}
	for name, svc := range map[string]*FakeService{"cds": cds, "cm": cm} {
		if actions, subs := svc.Calls(); len(actions) != 0 || subs != 0 {
			t.Errorf("%s touched: actions=%v subs=%d", name, actions, subs)
		}
	}
}

func TestDispatchFailures(t *testing.T) {
	tests := []struct {
		name       string
		eventType  upnp.EventType
		event      any
		wantStatus upnp.Status
		wantCode   int
	}{
		{
			name:       "unsupported event type",
			eventType:  upnp.EventDiscoverySearchResult,
			event:      &upnp.ActionEvent{},
			wantStatus: upnp.StatusUnsupported,
		},
		{
			name:       "get var request unsupported",
			eventType:  upnp.EventControlGetVarRequest,
			event:      &upnp.ActionEvent{},
			wantStatus: upnp.StatusUnsupported,
		},
		{
			name:       "wrong payload type",
			eventType:  upnp.EventControlActionRequest,
			event:      "not an event",
			wantStatus: upnp.StatusBadRequest,
		},
		{
			name:       "missing service id",
			eventType:  upnp.EventControlActionRequest,
			event:      &upnp.ActionEvent{ActionName: "Browse", Body: []byte("<u:Browse/>")},
			wantStatus: upnp.StatusBadRequest,
			wantCode:   402,
		},
		{
			name:       "missing action and body",
			eventType:  upnp.EventControlActionRequest,
			event:      &upnp.ActionEvent{ServiceID: cdsTestID},
			wantStatus: upnp.StatusBadRequest,
			wantCode:   401,
		},
		{
			name:      "other device",
			eventType: upnp.EventControlActionRequest,
			event: &upnp.ActionEvent{
				UDN:       "uuid:00000000-0000-0000-0000-000000000000",
				ServiceID: cdsTestID,
				Body:      []byte("<u:Browse/>"),
			},
			wantStatus: upnp.StatusBadRequest,
			wantCode:   401,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, cds, _, _ := newTestDispatcher()
			if got := d.HandleEvent(tt.eventType, tt.event, nil); got != tt.wantStatus {
				t.Errorf("status = %v, want %v", got, tt.wantStatus)
			}
			if ev, ok := tt.event.(*upnp.ActionEvent); ok && ev.ErrCode != tt.wantCode {
				t.Errorf("ErrCode = %d, want %d", ev.ErrCode, tt.wantCode)
			}
			if actions, _ := cds.Calls(); len(actions) != 0 {
				t.Errorf("service called: %v", actions)
			}
		})
	}
}

func TestDispatchServiceErrorPassesThrough(t *testing.T) {
	d, cds, _, _ := newTestDispatcher()
	cds.Hook = func(req *upnp.ActionRequest) error {
		req.SetResult("Partial", "x")
		return upnp.NewError(upnp.ErrorNoSuchObject, "object 42 missing")
	}

	ev := actionEvent(cdsTestID, "Browse")
	status := d.HandleEvent(upnp.EventControlActionRequest, ev, nil)

	if status != upnp.StatusActionFailed {
		t.Errorf("status = %v", status)
	}
	if ev.ErrCode != 701 || ev.ErrStr != "object 42 missing" {
		t.Errorf("error fields = %d %q", ev.ErrCode, ev.ErrStr)
	}
	if ev.Result != nil {
		t.Errorf("partial result leaked: %s", ev.Result)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	d, cds, _, _ := newTestDispatcher()
	cds.Hook = func(*upnp.ActionRequest) error { panic("boom") }

	ev := actionEvent(cdsTestID, "Browse")
	if status := d.HandleEvent(upnp.EventControlActionRequest, ev, nil); status != upnp.StatusActionFailed {
		t.Errorf("status = %v", status)
	}
	if ev.ErrCode != int(upnp.ErrorActionFailed) {
		t.Errorf("ErrCode = %d, want 501", ev.ErrCode)
	}

	cds.Hook = nil
	done := make(chan upnp.Status, 1)
	go func() {
		done <- d.HandleEvent(upnp.EventControlActionRequest, actionEvent(cdsTestID, "Browse"), nil)
	}()
	select {
	case status := <-done:
		if status != upnp.StatusOK {
			t.Errorf("status after panic = %v", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("exclusive section still held after panic")
	}
}

func TestDispatchSubscription(t *testing.T) {
	d, cds, cm, _ := newTestDispatcher()

	ev := &upnp.SubscriptionEvent{
		UDN:       testUDN,
		ServiceID: cdsTestID,
		SID:       "uuid:sid-1",
		Kind:      upnp.SubscriptionNew,
		Callbacks: []string{"http://10.0.0.9/cb"},
	}
	if status := d.HandleEvent(upnp.EventSubscriptionRequest, ev, nil); status != upnp.StatusOK {
		t.Fatalf("status = %v", status)
	}
	if !ev.Accepted || ev.AcceptedTimeout != 1800*time.Second {
		t.Errorf("event = %+v", ev)
	}
	if !strings.Contains(string(ev.PropertySet), "<Var>1</Var>") {
		t.Errorf("PropertySet = %s", ev.PropertySet)
	}
	if _, subs := cm.Calls(); subs != 0 {
		t.Errorf("ConnectionManager received %d subscriptions", subs)
	}
	if _, subs := cds.Calls(); subs != 1 {
		t.Errorf("ContentDirectory received %d subscriptions", subs)
	}

	renew := &upnp.SubscriptionEvent{ServiceID: cdsTestID, SID: "uuid:gone", Kind: upnp.SubscriptionRenew}
	if status := d.HandleEvent(upnp.EventSubscriptionRequest, renew, nil); status != upnp.StatusActionFailed {
		t.Errorf("renew status = %v", status)
	}
	if !renew.Rejected || renew.RejectReason != "unknown sid" {
		t.Errorf("renew = %+v", renew)
	}

	unknown := &upnp.SubscriptionEvent{ServiceID: "urn:x", SID: "uuid:s", Kind: upnp.SubscriptionCancel}
	if status := d.HandleEvent(upnp.EventSubscriptionRequest, unknown, nil); status != upnp.StatusInvalidService {
		t.Errorf("unknown service status = %v", status)
	}
	if !unknown.Rejected {
		t.Error("unknown service subscription not rejected")
	}

	malformed := &upnp.SubscriptionEvent{ServiceID: cdsTestID, Kind: upnp.SubscriptionNew}
	if status := d.HandleEvent(upnp.EventSubscriptionRequest, malformed, nil); status != upnp.StatusBadRequest {
		t.Errorf("malformed status = %v", status)
	}
}

func TestDispatchSerializesConcurrentEvents(t *testing.T) {
	d, cds, cm, _ := newTestDispatcher()

	var inFlight, maxInFlight atomic.Int32
	hook := func(*upnp.ActionRequest) error {
		n := inFlight.Add(1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return nil
	}
	cds.Hook = hook
	cm.Hook = hook

	const callers = 16
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := cdsTestID
			if i%2 == 1 {
				id = cmTestID
			}
			d.HandleEvent(upnp.EventControlActionRequest, actionEvent(id, "Browse"), nil)
		}(i)
	}
	wg.Wait()

	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("max concurrent service calls = %d, want 1", got)
	}
	cdsActions, _ := cds.Calls()
	cmActions, _ := cm.Calls()
	if len(cdsActions)+len(cmActions) != callers {
		t.Errorf("calls = %d, want %d", len(cdsActions)+len(cmActions), callers)
	}
}

func TestInspectHoldsSection(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	entered := make(chan struct{})
	release := make(chan struct{})
	go d.Inspect(func(r *Registry) {
		close(entered)
		<-release
	})
	<-entered

	done := make(chan struct{})
	go func() {
		d.HandleEvent(upnp.EventControlActionRequest, actionEvent(cdsTestID, "Browse"), nil)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("HandleEvent ran while Inspect held the section")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleEvent did not resume after Inspect")
	}
}

func TestRegistry(t *testing.T) {
	cds := NewFakeService(cdsTestID)
	cm := NewFakeService(cmTestID)
	r := NewRegistry(cds, cm)

	if svc, ok := r.FindByID(cdsTestID); !ok || svc != Service(cds) {
		t.Errorf("FindByID(cds) = %v, %v", svc, ok)
	}
	if _, ok := r.FindByID("urn:upnp-org:serviceId:contentdirectory"); ok {
		t.Error("FindByID matched case-insensitively")
	}
	if svc, _ := r.FindByID(cmTestID); r.kindOf(svc) != KindConnectionManager {
		t.Errorf("kindOf(cm) = %v", r.kindOf(svc))
	}
	if k := r.kindOf(NewFakeService(cmTestID)); k != 0 {
		t.Errorf("kindOf(unregistered) = %v, want 0", k)
	}
	entries := r.Entries()
	if len(entries) != 2 || entries[0].Kind != KindContentDirectory || entries[1].Kind != KindConnectionManager {
		t.Errorf("Entries() = %+v", entries)
	}
}
