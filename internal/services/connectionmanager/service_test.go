package connectionmanager

import (
	"errors"
	"testing"
	"time"

	"github.com/graymedia/mediaserver/internal/eventing"
	"github.com/graymedia/mediaserver/internal/upnp"
)

func TestGetProtocolInfo(t *testing.T) {
	svc := New(Options{ProtocolInfo: []string{"http-get:*:audio/mpeg:*", " ", "http-get:*:video/mp4:*"}})

	req := &upnp.ActionRequest{ActionName: "GetProtocolInfo"}
	if err := svc.ProcessAction(req); err != nil {
		t.Fatalf("ProcessAction() error = %v", err)
	}
	if got, _ := req.Results.Get("Source"); got != "http-get:*:audio/mpeg:*,http-get:*:video/mp4:*" {
		t.Errorf("Source = %q", got)
	}
	if got, ok := req.Results.Get("Sink"); !ok || got != "" {
		t.Errorf("Sink = %q, %v", got, ok)
	}
	if req.Results[0].Name != "Source" || req.Results[1].Name != "Sink" {
		t.Errorf("result order = %v", req.Results)
	}
}

func TestGetCurrentConnectionIDs(t *testing.T) {
	svc := New(Options{})
	req := &upnp.ActionRequest{ActionName: "GetCurrentConnectionIDs"}
	if err := svc.ProcessAction(req); err != nil {
		t.Fatalf("ProcessAction() error = %v", err)
	}
	if got, _ := req.Results.Get("ConnectionIDs"); got != "0" {
		t.Errorf("ConnectionIDs = %q", got)
	}
}

func TestGetCurrentConnectionInfo(t *testing.T) {
	svc := New(Options{})

	t.Run("default connection", func(t *testing.T) {
		req := &upnp.ActionRequest{
			ActionName: "GetCurrentConnectionInfo",
			Arguments:  upnp.Arguments{{Name: "ConnectionID", Value: "0"}},
		}
		if err := svc.ProcessAction(req); err != nil {
			t.Fatalf("ProcessAction() error = %v", err)
		}
		want := map[string]string{
			"RcsID":                 "-1",
			"AVTransportID":         "-1",
			"ProtocolInfo":          "",
			"PeerConnectionManager": "",
			"PeerConnectionID":      "-1",
			"Direction":             "Output",
			"Status":                "OK",
		}
		if len(req.Results) != len(want) {
			t.Fatalf("len(Results) = %d", len(req.Results))
		}
		for name, v := range want {
			if got, _ := req.Results.Get(name); got != v {
				t.Errorf("%s = %q, want %q", name, got, v)
			}
		}
	})

	errTests := []struct {
		name string
		args upnp.Arguments
		want upnp.ErrorCode
	}{
		{"unknown connection", upnp.Arguments{{Name: "ConnectionID", Value: "7"}}, upnp.ErrorInvalidConnectionReference},
		{"not a number", upnp.Arguments{{Name: "ConnectionID", Value: "abc"}}, upnp.ErrorInvalidArgs},
		{"missing", nil, upnp.ErrorInvalidArgs},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			req := &upnp.ActionRequest{ActionName: "GetCurrentConnectionInfo", Arguments: tt.args}
			err := svc.ProcessAction(req)
			var upnpErr *upnp.Error
			if !errors.As(err, &upnpErr) || upnpErr.Code != tt.want {
				t.Errorf("error = %v, want code %d", err, tt.want)
			}
		})
	}
}

func TestUnknownAction(t *testing.T) {
	svc := New(Options{})
	err := svc.ProcessAction(&upnp.ActionRequest{ActionName: "PrepareForConnection"})
	var upnpErr *upnp.Error
	if !errors.As(err, &upnpErr) || upnpErr.Code != upnp.ErrorInvalidAction {
		t.Errorf("error = %v, want 401", err)
	}
}

func TestProcessSubscription(t *testing.T) {
	svc := New(Options{
		ProtocolInfo: []string{"http-get:*:audio/mpeg:*"},
		Eventing:     eventing.Options{MaxSubscribers: 1},
	})

	first := &upnp.SubscriptionRequest{
		SID:               "uuid:1",
		Kind:              upnp.SubscriptionNew,
		Callbacks:         []string{"http://h/cb"},
		RequestedDuration: 300 * time.Second,
	}
	if err := svc.ProcessSubscription(first); err != nil {
		t.Fatalf("ProcessSubscription() error = %v", err)
	}
	if v, _ := first.InitialState.Get("SourceProtocolInfo"); v != "http-get:*:audio/mpeg:*" {
		t.Errorf("SourceProtocolInfo = %q", v)
	}

	second := &upnp.SubscriptionRequest{
		SID:       "uuid:2",
		Kind:      upnp.SubscriptionNew,
		Callbacks: []string{"http://h/cb"},
	}
	if err := svc.ProcessSubscription(second); !errors.Is(err, eventing.ErrTooManySubscribers) {
		t.Errorf("over capacity error = %v", err)
	}
	if !second.Rejected {
		t.Error("over capacity request not rejected")
	}
}
