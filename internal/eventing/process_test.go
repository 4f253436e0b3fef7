package eventing

import (
	"errors"
	"testing"
	"time"

	"github.com/graymedia/mediaserver/internal/upnp"
)

func TestProcess(t *testing.T) {
	table, _ := newTestTable(2)
	state := func() upnp.Arguments {
		return upnp.Arguments{{Name: "SystemUpdateID", Value: "4"}}
	}

	sub := &upnp.SubscriptionRequest{
		SID:               "uuid:a",
		Kind:              upnp.SubscriptionNew,
		Callbacks:         []string{"http://h/cb"},
		RequestedDuration: 7200 * time.Second,
	}
	if err := table.Process(sub, state); err != nil {
		t.Fatalf("Process(new) error = %v", err)
	}
	if sub.Rejected {
		t.Fatal("new subscription rejected")
	}
	if sub.AcceptedDuration != 1800*time.Second {
		t.Errorf("AcceptedDuration = %v, want clamped 1800s", sub.AcceptedDuration)
	}
	if v, _ := sub.InitialState.Get("SystemUpdateID"); v != "4" {
		t.Errorf("InitialState = %v", sub.InitialState)
	}
	if sub.InitialSeq != 0 {
		t.Errorf("InitialSeq = %d, want 0", sub.InitialSeq)
	}
	if got, _ := table.Get("uuid:a"); got.Seq != 1 {
		t.Errorf("subscriber Seq after initial event = %d, want 1", got.Seq)
	}

	renew := &upnp.SubscriptionRequest{SID: "uuid:a", Kind: upnp.SubscriptionRenew, RequestedDuration: 120 * time.Second}
	if err := table.Process(renew, state); err != nil {
		t.Fatalf("Process(renew) error = %v", err)
	}
	if renew.AcceptedDuration != 120*time.Second || len(renew.InitialState) != 0 {
		t.Errorf("renew = %+v", renew)
	}
	if got, _ := table.Get("uuid:a"); got.Seq != 1 {
		t.Errorf("subscriber Seq after renew = %d, want 1", got.Seq)
	}

	cancel := &upnp.SubscriptionRequest{SID: "uuid:a", Kind: upnp.SubscriptionCancel}
	if err := table.Process(cancel, state); err != nil {
		t.Fatalf("Process(cancel) error = %v", err)
	}

	again := &upnp.SubscriptionRequest{SID: "uuid:a", Kind: upnp.SubscriptionRenew}
	err := table.Process(again, state)
	if !errors.Is(err, ErrUnknownSubscription) {
		t.Errorf("renew after cancel error = %v", err)
	}
	if !again.Rejected || again.RejectReason == "" {
		t.Errorf("renew after cancel not rejected: %+v", again)
	}

	bad := &upnp.SubscriptionRequest{SID: "uuid:b"}
	if err := table.Process(bad, state); !errors.Is(err, upnp.ErrMalformedEvent) {
		t.Errorf("unknown kind error = %v", err)
	}
}
