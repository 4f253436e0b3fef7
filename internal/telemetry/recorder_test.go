package telemetry

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/graymedia/mediaserver/internal/server"
	"github.com/graymedia/mediaserver/internal/upnp"
)

type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]interface{}
}

type fakePoints struct {
	mu     sync.Mutex
	points []point
}

func (f *fakePoints) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, point{measurement, tags, fields})
}

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.msgs = append(f.msgs, published{topic, payload, qos, retained})
	return f.err
}

type broadcast struct {
	channel string
	payload any
}

type fakeBroadcaster struct {
	msgs []broadcast
}

func (f *fakeBroadcaster) Broadcast(channel string, payload any) {
	f.msgs = append(f.msgs, broadcast{channel, payload})
}

func newTestRecorder(t *testing.T, opts Options) *Recorder {
	t.Helper()
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	r, err := NewRecorder(opts)
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	return r
}

func TestNewRecorderErrors(t *testing.T) {
	if _, err := NewRecorder(Options{}); !errors.Is(err, ErrNoRegisterer) {
		t.Errorf("NewRecorder() without registerer error = %v", err)
	}

	reg := prometheus.NewRegistry()
	if _, err := NewRecorder(Options{Registerer: reg}); err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	if _, err := NewRecorder(Options{Registerer: reg}); err == nil {
		t.Error("second NewRecorder() on the same registry should fail")
	}
}

func TestObserveDispatch(t *testing.T) {
	points := &fakePoints{}
	hub := &fakeBroadcaster{}
	r := newTestRecorder(t, Options{Points: points, Broadcaster: hub})

	records := []server.DispatchRecord{
		{EventType: upnp.EventControlActionRequest, Kind: server.KindContentDirectory, Operation: "Browse", Status: upnp.StatusOK, Duration: 2 * time.Millisecond},
		{EventType: upnp.EventControlActionRequest, Kind: server.KindContentDirectory, Operation: "Browse", Status: upnp.StatusActionFailed, ErrorCode: upnp.ErrorNoSuchObject},
		{EventType: upnp.EventSubscriptionRequest, Kind: server.KindConnectionManager, Operation: "new", Status: upnp.StatusOK},
		{EventType: upnp.EventControlActionRequest, Status: upnp.StatusInvalidService, ErrorCode: upnp.ErrorInvalidAction},
	}
	for _, rec := range records {
		r.ObserveDispatch(rec)
	}

	tests := []struct {
		event, service, status string
		want                   float64
	}{
		{"action_request", "ContentDirectory", "ok", 1},
		{"action_request", "ContentDirectory", "action_failed", 1},
		{"subscription_request", "ConnectionManager", "ok", 1},
		{"action_request", "unknown", "invalid_service", 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(r.dispatchTotal.WithLabelValues(tt.event, tt.service, tt.status))
		if got != tt.want {
			t.Errorf("dispatch_total{%s,%s,%s} = %v, want %v", tt.event, tt.service, tt.status, got, tt.want)
		}
	}
	if got := testutil.ToFloat64(r.upnpErrors.WithLabelValues("701")); got != 1 {
		t.Errorf("errors_total{701} = %v", got)
	}
	if got := testutil.ToFloat64(r.upnpErrors.WithLabelValues("401")); got != 1 {
		t.Errorf("errors_total{401} = %v", got)
	}

	stats := r.Stats()
	if stats.Dispatched != 4 || stats.Failed != 2 {
		t.Errorf("Stats() = %+v", stats)
	}

	if len(points.points) != 4 || points.points[0].measurement != measurementDispatch {
		t.Fatalf("points = %+v", points.points)
	}
	if points.points[0].fields["duration_ms"] != 2.0 {
		t.Errorf("duration_ms = %v", points.points[0].fields["duration_ms"])
	}
	if len(hub.msgs) != 4 || hub.msgs[1].channel != ChannelDispatch {
		t.Fatalf("broadcasts = %+v", hub.msgs)
	}
	ev := hub.msgs[1].payload.(DispatchEvent)
	if ev.Operation != "Browse" || ev.ErrorCode != 701 || ev.Status != "action_failed" {
		t.Errorf("broadcast payload = %+v", ev)
	}
}

func TestObserveLifecycle(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	pub := &fakePublisher{}
	hub := &fakeBroadcaster{}
	r := newTestRecorder(t, Options{
		Publisher:   pub,
		Broadcaster: hub,
		StatusTopic: "mediaserver/uuid:1/status",
		QoS:         1,
		UDN:         "uuid:1",
		Clock:       mock,
	})

	r.ObserveLifecycle(server.StateInitialized, server.StateRunning)

	if got := testutil.ToFloat64(r.state); got != float64(server.StateRunning) {
		t.Errorf("lifecycle_state = %v", got)
	}
	if r.Stats().State != "running" {
		t.Errorf("Stats().State = %q", r.Stats().State)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published = %d", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.topic != "mediaserver/uuid:1/status" || !msg.retained || msg.qos != 1 {
		t.Errorf("publish = %+v", msg)
	}
	var ev LifecycleEvent
	if err := json.Unmarshal(msg.payload, &ev); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if !ev.Online || ev.From != "initialized" || ev.To != "running" || ev.UDN != "uuid:1" || !ev.Timestamp.Equal(mock.Now()) {
		t.Errorf("payload = %+v", ev)
	}
	if len(hub.msgs) != 1 || hub.msgs[0].channel != ChannelLifecycle {
		t.Errorf("broadcasts = %+v", hub.msgs)
	}

	pub.err = errors.New("broker down")
	r.ObserveLifecycle(server.StateRunning, server.StateStopped)
	if len(pub.msgs) != 2 {
		t.Errorf("published = %d", len(pub.msgs))
	}
	if got := testutil.ToFloat64(r.state); got != float64(server.StateStopped) {
		t.Errorf("lifecycle_state = %v", got)
	}
}

func TestObserveAdvertisement(t *testing.T) {
	mock := clock.NewMock()
	points := &fakePoints{}
	r := newTestRecorder(t, Options{Points: points, Clock: mock})

	if !r.Stats().LastAdvertisement.IsZero() {
		t.Error("LastAdvertisement set before any advertisement")
	}

	r.ObserveAdvertisement(nil)
	mock.Add(30 * time.Second)
	r.ObserveAdvertisement(errors.New("network unreachable"))

	if got := testutil.ToFloat64(r.advertisements.WithLabelValues("ok")); got != 1 {
		t.Errorf("advertisements_total{ok} = %v", got)
	}
	if got := testutil.ToFloat64(r.advertisements.WithLabelValues("error")); got != 1 {
		t.Errorf("advertisements_total{error} = %v", got)
	}
	stats := r.Stats()
	if stats.Advertisements != 2 || stats.AdvertisementErrors != 1 || !stats.LastAdvertisement.Equal(mock.Now()) {
		t.Errorf("Stats() = %+v", stats)
	}
	if len(points.points) != 2 || points.points[1].tags["result"] != "error" {
		t.Errorf("points = %+v", points.points)
	}
}
