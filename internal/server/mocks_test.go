package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/graymedia/mediaserver/internal/upnp"
)

// MockTransport is a test implementation of Transport.
type MockTransport struct {
	mu sync.Mutex

	// BoundPort overrides the port Bind reports; zero echoes the request.
	BoundPort int

	bindErr       error
	registerErr   error
	unregisterErr error
	unbindErr     error

	bound          bool
	registered     bool
	registration   upnp.DeviceRegistration
	nextHandle     upnp.DeviceHandle
	advertisements int
	unbinds        int
	unregisters    int
}

func NewMockTransport() *MockTransport {
	return &MockTransport{nextHandle: 1}
}

func (m *MockTransport) Bind(_ context.Context, _ string, port int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bindErr != nil {
		return 0, m.bindErr
	}
	m.bound = true
	if m.BoundPort != 0 {
		return m.BoundPort, nil
	}
	return port, nil
}

func (m *MockTransport) Unbind() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unbinds++
	m.bound = false
	return m.unbindErr
}

func (m *MockTransport) RegisterDevice(_ context.Context, reg upnp.DeviceRegistration) (upnp.DeviceHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return upnp.InvalidHandle, m.registerErr
	}
	m.registered = true
	m.registration = reg
	h := m.nextHandle
	m.nextHandle++
	return h, nil
}

func (m *MockTransport) UnregisterDevice(upnp.DeviceHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unregisters++
	m.registered = false
	return m.unregisterErr
}

func (m *MockTransport) SendAdvertisement(upnp.DeviceHandle, time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advertisements++
	return nil
}

func (m *MockTransport) Advertisements() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advertisements
}

func (m *MockTransport) Registration() upnp.DeviceRegistration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registration
}

// MemoryStore is an in-memory IdentityStore standing in for the settings
// database across simulated restarts.
type MemoryStore struct {
	mu      sync.Mutex
	udn     string
	loadErr error
	saves   int
}

func (m *MemoryStore) LoadUDN(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.udn, m.loadErr
}

func (m *MemoryStore) SaveUDN(_ context.Context, udn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.udn = udn
	m.saves++
	return nil
}

// FakeService records calls and can block or panic on demand.
type FakeService struct {
	id string

	mu            sync.Mutex
	actions       []string
	subscriptions int

	// Hook runs inside ProcessAction when set.
	Hook func(req *upnp.ActionRequest) error
}

func NewFakeService(id string) *FakeService {
	return &FakeService{id: id}
}

func (f *FakeService) ID() string            { return f.id }
func (f *FakeService) Type() string          { return "urn:test:service:" + f.id + ":1" }
func (f *FakeService) SCPD() []byte          { return []byte("<scpd/>") }
func (f *FakeService) State() upnp.Arguments { return upnp.Arguments{{Name: "Var", Value: "1"}} }

func (f *FakeService) ProcessAction(req *upnp.ActionRequest) error {
	f.mu.Lock()
	f.actions = append(f.actions, req.ActionName)
	hook := f.Hook
	f.mu.Unlock()

	if hook != nil {
		return hook(req)
	}
	req.SetResult("Echo", req.ActionName)
	return nil
}

func (f *FakeService) ProcessSubscription(req *upnp.SubscriptionRequest) error {
	f.mu.Lock()
	f.subscriptions++
	f.mu.Unlock()

	if req.Kind == upnp.SubscriptionRenew {
		req.Reject("unknown sid")
		return errors.New("unknown sid")
	}
	req.Accept(1800*time.Second, f.State())
	return nil
}

func (f *FakeService) Calls() (actions []string, subscriptions int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...), f.subscriptions
}

// recordingObserver collects dispatch records and lifecycle transitions.
type recordingObserver struct {
	mu          sync.Mutex
	records     []DispatchRecord
	transitions []State
	adverts     int
}

func (o *recordingObserver) ObserveDispatch(rec DispatchRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, rec)
}

func (o *recordingObserver) ObserveLifecycle(_, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, to)
}

func (o *recordingObserver) ObserveAdvertisement(error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.adverts++
}
