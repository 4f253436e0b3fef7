package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/graymedia/mediaserver/internal/eventing"
	"github.com/graymedia/mediaserver/internal/services/connectionmanager"
	"github.com/graymedia/mediaserver/internal/services/contentdirectory"
	"github.com/graymedia/mediaserver/internal/upnp"
)

// Transport is the network layer that accepts UPnP traffic and delivers
// events to the registered handler.
type Transport interface {
	// Bind starts listening. The returned port is the one actually bound,
	// which may differ from the requested port.
	Bind(ctx context.Context, address string, port int) (int, error)

	// Unbind stops listening.
	Unbind() error

	// RegisterDevice publishes the device and routes its events to
	// reg.Handler.
	RegisterDevice(ctx context.Context, reg upnp.DeviceRegistration) (upnp.DeviceHandle, error)

	// UnregisterDevice withdraws the device and announces its departure.
	UnregisterDevice(handle upnp.DeviceHandle) error

	// SendAdvertisement announces the device as alive. interval is the
	// period until the next announcement.
	SendAdvertisement(handle upnp.DeviceHandle, interval time.Duration) error
}

// LifecycleObserver is notified of state changes and advertisements.
type LifecycleObserver interface {
	ObserveLifecycle(from, to State)
	ObserveAdvertisement(err error)
}

// Options configures a Server.
type Options struct {
	// UDN fixes the device UDN. When empty the UDN comes from Store,
	// generated and saved on first run.
	UDN string

	// Store persists the UDN. Required unless UDN is set.
	Store IdentityStore

	// Transport carries UPnP traffic. Required.
	Transport Transport

	// AliveInterval is the period between alive advertisements. Required.
	AliveInterval time.Duration

	// VirtualDirectory is the content path prefix. Default: /content.
	VirtualDirectory string

	// Device holds the description document fields.
	Device DeviceInfo

	// Catalog is served by the ContentDirectory. Nil serves an empty root.
	Catalog *contentdirectory.Catalog

	// ProtocolInfo lists the ConnectionManager source protocols.
	ProtocolInfo []string

	// Eventing sets the subscriber limits of both services.
	Eventing eventing.Options

	// Clock drives the advertisement ticker. Default: wall clock.
	Clock clock.Clock

	// Logger receives lifecycle and dispatch logs. Default: discard.
	Logger Logger

	DispatchObserver  DispatchObserver
	LifecycleObserver LifecycleObserver
}

// Server owns the device identity, the hosted services and the lifecycle
//
//	Uninitialized -> Initialized -> Running -> Stopped
//
// Lifecycle methods are serialized by their own mutex, independent of the
// dispatcher's exclusive section.
type Server struct {
	opts   Options
	clock  clock.Clock
	logger Logger

	mu         sync.Mutex // Protects lifecycle fields below
	state      State
	udn        string
	handle     upnp.DeviceHandle
	registry   *Registry
	advertiser *advertiser

	// Read without mu: HandleEvent and service callbacks run while a
	// lifecycle method may hold mu.
	identity   atomic.Pointer[Identity]
	dispatcher atomic.Pointer[Dispatcher]
	cds        *contentdirectory.Service
	cm         *connectionmanager.Service
}

// New creates a Server in the Uninitialized state.
func New(opts Options) *Server {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	if opts.VirtualDirectory == "" {
		opts.VirtualDirectory = DefaultVirtualDirectory
	}
	if opts.Eventing.Clock == nil {
		opts.Eventing.Clock = clk
	}

	s := &Server{
		opts:   opts,
		clock:  clk,
		logger: logger,
	}
	s.identity.Store(&Identity{VirtualDirectory: opts.VirtualDirectory})
	return s
}

// Init resolves the UDN and constructs the services.
//
// Parameters:
//   - ctx: Context for the identity store
//
// Returns:
//   - error: ErrInvalidState if already initialized, ErrConfiguration for
//     bad options or an identity store failure
func (s *Server) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := transition(s.state, eventInit)
	if err != nil {
		return err
	}
	if err := s.validate(); err != nil {
		return err
	}

	udn, err := ResolveUDN(ctx, s.opts.UDN, s.opts.Store)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	s.cds = contentdirectory.New(contentdirectory.Options{
		Catalog:  s.opts.Catalog,
		Eventing: s.opts.Eventing,
		BaseURL:  s.VirtualURL,
	})
	s.cm = connectionmanager.New(connectionmanager.Options{
		ProtocolInfo: s.opts.ProtocolInfo,
		Eventing:     s.opts.Eventing,
	})
	s.registry = NewRegistry(s.cds, s.cm)

	d := NewDispatcher(udn, s.registry)
	d.SetLogger(s.logger)
	d.SetClock(s.clock)
	if s.opts.DispatchObserver != nil {
		d.SetObserver(s.opts.DispatchObserver)
	}
	s.dispatcher.Store(d)

	s.udn = udn
	s.identity.Store(&Identity{UDN: udn, VirtualDirectory: s.opts.VirtualDirectory})
	s.setState(next)

	s.logger.Info("media server initialized",
		"udn", udn,
		"alive_interval", s.opts.AliveInterval.String(),
	)
	return nil
}

func (s *Server) validate() error {
	var errs []error
	if s.opts.Transport == nil {
		errs = append(errs, errors.New("transport is required"))
	}
	if s.opts.UDN == "" && s.opts.Store == nil {
		errs = append(errs, errors.New("identity store is required when no udn is configured"))
	}
	if s.opts.AliveInterval <= 0 {
		errs = append(errs, fmt.Errorf("alive interval must be positive, got %s", s.opts.AliveInterval))
	}
	if s.opts.Device.FriendlyName == "" {
		errs = append(errs, errors.New("device friendly name is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// Start binds the transport, publishes the device and begins advertising.
// On failure nothing is left running and the state stays Initialized.
//
// Parameters:
//   - ctx: Context for bind and registration
//   - address: IP address to bind and advertise
//   - port: Requested port; 0 picks any free port
//
// Returns:
//   - error: ErrInvalidState, ErrConfiguration, ErrBind or ErrRegistration
func (s *Server) Start(ctx context.Context, address string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := transition(s.state, eventStart)
	if err != nil {
		return err
	}
	if address == "" {
		return fmt.Errorf("%w: bind address is required", ErrConfiguration)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrConfiguration, port)
	}

	transport := s.opts.Transport
	bound, err := transport.Bind(ctx, address, port)
	if err != nil {
		return fmt.Errorf("%w: %s:%d: %w", ErrBind, address, port, err)
	}
	if bound != port && port != 0 {
		s.logger.Warn("requested port unavailable, using another", "requested", port, "bound", bound)
	}

	base := baseURL(address, bound)
	entries := s.registry.Entries()
	desc, err := BuildDescription(s.opts.Device, s.udn, base, entries)
	if err != nil {
		return multierr.Append(fmt.Errorf("%w: %w", ErrConfiguration, err), s.unbind(transport))
	}

	id := &Identity{
		UDN:              s.udn,
		BindAddress:      address,
		BoundPort:        bound,
		VirtualDirectory: s.opts.VirtualDirectory,
		VirtualURL:       virtualURL(address, bound, s.opts.VirtualDirectory),
		DescriptionURL:   base + upnp.DescriptionPath,
		Description:      desc,
	}
	s.identity.Store(id)

	handle, err := transport.RegisterDevice(ctx, upnp.DeviceRegistration{
		UDN:         s.udn,
		Description: desc,
		Documents:   scpdDocuments(entries),
		Handler:     s.HandleEvent,
	})
	if err != nil {
		s.identity.Store(&Identity{UDN: s.udn, VirtualDirectory: s.opts.VirtualDirectory})
		return multierr.Append(fmt.Errorf("%w: %w", ErrRegistration, err), s.unbind(transport))
	}
	s.handle = handle

	s.advertiser = newAdvertiser(transport, handle, s.opts.AliveInterval, s.clock, s.logger, s.opts.LifecycleObserver)
	s.advertiser.start()

	s.setState(next)
	s.logger.Info("media server running",
		"address", address,
		"port", bound,
		"virtual_url", id.VirtualURL,
		"description_url", id.DescriptionURL,
	)
	return nil
}

func (s *Server) unbind(transport Transport) error {
	if err := transport.Unbind(); err != nil {
		return fmt.Errorf("rollback unbind: %w", err)
	}
	return nil
}

// Stop halts advertising, unregisters the device and unbinds. The state
// becomes Stopped even when teardown reports errors.
//
// Returns:
//   - error: ErrInvalidState unless Running, otherwise the combined
//     teardown errors
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := transition(s.state, eventStop)
	if err != nil {
		return err
	}

	s.advertiser.stop()

	var errs error
	if err := s.opts.Transport.UnregisterDevice(s.handle); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("unregister device: %w", err))
	}
	if err := s.opts.Transport.Unbind(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("unbind: %w", err))
	}
	s.handle = upnp.InvalidHandle

	s.setState(next)
	s.logger.Info("media server stopped")
	return errs
}

// Advertise sends an alive advertisement now, outside the regular
// schedule. The next scheduled one is unaffected.
//
// Returns:
//   - error: ErrInvalidState unless Running, otherwise the transport error
func (s *Server) Advertise() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return fmt.Errorf("%w: advertise in state %s", ErrInvalidState, s.state)
	}
	return s.advertiser.advertise()
}

// setState records a transition and notifies the observer. Caller holds mu.
func (s *Server) setState(next State) {
	prev := s.state
	s.state = next
	if s.opts.LifecycleObserver != nil {
		s.opts.LifecycleObserver.ObserveLifecycle(prev, next)
	}
}

// HandleEvent is the transport callback. It returns StatusNotReady before
// Init.
func (s *Server) HandleEvent(eventType upnp.EventType, event any, cookie any) upnp.Status {
	d := s.dispatcher.Load()
	if d == nil {
		return upnp.StatusNotReady
	}
	return d.HandleEvent(eventType, event, cookie)
}

// Inspect runs fn with the registry inside the dispatcher's exclusive
// section. It returns false before Init.
func (s *Server) Inspect(fn func(*Registry)) bool {
	d := s.dispatcher.Load()
	if d == nil {
		return false
	}
	d.Inspect(fn)
	return true
}

// State returns the lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DeviceHandle returns the transport handle, or InvalidHandle when not
// running.
func (s *Server) DeviceHandle() upnp.DeviceHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Identity returns a copy of the current identity.
func (s *Server) Identity() Identity {
	id := *s.identity.Load()
	id.Description = append([]byte(nil), id.Description...)
	return id
}

// UDN returns the device UDN, empty before Init.
func (s *Server) UDN() string { return s.identity.Load().UDN }

// VirtualURL returns the content root URL, empty before Start.
func (s *Server) VirtualURL() string { return s.identity.Load().VirtualURL }

// BoundAddress returns the bind address, empty before Start.
func (s *Server) BoundAddress() string { return s.identity.Load().BindAddress }

// BoundPort returns the actually bound port, zero before Start.
func (s *Server) BoundPort() int { return s.identity.Load().BoundPort }
