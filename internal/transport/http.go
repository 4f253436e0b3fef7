// Package transport carries UPnP traffic for one root device: HTTP for
// description, control (SOAP) and eventing (GENA), SSDP for discovery.
//
// HTTP implements the server package's Transport contract. Every control
// and subscription request is turned into a upnp raw event and handed to
// the registered upnp.EventHandler; the handler's outcome is rendered back
// as the HTTP reply.
package transport

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/huin/goupnp"

	"github.com/graymedia/mediaserver/internal/upnp"
)

func init() {
	chi.RegisterMethod(methodSubscribe)
	chi.RegisterMethod(methodUnsubscribe)
	chi.RegisterMethod(methodNotify)
}

// Default timeouts.
const (
	DefaultShutdownTimeout = 5 * time.Second
	DefaultNotifyTimeout   = 5 * time.Second
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
)

// Logger defines the logging interface used by the transport.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures an HTTP transport.
type Options struct {
	// ServerHeader is sent in SERVER headers, e.g. "Linux/6 UPnP/1.0 mediaserver/1.0".
	ServerHeader string

	// ReadTimeout, WriteTimeout and IdleTimeout configure the HTTP server.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// NotifyTimeout bounds event delivery to a subscriber.
	NotifyTimeout time.Duration

	// NewAdvertiser creates SSDP advertisers. Default: go-ssdp multicast.
	NewAdvertiser AdvertiserFactory

	Logger Logger
}

// device is the registered root device with its URL routing tables.
type device struct {
	handle      upnp.DeviceHandle
	udn         string
	deviceType  string
	description []byte
	documents   map[string][]byte
	control     map[string]goupnp.Service // control path -> service
	events      map[string]goupnp.Service // event path -> service
	handler     upnp.EventHandler
	advertisers advertiserSet
}

// HTTP is the UPnP transport. It hosts at most one root device.
type HTTP struct {
	opts     Options
	logger   Logger
	notifier *notifier
	router   http.Handler

	mu         sync.RWMutex // Protects fields below
	listener   net.Listener
	httpServer *http.Server
	address    string
	port       int
	serveDone  chan struct{}
	dev        *device
	nextHandle upnp.DeviceHandle
}

// NewHTTP creates an unbound transport.
func NewHTTP(opts Options) *HTTP {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	if opts.NewAdvertiser == nil {
		opts.NewAdvertiser = multicastAdvertiser
	}
	if opts.ServerHeader == "" {
		opts.ServerHeader = "Go UPnP/1.0 mediaserver"
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	t := &HTTP{
		opts:       opts,
		logger:     logger,
		notifier:   newNotifier(opts.NotifyTimeout, opts.ServerHeader, logger),
		nextHandle: 1,
	}
	t.router = t.buildRouter()
	return t
}

// Handler returns the HTTP handler serving the registered device.
func (t *HTTP) Handler() http.Handler {
	return t.router
}

// Bind starts the HTTP listener on address:port. If the port is taken, an
// ephemeral port on the same address is used instead.
//
// Returns:
//   - int: The port actually bound
//   - error: ErrAlreadyBound or the listen failure
func (t *HTTP) Bind(ctx context.Context, address string, port int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.listener != nil {
		return 0, ErrAlreadyBound
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil && port != 0 {
		t.logger.Warn("requested port unavailable, falling back to ephemeral port",
			"address", address,
			"port", port,
			"error", err,
		)
		ln, err = lc.Listen(ctx, "tcp", net.JoinHostPort(address, "0"))
	}
	if err != nil {
		return 0, fmt.Errorf("listening on %s: %w", address, err)
	}

	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		ln.Close() //nolint:errcheck // already failing
		return 0, fmt.Errorf("unexpected listener address %T", ln.Addr())
	}

	t.listener = ln
	t.address = address
	t.port = tcpAddr.Port
	t.httpServer = &http.Server{
		Handler:      t.router,
		ReadTimeout:  t.opts.ReadTimeout,
		WriteTimeout: t.opts.WriteTimeout,
		IdleTimeout:  t.opts.IdleTimeout,
	}
	t.serveDone = make(chan struct{})

	srv, done := t.httpServer, t.serveDone
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("upnp http server error", "error", err)
		}
	}()

	t.logger.Info("upnp transport listening", "address", address, "port", t.port)
	return t.port, nil
}

// Unbind shuts the HTTP server down gracefully and waits for pending
// event deliveries.
func (t *HTTP) Unbind() error {
	t.mu.Lock()
	srv, done := t.httpServer, t.serveDone
	t.httpServer = nil
	t.listener = nil
	t.serveDone = nil
	t.port = 0
	t.mu.Unlock()

	if srv == nil {
		return ErrNotBound
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	<-done
	t.notifier.wait()

	if err != nil {
		return fmt.Errorf("shutting down upnp http server: %w", err)
	}
	t.logger.Info("upnp transport stopped")
	return nil
}

// Addr returns the bound address and port.
func (t *HTTP) Addr() (string, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.address, t.port
}

// RegisterDevice publishes a root device. The description is parsed to
// learn which URL paths belong to which service.
//
// Returns:
//   - upnp.DeviceHandle: Handle for later calls
//   - error: ErrAlreadyRegistered or ErrInvalidDescription
func (t *HTTP) RegisterDevice(_ context.Context, reg upnp.DeviceRegistration) (upnp.DeviceHandle, error) {
	if reg.Handler == nil {
		return upnp.InvalidHandle, fmt.Errorf("%w: no event handler", ErrInvalidDescription)
	}

	var root goupnp.RootDevice
	if err := xml.Unmarshal(reg.Description, &root); err != nil {
		return upnp.InvalidHandle, fmt.Errorf("%w: %w", ErrInvalidDescription, err)
	}

	dev := &device{
		udn:         reg.UDN,
		deviceType:  root.Device.DeviceType,
		description: reg.Description,
		documents:   make(map[string][]byte, len(reg.Documents)),
		control:     make(map[string]goupnp.Service),
		events:      make(map[string]goupnp.Service),
		handler:     reg.Handler,
	}
	if dev.udn == "" {
		dev.udn = root.Device.UDN
	}
	for path, doc := range reg.Documents {
		dev.documents[path] = doc
	}
	root.Device.VisitServices(func(svc *goupnp.Service) {
		dev.control[urlPath(svc.ControlURL.Str)] = *svc
		dev.events[urlPath(svc.EventSubURL.Str)] = *svc
	})
	if len(dev.control) == 0 {
		return upnp.InvalidHandle, fmt.Errorf("%w: no services", ErrInvalidDescription)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev != nil {
		return upnp.InvalidHandle, ErrAlreadyRegistered
	}
	dev.handle = t.nextHandle
	t.nextHandle++
	t.dev = dev

	t.logger.Info("upnp device registered",
		"udn", dev.udn,
		"device_type", dev.deviceType,
		"services", len(dev.control),
	)
	return dev.handle, nil
}

// UnregisterDevice withdraws the device, sending ssdp:byebye if it was
// ever advertised.
func (t *HTTP) UnregisterDevice(handle upnp.DeviceHandle) error {
	t.mu.Lock()
	dev := t.dev
	if dev == nil || dev.handle != handle {
		t.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownHandle, handle)
	}
	t.dev = nil
	advertisers := dev.advertisers
	dev.advertisers = nil
	t.mu.Unlock()

	if advertisers != nil {
		if err := advertisers.byeAndClose(); err != nil {
			return fmt.Errorf("ssdp byebye: %w", err)
		}
	}
	t.logger.Info("upnp device unregistered", "udn", dev.udn)
	return nil
}

// SendAdvertisement sends ssdp:alive for every target of the device. The
// advertisers are created on first use with max-age twice the interval.
func (t *HTTP) SendAdvertisement(handle upnp.DeviceHandle, interval time.Duration) error {
	t.mu.Lock()
	dev := t.dev
	if dev == nil || dev.handle != handle {
		t.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownHandle, handle)
	}
	if dev.advertisers == nil {
		if t.listener == nil {
			t.mu.Unlock()
			return ErrNotBound
		}
		location := "http://" + net.JoinHostPort(t.address, strconv.Itoa(t.port)) + upnp.DescriptionPath
		maxAge := int((2 * interval).Seconds())
		if maxAge < 1 {
			maxAge = 1
		}
		set, err := newAdvertiserSet(t.opts.NewAdvertiser, ssdpTargets(dev.udn, dev.deviceType, dev.serviceTypes()), location, t.opts.ServerHeader, maxAge)
		if err != nil {
			t.mu.Unlock()
			return err
		}
		dev.advertisers = set
	}
	advertisers := dev.advertisers
	t.mu.Unlock()

	return advertisers.alive()
}

// current returns the registered device, or nil.
func (t *HTTP) current() *device {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dev
}

// serviceTypes returns the hosted service types in a stable order.
func (d *device) serviceTypes() []string {
	types := make([]string, 0, len(d.control))
	for _, path := range sortedKeys(d.control) {
		types = append(types, d.control[path].ServiceType)
	}
	return types
}

// urlPath reduces an absolute or relative URL to its path.
func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}
	return u.Path
}
